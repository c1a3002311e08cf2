// Package archive builds object paths for raw payload snapshots.
package archive

import (
	"fmt"
	"path"
	"time"
)

// SnapshotPath returns the partitioned object path for one raw snapshot.
// Partitions follow the hive layout so downstream table scans can prune
// by date: collect/year=2026/month=01/day=07/<seller>-<url>.json.
func SnapshotPath(t time.Time, sellerID, urlID, ext string) string {
	t = t.UTC()
	return path.Join(
		"collect",
		fmt.Sprintf("year=%04d", t.Year()),
		fmt.Sprintf("month=%02d", int(t.Month())),
		fmt.Sprintf("day=%02d", t.Day()),
		fmt.Sprintf("%s-%s.%s", sellerID, urlID, ext),
	)
}

// ExtForContentType maps a snapshot content type onto a file extension.
func ExtForContentType(contentType string) string {
	switch contentType {
	case "text/html":
		return "html"
	case "application/json":
		return "json"
	default:
		return "bin"
	}
}
