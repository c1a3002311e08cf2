// Package identity derives the stable keys that make commits idempotent.
// Equal inputs always yield equal keys, so re-discovering the same listing
// or re-processing the same message lands on the same stored record.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// SellerID returns the partition key for a seller: the hex SHA-256 digest
// of the normalized seller name.
func SellerID(sellerName string) string {
	return digest(strings.TrimSpace(sellerName))
}

// URLID returns the sort key for a listing: the hex SHA-256 digest of the
// canonical publication URL.
func URLID(pubURL string) string {
	return digest(Canonicalize(pubURL))
}

// Canonicalize strips query and fragment noise from a listing URL so that
// tracking parameters do not split one item into many records.
func Canonicalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}

// DedupKey derives the per-run deduplication key for a seller/url pair.
func DedupKey(sellerID, urlID string) string {
	return digest(sellerID) + "#" + urlID
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
