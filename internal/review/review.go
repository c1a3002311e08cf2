// Package review runs advisory quality checks on harvested product details.
// Verdicts are logged, never enforced: a rejected verdict does not change the
// outcome of the item that produced it.
package review

import (
	"context"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// Verdict is the reviewer's assessment of one harvested record.
type Verdict struct {
	Acceptable bool     `json:"acceptable"`
	Issues     []string `json:"issues"`
	Confidence string   `json:"confidence"`
}

// Reviewer assesses product details for plausibility.
type Reviewer interface {
	Review(ctx context.Context, item harvest.WorkItem, details harvest.ProductDetails) (Verdict, error)
}
