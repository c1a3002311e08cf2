// Package harvest defines core types shared across subsystems.
package harvest

import (
	"time"
)

// WorkItem is a queued reference to one seeded product record awaiting
// enrichment. The key pair identifies the record in the store; the item
// itself is never mutated after the producer writes it.
type WorkItem struct {
	SellerID         string `json:"seller_id"`
	URLID            string `json:"url_id"`
	InsertedAt       string `json:"inserted_at"`
	ProcessingStatus string `json:"processing_status"`
}

// ResolvedTarget is the stored fetch target for a work item. It is looked
// up per attempt and never cached across runs.
type ResolvedTarget struct {
	FetchURL string
}

// ProductDetails holds the enrichment fields the collection phase writes.
// Exactly these six attributes are committed; anything else observed on the
// detail page is ignored by this path.
type ProductDetails struct {
	Currency     string   `json:"currency,omitempty"`
	Availability string   `json:"availability,omitempty"`
	Features     []string `json:"features,omitempty"`
	MainImage    string   `json:"mainImage,omitempty"`
	Images       []string `json:"images,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// Fields returns the partial-update map for the details, containing only
// the attributes that were actually observed.
func (d ProductDetails) Fields() map[string]any {
	fields := make(map[string]any, 6)
	if d.Currency != "" {
		fields["currency"] = d.Currency
	}
	if d.Availability != "" {
		fields["availability"] = d.Availability
	}
	if len(d.Features) > 0 {
		features := make([]any, len(d.Features))
		for i, f := range d.Features {
			features[i] = f
		}
		fields["features"] = features
	}
	if d.MainImage != "" {
		fields["mainImage"] = d.MainImage
	}
	if len(d.Images) > 0 {
		images := make([]any, len(d.Images))
		for i, img := range d.Images {
			images[i] = img
		}
		fields["images"] = images
	}
	if d.Description != "" {
		fields["description"] = d.Description
	}
	return fields
}

// Empty reports whether no enrichment field was observed.
func (d ProductDetails) Empty() bool {
	return d.Currency == "" && d.Availability == "" && len(d.Features) == 0 &&
		d.MainImage == "" && len(d.Images) == 0 && d.Description == ""
}

// FetchRequest captures everything needed to fetch one detail page.
type FetchRequest struct {
	URL            string
	Render         bool
	ExtractProduct bool
	Country        string
}

// FetchResult is the structured payload returned by a Fetcher.
type FetchResult struct {
	PageTitle  string
	StatusCode int
	Product    *ProductDetails
	Raw        []byte
	Duration   time.Duration
}

// Outcome is the terminal state of one work item's processing.
type Outcome string

// Terminal outcomes. Every claimed message reaches exactly one of these
// before it is acknowledged.
const (
	OutcomeSuccess       Outcome = "success"
	OutcomeSoftExhausted Outcome = "soft_failure_exhausted"
	OutcomeHardFailure   Outcome = "hard_failure"
	OutcomeResolverMiss  Outcome = "resolver_miss"
)

// ItemResult records how one work item was resolved, fetched, and committed.
type ItemResult struct {
	Item       WorkItem
	Outcome    Outcome
	Attempts   int
	FetchURL   string
	Committed  bool
	CommitErr  error
	ArchiveURI string
}

// Message wraps a work item payload with its acknowledgment token. The
// receipt is only valid for the claim that produced it.
type Message struct {
	ID         string
	Body       []byte
	Receipt    string
	Attributes map[string]string
}

// ClaimOptions bound one queue claim round. The visibility window must
// exceed the worst-case end-to-end processing time of a single item,
// including retries; that is a deployment invariant, not something the
// code enforces.
type ClaimOptions struct {
	MaxMessages      int
	VisibilityWindow time.Duration
	WaitTime         time.Duration
}

// SeedRecord is the full record the discovery phase persists before
// enqueuing a work item. Attribute names match the stored schema.
type SeedRecord struct {
	SellerID           string
	URLID              string
	Title              string
	PubURL             string
	SellerName         string
	Brand              string
	CurrentPrice       float64
	OriginalPrice      float64
	DiscountAmount     float64
	DiscountPercentage float64
	HasDiscount        bool
	ReviewsCount       int
	RatingScore        float64
	ScrapedAt          time.Time
}

// Fields returns the attribute map persisted for the seed record.
func (s SeedRecord) Fields() map[string]any {
	return map[string]any{
		"seller_id":           s.SellerID,
		"url_id":              s.URLID,
		"title":               s.Title,
		"pub_url":             s.PubURL,
		"seller_name":         s.SellerName,
		"brand":               s.Brand,
		"current_price":       s.CurrentPrice,
		"original_price":      s.OriginalPrice,
		"discount_amount":     s.DiscountAmount,
		"discount_percentage": s.DiscountPercentage,
		"has_discount":        s.HasDiscount,
		"reviews_count":       s.ReviewsCount,
		"rating_score":        s.RatingScore,
		"scraped_at":          s.ScrapedAt.UTC().Format(time.RFC3339),
		"processing_status":   "pending",
	}
}
