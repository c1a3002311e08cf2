// Package discovery crawls marketplace offer listings, normalizes the raw
// card fields, and seeds product records plus work queue items for the
// collection phase.
package discovery

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/identity"
)

// ErrDropped marks listings that failed validation. The reason is wrapped.
var ErrDropped = errors.New("listing dropped")

// RawListing holds the untouched strings scraped from one offer card.
type RawListing struct {
	Title         string
	CurrentPrice  string
	OriginalPrice string
	PubURL        string
	Seller        string
	Brand         string
	Rating        string
	Reviews       string
}

var (
	priceJunk      = regexp.MustCompile(`[^\d.,]`)
	reviewsInParen = regexp.MustCompile(`\((\d+)\)`)
	firstNumber    = regexp.MustCompile(`\d+`)
)

// Normalize validates one raw listing and produces the seed record the
// discovery phase persists. Listings missing any required field are dropped
// with a wrapped ErrDropped.
func Normalize(raw RawListing, scrapedAt time.Time) (harvest.SeedRecord, error) {
	if err := validate(raw); err != nil {
		return harvest.SeedRecord{}, err
	}

	currentPrice := normalizePrice(raw.CurrentPrice)
	originalPrice := normalizePrice(raw.OriginalPrice)
	if raw.OriginalPrice == "" {
		// A card without a struck-through price is selling at list price.
		originalPrice = currentPrice
	}

	seed := harvest.SeedRecord{
		Title:         strings.TrimSpace(raw.Title),
		PubURL:        identity.Canonicalize(raw.PubURL),
		SellerName:    normalizeSeller(raw.Seller),
		Brand:         strings.TrimSpace(raw.Brand),
		CurrentPrice:  currentPrice,
		OriginalPrice: originalPrice,
		ReviewsCount:  normalizeReviews(raw.Reviews),
		RatingScore:   normalizeRating(raw.Rating),
		ScrapedAt:     scrapedAt.UTC(),
	}

	if originalPrice > 0 && currentPrice > 0 {
		amount := originalPrice - currentPrice
		percentage := amount / originalPrice * 100
		seed.DiscountAmount = round2(amount)
		seed.DiscountPercentage = round2(percentage)
		seed.HasDiscount = percentage > 0
	}

	seed.SellerID = identity.SellerID(seed.SellerName)
	seed.URLID = identity.URLID(seed.PubURL)
	return seed, nil
}

func validate(raw RawListing) error {
	required := []struct {
		name  string
		value string
	}{
		{"title", raw.Title},
		{"current_price", raw.CurrentPrice},
		{"pub_url", raw.PubURL},
		{"seller", raw.Seller},
		{"brand", raw.Brand},
		{"rating", raw.Rating},
		{"reviews", raw.Reviews},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: missing required field %s", ErrDropped, field.name)
		}
	}
	return nil
}

// normalizePrice parses prices in the local format, where the dot is a
// thousands separator and the comma is the decimal: "2.970" is 2970 and
// "2.970,50" is 2970.50. Unparseable input normalizes to zero.
func normalizePrice(price string) float64 {
	clean := priceJunk.ReplaceAllString(price, "")
	if clean == "" {
		return 0
	}
	if integer, decimal, found := strings.Cut(clean, ","); found {
		clean = strings.ReplaceAll(integer, ".", "") + "." + decimal
	} else {
		clean = strings.ReplaceAll(clean, ".", "")
	}
	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return value
}

// normalizeReviews extracts the count from strings like "(26)", falling back
// to the first bare number.
func normalizeReviews(reviews string) int {
	if m := reviewsInParen.FindStringSubmatch(reviews); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := firstNumber.FindString(reviews); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}

func normalizeRating(rating string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(rating), 64)
	if err != nil {
		return 0
	}
	return value
}

// normalizeSeller strips the "Por " prefix the listing cards put before the
// seller name.
func normalizeSeller(seller string) string {
	return strings.TrimSpace(strings.ReplaceAll(seller, "Por ", ""))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
