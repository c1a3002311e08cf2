package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validListing() RawListing {
	return RawListing{
		Title:         "iPhone 15 Pro Max 256GB - Negro",
		CurrentPrice:  "2.970",
		OriginalPrice: "3.500",
		PubURL:        "https://articulo.mercadolibre.com.uy/MLU-123?src=offers#section",
		Seller:        "Por TiendaOficial",
		Brand:         "Apple",
		Rating:        "4.5",
		Reviews:       "(26)",
	}
}

func TestNormalizeValidListing(t *testing.T) {
	t.Parallel()

	scrapedAt := time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC)
	seed, err := Normalize(validListing(), scrapedAt)
	require.NoError(t, err)

	require.Equal(t, "iPhone 15 Pro Max 256GB - Negro", seed.Title)
	require.Equal(t, "https://articulo.mercadolibre.com.uy/MLU-123", seed.PubURL)
	require.Equal(t, "TiendaOficial", seed.SellerName)
	require.Equal(t, 2970.0, seed.CurrentPrice)
	require.Equal(t, 3500.0, seed.OriginalPrice)
	require.Equal(t, 530.0, seed.DiscountAmount)
	require.Equal(t, 15.14, seed.DiscountPercentage)
	require.True(t, seed.HasDiscount)
	require.Equal(t, 26, seed.ReviewsCount)
	require.Equal(t, 4.5, seed.RatingScore)
	require.Equal(t, scrapedAt, seed.ScrapedAt)
	require.Len(t, seed.SellerID, 64)
	require.Len(t, seed.URLID, 64)
}

func TestNormalizeDropsIncompleteListings(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"title", "current_price", "pub_url", "seller", "brand", "rating", "reviews"} {
		raw := validListing()
		switch field {
		case "title":
			raw.Title = ""
		case "current_price":
			raw.CurrentPrice = ""
		case "pub_url":
			raw.PubURL = "  "
		case "seller":
			raw.Seller = ""
		case "brand":
			raw.Brand = ""
		case "rating":
			raw.Rating = ""
		case "reviews":
			raw.Reviews = ""
		}
		_, err := Normalize(raw, time.Now())
		require.ErrorIs(t, err, ErrDropped, field)
		require.ErrorContains(t, err, field)
	}
}

func TestNormalizeMissingOriginalPriceFallsBackToCurrent(t *testing.T) {
	t.Parallel()

	raw := validListing()
	raw.OriginalPrice = ""

	seed, err := Normalize(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, 2970.0, seed.OriginalPrice)
	require.False(t, seed.HasDiscount)
}

func TestNormalizeListPriceHasNoDiscount(t *testing.T) {
	t.Parallel()

	raw := validListing()
	raw.OriginalPrice = raw.CurrentPrice
	raw.Reviews = "26 opiniones"

	seed, err := Normalize(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, seed.CurrentPrice, seed.OriginalPrice)
	require.False(t, seed.HasDiscount)
	require.Equal(t, 0.0, seed.DiscountAmount)
	require.Equal(t, 26, seed.ReviewsCount)
}

func TestNormalizePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
	}{
		{"2.970", 2970},
		{"2.970,50", 2970.50},
		{"$ 1.234", 1234},
		{"970", 970},
		{"1.234.567,89", 1234567.89},
		{"", 0},
		{"gratis", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, normalizePrice(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeReviewsAndRating(t *testing.T) {
	t.Parallel()

	require.Equal(t, 26, normalizeReviews("(26)"))
	require.Equal(t, 14, normalizeReviews("14 opiniones"))
	require.Equal(t, 0, normalizeReviews("sin opiniones"))
	require.Equal(t, 0, normalizeReviews(""))

	require.Equal(t, 4.5, normalizeRating("4.5"))
	require.Equal(t, 0.0, normalizeRating("n/a"))
}

func TestDedupSeen(t *testing.T) {
	t.Parallel()

	d := NewDedup()
	require.False(t, d.Seen("a#b"))
	require.True(t, d.Seen("a#b"))
	require.False(t, d.Seen("a#c"))
	require.Equal(t, 2, d.Len())
}
