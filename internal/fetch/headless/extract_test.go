package headless

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const productScript = `{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Widget Deluxe",
  "description": "A very good widget",
  "image": ["https://example.com/a.jpg", "https://example.com/b.jpg"],
  "offers": {
    "@type": "Offer",
    "priceCurrency": "UYU",
    "availability": "https://schema.org/InStock"
  },
  "additionalProperty": [
    {"@type": "PropertyValue", "name": "Color", "value": "Red"},
    {"@type": "PropertyValue", "name": "Weight", "value": 2}
  ]
}`

func TestProductFromJSONLD(t *testing.T) {
	t.Parallel()

	details := productFromJSONLD([]string{productScript})
	require.NotNil(t, details)
	require.Equal(t, "UYU", details.Currency)
	require.Equal(t, "InStock", details.Availability)
	require.Equal(t, "A very good widget", details.Description)
	require.Equal(t, "https://example.com/a.jpg", details.MainImage)
	require.Equal(t, []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}, details.Images)
	require.Equal(t, []string{"Color: Red", "Weight: 2"}, details.Features)
}

func TestProductFromJSONLDGraphAndArrays(t *testing.T) {
	t.Parallel()

	graph := `{"@graph": [
	  {"@type": "BreadcrumbList"},
	  {"@type": "Product", "image": "https://example.com/one.jpg",
	   "offers": [{"priceCurrency": "USD", "availability": "http://schema.org/OutOfStock"}]}
	]}`

	details := productFromJSONLD([]string{`{"@type": "WebPage"}`, graph})
	require.NotNil(t, details)
	require.Equal(t, "USD", details.Currency)
	require.Equal(t, "OutOfStock", details.Availability)
	require.Equal(t, "https://example.com/one.jpg", details.MainImage)
	require.Equal(t, []string{"https://example.com/one.jpg"}, details.Images)
}

func TestProductFromJSONLDNoProduct(t *testing.T) {
	t.Parallel()

	require.Nil(t, productFromJSONLD(nil))
	require.Nil(t, productFromJSONLD([]string{"not json", `{"@type": "Organization"}`}))
	require.Nil(t, productFromJSONLD([]string{`[{"@type": "ItemList"}]`}))
}

func TestNewValidatesMaxParallel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := New(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.limiter))
}

func TestNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, 45*time.Second, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}
