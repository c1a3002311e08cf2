package collector

import "strings"

// DefaultPlaceholderTitle is the site-generic title the marketplace serves
// when a listing page is blocked, expired, or replaced by an interstitial.
// Real listing titles carry the product name first, so a prefix match on the
// site name separates the two.
const DefaultPlaceholderTitle = "Mercado Libre"

// isPlaceholderTitle reports whether the rendered page title indicates the
// detail page did not actually load. An empty title counts as a placeholder.
func isPlaceholderTitle(title, placeholder string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return true
	}
	if placeholder == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(title), strings.ToLower(placeholder))
}
