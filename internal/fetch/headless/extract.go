package headless

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// productFromJSONLD scans ld+json blocks for a schema.org Product and maps
// it onto the detail fields the commit path writes. Returns nil when no
// Product node is present.
func productFromJSONLD(scripts []string) *harvest.ProductDetails {
	for _, script := range scripts {
		node := findProductNode(script)
		if node == nil {
			continue
		}
		if details := mapProductNode(node); !details.Empty() {
			return details
		}
	}
	return nil
}

func findProductNode(script string) map[string]any {
	var raw any
	if err := json.Unmarshal([]byte(strings.TrimSpace(script)), &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case map[string]any:
		if isProduct(v) {
			return v
		}
		// @graph wraps multiple nodes in a single script.
		if graph, ok := v["@graph"].([]any); ok {
			return firstProduct(graph)
		}
	case []any:
		return firstProduct(v)
	}
	return nil
}

func firstProduct(nodes []any) map[string]any {
	for _, entry := range nodes {
		node, ok := entry.(map[string]any)
		if ok && isProduct(node) {
			return node
		}
	}
	return nil
}

func isProduct(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, "Product")
	case []any:
		for _, entry := range t {
			if s, ok := entry.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func mapProductNode(node map[string]any) *harvest.ProductDetails {
	details := &harvest.ProductDetails{}

	if desc, ok := node["description"].(string); ok {
		details.Description = desc
	}

	details.MainImage, details.Images = imageURLs(node["image"])

	if offers := offerNode(node["offers"]); offers != nil {
		if currency, ok := offers["priceCurrency"].(string); ok {
			details.Currency = currency
		}
		if availability, ok := offers["availability"].(string); ok {
			details.Availability = schemaValue(availability)
		}
	}

	if props, ok := node["additionalProperty"].([]any); ok {
		for _, entry := range props {
			prop, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name, _ := prop["name"].(string)
			value := prop["value"]
			if name == "" || value == nil {
				continue
			}
			details.Features = append(details.Features, fmt.Sprintf("%s: %v", name, value))
		}
	}

	return details
}

// offerNode accepts either a single Offer object or a list of them.
func offerNode(v any) map[string]any {
	switch offers := v.(type) {
	case map[string]any:
		return offers
	case []any:
		if len(offers) > 0 {
			if first, ok := offers[0].(map[string]any); ok {
				return first
			}
		}
	}
	return nil
}

func imageURLs(v any) (string, []string) {
	switch img := v.(type) {
	case string:
		return img, []string{img}
	case []any:
		var urls []string
		for _, entry := range img {
			if s, ok := entry.(string); ok && s != "" {
				urls = append(urls, s)
			}
		}
		if len(urls) == 0 {
			return "", nil
		}
		return urls[0], urls
	}
	return "", nil
}

// schemaValue strips the schema.org URL prefix from enum values such as
// https://schema.org/InStock.
func schemaValue(v string) string {
	for _, prefix := range []string{"https://schema.org/", "http://schema.org/"} {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return v
}
