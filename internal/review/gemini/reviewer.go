// Package gemini implements the advisory reviewer on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/review"
)

// Config holds the Gemini connection settings.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Reviewer calls Gemini with a structured-output schema and maps the reply
// onto a review.Verdict.
type Reviewer struct {
	client *genai.Client
	model  string
}

// New builds a reviewer from the config.
func New(ctx context.Context, cfg Config) (*Reviewer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Reviewer{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"acceptable": {Type: genai.TypeBoolean},
		"issues":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"confidence": {Type: genai.TypeString},
	},
	Required: []string{"acceptable", "issues", "confidence"},
}

// Review asks the model whether the harvested fields look like a plausible
// marketplace listing.
func (r *Reviewer) Review(ctx context.Context, item harvest.WorkItem, details harvest.ProductDetails) (review.Verdict, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		return review.Verdict{}, fmt.Errorf("encode details: %w", err)
	}

	resp, err := r.client.Models.GenerateContent(
		ctx,
		r.model,
		genai.Text(buildPrompt(item, string(payload))),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   verdictSchema,
		},
	)
	if err != nil {
		return review.Verdict{}, fmt.Errorf("generate verdict: %w", err)
	}

	var verdict review.Verdict
	if err := json.Unmarshal([]byte(resp.Text()), &verdict); err != nil {
		return review.Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}
	return verdict, nil
}

func buildPrompt(item harvest.WorkItem, details string) string {
	return strings.TrimSpace(`
You review product data harvested from an online marketplace. Given the JSON
fields below, judge whether they look like a plausible product listing.

Flag issues such as:
- availability values that are not recognizable stock states
- image URLs that are obviously placeholders or broken
- descriptions that look like anti-bot interstitials or error pages

Return ONLY a JSON object with keys acceptable (bool), issues (array of
strings, empty when acceptable) and confidence (one of: low, medium, high).

Record ` + item.SellerID + "/" + item.URLID + `:
` + details + `
`)
}
