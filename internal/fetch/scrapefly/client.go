// Package scrapefly is a client for the hosted render/extract provider.
// One call renders the page, runs the provider's product extraction model,
// and returns the structured document plus the rendered page title; the
// title is what the caller uses to tell genuine content from the
// marketplace's generic placeholder page.
package scrapefly

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// Config controls the provider client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements harvest.Fetcher over the provider's HTTP API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New validates the config and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// scrapeResponse is the provider's wire format.
type scrapeResponse struct {
	Result struct {
		Title      string `json:"title"`
		StatusCode int    `json:"status_code"`
		Product    *struct {
			Currency     string   `json:"currency"`
			Availability string   `json:"availability"`
			Features     []string `json:"features"`
			MainImage    struct {
				URL string `json:"url"`
			} `json:"mainImage"`
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
			Description string `json:"description"`
		} `json:"product"`
	} `json:"result"`
}

// Fetch renders the target URL through the provider and maps the response.
func (c *Client) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResult, error) {
	endpoint, err := c.buildURL(request)
	if err != nil {
		return harvest.FetchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return harvest.FetchResult{}, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return harvest.FetchResult{}, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return harvest.FetchResult{}, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return harvest.FetchResult{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return harvest.FetchResult{}, fmt.Errorf("decode provider response: %w", err)
	}

	result := harvest.FetchResult{
		PageTitle:  parsed.Result.Title,
		StatusCode: parsed.Result.StatusCode,
		Raw:        body,
		Duration:   time.Since(start),
	}
	if p := parsed.Result.Product; p != nil {
		images := make([]string, 0, len(p.Images))
		for _, img := range p.Images {
			if img.URL != "" {
				images = append(images, img.URL)
			}
		}
		result.Product = &harvest.ProductDetails{
			Currency:     p.Currency,
			Availability: p.Availability,
			Features:     p.Features,
			MainImage:    p.MainImage.URL,
			Images:       images,
			Description:  p.Description,
		}
	}
	return result, nil
}

func (c *Client) buildURL(request harvest.FetchRequest) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse provider base url: %w", err)
	}
	base.Path, err = url.JoinPath(base.Path, "scrape")
	if err != nil {
		return "", fmt.Errorf("join provider path: %w", err)
	}

	q := base.Query()
	q.Set("key", c.cfg.APIKey)
	q.Set("url", request.URL)
	q.Set("render_js", strconv.FormatBool(request.Render))
	if request.ExtractProduct {
		q.Set("extraction_model", "product")
	}
	if request.Country != "" {
		q.Set("country", request.Country)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}
