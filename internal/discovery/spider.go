package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// Selectors holds the CSS selectors for the offer listing layout. They live
// in config because the marketplace reshuffles its markup regularly.
type Selectors struct {
	Card          string
	Title         string
	CurrentPrice  string
	OriginalPrice string
	PubURL        string
	Seller        string
	Brand         string
	Rating        string
	Reviews       string
	NextPage      string
}

// SpiderConfig holds the settings for one discovery crawl.
type SpiderConfig struct {
	StartURLs      []string
	AllowedDomains []string
	UserAgent      string
	MaxPages       int
	MaxItems       int
	Delay          time.Duration
	Selectors      Selectors
}

func (c *SpiderConfig) applyDefaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 2000
	}
}

// Spider walks offer listing pages, normalizes each card, and hands valid
// seeds to the producer.
type Spider struct {
	cfg      SpiderConfig
	producer *Producer
	clock    harvest.Clock
	logger   *zap.Logger

	pages int64
	items int64
}

// NewSpider validates the wiring and builds a Spider.
func NewSpider(cfg SpiderConfig, producer *Producer, clock harvest.Clock, logger *zap.Logger) (*Spider, error) {
	if len(cfg.StartURLs) == 0 {
		return nil, fmt.Errorf("at least one start url is required")
	}
	if cfg.Selectors.Card == "" {
		return nil, fmt.Errorf("card selector is required")
	}
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &Spider{cfg: cfg, producer: producer, clock: clock, logger: logger}, nil
}

// Stats reports how many pages and items the last run processed.
func (s *Spider) Stats() (pages, items int64) {
	return atomic.LoadInt64(&s.pages), atomic.LoadInt64(&s.items)
}

// Run crawls the configured listing pages until the page or item limit is
// reached.
func (s *Spider) Run(ctx context.Context) error {
	collector := s.initCollector(ctx)

	for _, url := range s.cfg.StartURLs {
		if err := collector.Visit(url); err != nil {
			s.logger.Error("Failed to visit URL", zap.String("url", url), zap.Error(err))
		}
	}
	collector.Wait()

	pages, items := s.Stats()
	s.logger.Info("Discovery crawl finished",
		zap.Int64("pages", pages),
		zap.Int64("items", items),
	)
	return ctx.Err()
}

func (s *Spider) initCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.MaxDepth(s.cfg.MaxPages + 1),
	}
	if len(s.cfg.AllowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(s.cfg.AllowedDomains...))
	}
	if s.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(s.cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.AllowURLRevisit = false

	if s.cfg.Delay > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob: "*",
			Delay:      s.cfg.Delay,
		}); err != nil {
			s.logger.Error("Failed to set collector limits", zap.Error(err))
		}
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		atomic.AddInt64(&s.pages, 1)
	})
	collector.OnHTML(s.cfg.Selectors.Card, s.handleCard(ctx))
	if s.cfg.Selectors.NextPage != "" {
		collector.OnHTML(s.cfg.Selectors.NextPage, s.handleNextPage)
	}
	collector.OnError(s.handleError)

	return collector
}

func (s *Spider) handleCard(ctx context.Context) func(*colly.HTMLElement) {
	return func(e *colly.HTMLElement) {
		if atomic.LoadInt64(&s.items) >= int64(s.cfg.MaxItems) {
			return
		}

		sel := s.cfg.Selectors
		raw := RawListing{
			Title:         e.ChildText(sel.Title),
			CurrentPrice:  e.ChildText(sel.CurrentPrice),
			OriginalPrice: e.ChildText(sel.OriginalPrice),
			PubURL:        e.Request.AbsoluteURL(e.ChildAttr(sel.PubURL, "href")),
			Seller:        e.ChildText(sel.Seller),
			Brand:         e.ChildText(sel.Brand),
			Rating:        e.ChildText(sel.Rating),
			Reviews:       e.ChildText(sel.Reviews),
		}

		seed, err := Normalize(raw, s.clock.Now())
		if err != nil {
			if errors.Is(err, ErrDropped) {
				s.logger.Debug("Dropping invalid listing",
					zap.String("title", raw.Title),
					zap.Error(err),
				)
				return
			}
			s.logger.Error("Failed to normalize listing", zap.Error(err))
			return
		}

		if err := s.producer.Publish(ctx, seed); err != nil {
			s.logger.Error("Failed to publish seed",
				zap.String("seller_id", seed.SellerID),
				zap.String("url_id", seed.URLID),
				zap.Error(err),
			)
			return
		}
		atomic.AddInt64(&s.items, 1)
	}
}

func (s *Spider) handleNextPage(e *colly.HTMLElement) {
	if atomic.LoadInt64(&s.pages) >= int64(s.cfg.MaxPages) {
		s.logger.Info("Reached page limit", zap.Int("max_pages", s.cfg.MaxPages))
		return
	}
	if atomic.LoadInt64(&s.items) >= int64(s.cfg.MaxItems) {
		s.logger.Info("Reached item limit", zap.Int("max_items", s.cfg.MaxItems))
		return
	}
	next := e.Attr("href")
	if next == "" {
		return
	}
	var alreadyVisited *colly.AlreadyVisitedError
	if err := e.Request.Visit(next); err != nil && !errors.As(err, &alreadyVisited) {
		s.logger.Error("Failed to follow next page", zap.String("url", next), zap.Error(err))
	}
}

func (s *Spider) handleError(r *colly.Response, err error) {
	msg := "Request failed"
	switch r.StatusCode {
	case 429:
		msg = "Rate limited"
	case 403:
		msg = "Forbidden"
	}
	s.logger.Error(msg,
		zap.String("url", r.Request.URL.String()),
		zap.Int("status_code", r.StatusCode),
		zap.Error(err),
	)
}
