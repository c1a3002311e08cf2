// Package memory provides a record store for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// Store is a map-backed record store keyed by (seller_id, url_id).
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]any
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]map[string]any)}
}

// Resolve returns the stored fetch URL or harvest.ErrNotSeeded.
func (s *Store) Resolve(_ context.Context, sellerID, urlID string) (harvest.ResolvedTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordKey(sellerID, urlID)]
	if !ok {
		return harvest.ResolvedTarget{}, harvest.ErrNotSeeded
	}
	url, _ := record["pub_url"].(string)
	if url == "" {
		return harvest.ResolvedTarget{}, harvest.ErrNotSeeded
	}
	return harvest.ResolvedTarget{FetchURL: url}, nil
}

// PutSeed writes the full discovery-phase record.
func (s *Store) PutSeed(_ context.Context, seed harvest.SeedRecord) error {
	if seed.SellerID == "" || seed.URLID == "" {
		return fmt.Errorf("seed key pair is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(seed.SellerID, seed.URLID)] = seed.Fields()
	return nil
}

// Update merges fields into an existing record; it never creates one.
func (s *Store) Update(_ context.Context, sellerID, urlID string, fields map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordKey(sellerID, urlID)]
	if !ok {
		return nil, fmt.Errorf("update %s/%s: %w", sellerID, urlID, harvest.ErrNotSeeded)
	}
	updated := make(map[string]any, len(fields))
	for name, value := range fields {
		record[name] = value
		updated[name] = value
	}
	return updated, nil
}

// Record returns a copy of the stored record for assertions.
func (s *Store) Record(sellerID, urlID string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordKey(sellerID, urlID)]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out, true
}

func recordKey(sellerID, urlID string) string {
	return sellerID + "#" + urlID
}
