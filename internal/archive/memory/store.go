// Package memory is an in-memory archive used in tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Object is one stored snapshot.
type Object struct {
	ContentType string
	Data        []byte
}

// Store implements harvest.Archive with a map.
type Store struct {
	mu      sync.Mutex
	objects map[string]Object
}

// New returns an empty store.
func New() *Store {
	return &Store{objects: make(map[string]Object)}
}

// PutObject stores the snapshot and returns a mem:// URI.
func (s *Store) PutObject(_ context.Context, path string, contentType string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("object path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return "mem://" + path, nil
}

// Get returns a stored object for assertions.
func (s *Store) Get(path string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
