// Package objectstore provides access to the bucket holding patients'
// uploaded DICOM files. It defines the ObjectStore interface, an S3-backed
// implementation issuing presigned URLs, and an in-memory implementation
// suitable for testing and development.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrMissingKey     = errors.New("object key is required")
)

// Signed-URL expiry windows. Downloads get a longer window because the
// conversion service fetches them asynchronously.
const (
	DownloadURLTTL = 15 * time.Minute
	UploadURLTTL   = 5 * time.Minute
)

// ObjectStore lists a patient's uploaded files and issues time-limited
// signed URLs for reading and writing them.
type ObjectStore interface {
	// List returns all object keys under the given prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// SignDownload returns a presigned GET URL for the key.
	SignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)

	// SignUpload returns a presigned PUT URL binding the given content type.
	SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// InMemoryObjectStore is a thread-safe ObjectStore holding object bodies in
// memory. Signed URLs use a memory:// scheme carrying the key and expiry.
type InMemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewInMemoryObjectStore returns an empty InMemoryObjectStore.
func NewInMemoryObjectStore() *InMemoryObjectStore {
	return &InMemoryObjectStore{objects: make(map[string][]byte)}
}

// Put stores an object body under the given key.
func (s *InMemoryObjectStore) Put(key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(body))
	copy(data, body)
	s.objects[key] = data
}

// Get returns the stored body for a key.
func (s *InMemoryObjectStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *InMemoryObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *InMemoryObjectStore) SignDownload(_ context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return memoryURL("get", key, ttl), nil
}

func (s *InMemoryObjectStore) SignUpload(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	u := memoryURL("put", key, ttl)
	if contentType != "" {
		u += "&contentType=" + url.QueryEscape(contentType)
	}
	return u, nil
}

func memoryURL(action, key string, ttl time.Duration) string {
	expires := time.Now().UTC().Add(ttl).Unix()
	return fmt.Sprintf("memory://bucket/%s?action=%s&expires=%d", url.PathEscape(key), action, expires)
}
