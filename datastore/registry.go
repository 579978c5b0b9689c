package datastore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

var ErrNoStore = errors.New("no object store registered")

// Registry resolves object store URLs such as `file://` or `s3://bucket`
// to the store serving them. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]DataStore
}

func NewRegistry() *Registry {
	return &Registry{stores: map[string]DataStore{}}
}

// NormalizeURL reduces raw to its scheme and host. A path is not allowed.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("error in url.Parse: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("object store url %q has no scheme", raw)
	}
	if u.Path != "" && u.Path != "/" {
		return "", fmt.Errorf("object store url %q must not have a path", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func (r *Registry) Register(rawURL string, store DataStore) error {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[key] = store
	logger.Debug().Str("url", key).Msg("registered object store")
	return nil
}

func (r *Registry) Get(rawURL string) (DataStore, error) {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, exists := r.stores[key]
	if !exists {
		return nil, fmt.Errorf("%w for %s", ErrNoStore, key)
	}
	return store, nil
}

// Shutdown shuts every registered store down, logging failures.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, store := range r.stores {
		if err := store.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Str("url", key).Msg("failed to shutdown object store")
		}
	}
}
