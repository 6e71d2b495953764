package namecache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"alertlens/internal/logger"
	"alertlens/internal/metrics"
	"alertlens/pkg/models"
)

// Resolver resolves opaque identifiers to display names via a slow
// external lookup service, memoizing successes for the process
// lifetime. Entries are never evicted or invalidated; operators restart
// the process to refresh. Safe for concurrent readers and writers.
//
// An optional shared tier (Redis) is consulted between the in-process
// map and the HTTP service, so replicas share resolutions.
type Resolver struct {
	baseURL string
	client  *http.Client
	shared  SharedTier

	mu    sync.RWMutex
	cache map[string]models.NameInfo
}

// SharedTier is an optional second cache tier.
type SharedTier interface {
	Get(ctx context.Context, id string) (models.NameInfo, bool, error)
	Set(ctx context.Context, id string, info models.NameInfo) error
}

// Config configures a Resolver.
type Config struct {
	// BaseURL of the name service; the lookup is GET {BaseURL}/api/name?id=.
	BaseURL string
	// Timeout bounds each external call. Defaults to 2s.
	Timeout time.Duration
	// Shared is an optional shared cache tier; nil disables it.
	Shared SharedTier
}

type lookupResponse struct {
	Success bool            `json:"success"`
	Data    models.NameInfo `json:"data"`
}

// NewResolver creates a resolver.
func NewResolver(cfg Config) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		shared:  cfg.Shared,
		cache:   make(map[string]models.NameInfo),
	}
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Resolve returns the display identity for an id. Non-numeric ids are
// already human-readable and echo back immediately with no external
// call. Failures return a fallback NameInfo echoing the id together
// with the error, and are not cached, so the next call retries.
func (r *Resolver) Resolve(ctx context.Context, id string) (models.NameInfo, error) {
	if id == "" {
		return models.NameInfo{}, fmt.Errorf("namecache: empty id")
	}

	if !isNumeric(id) {
		metrics.NameLookups.WithLabelValues("passthrough").Inc()
		return models.NameInfo{ID: id, Name: id}, nil
	}

	r.mu.RLock()
	info, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		metrics.NameLookups.WithLabelValues("hit").Inc()
		return info, nil
	}

	if r.shared != nil {
		if info, ok, err := r.shared.Get(ctx, id); err != nil {
			logger.Debugf("namecache: shared tier get %s: %v", id, err)
		} else if ok {
			metrics.NameLookups.WithLabelValues("hit").Inc()
			r.memoize(id, info)
			return info, nil
		}
	}

	info, err := r.lookup(ctx, id)
	if err != nil {
		metrics.NameLookups.WithLabelValues("error").Inc()
		return models.NameInfo{ID: id, Name: id}, err
	}

	metrics.NameLookups.WithLabelValues("miss").Inc()
	r.memoize(id, info)
	if r.shared != nil {
		if err := r.shared.Set(ctx, id, info); err != nil {
			logger.Debugf("namecache: shared tier set %s: %v", id, err)
		}
	}
	return info, nil
}

func (r *Resolver) memoize(id string, info models.NameInfo) {
	r.mu.Lock()
	r.cache[id] = info
	r.mu.Unlock()
}

func (r *Resolver) lookup(ctx context.Context, id string) (models.NameInfo, error) {
	if r.baseURL == "" {
		return models.NameInfo{}, fmt.Errorf("namecache: lookup service not configured")
	}

	url := fmt.Sprintf("%s/api/name?id=%s", r.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.NameInfo{}, fmt.Errorf("namecache: building request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return models.NameInfo{}, fmt.Errorf("namecache: lookup %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.NameInfo{}, fmt.Errorf("namecache: lookup %s: status %d", id, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.NameInfo{}, fmt.Errorf("namecache: reading response: %w", err)
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.NameInfo{}, fmt.Errorf("namecache: decoding response: %w", err)
	}
	if !parsed.Success {
		return models.NameInfo{}, fmt.Errorf("namecache: lookup %s: service returned success=false", id)
	}

	return parsed.Data, nil
}
