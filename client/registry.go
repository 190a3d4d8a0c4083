// Package client holds the mutually-authenticated HTTPS clients used to talk
// to a repoSpanner server, one per repository.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/wolfeidau/repospanner/config"
	"github.com/wolfeidau/repospanner/telemetry"
)

// DefaultUserAgent identifies requests made by this client.
const DefaultUserAgent = "git/2.0 (repospanner-go) repospanner/1"

// Registry maps repository identities to their Client. A Client is built on
// first use and reused for the life of the Registry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	logger    *slog.Logger
	userAgent string
	wrap      func(http.RoundTripper) http.RoundTripper
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used by the registry and its clients.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithUserAgent overrides the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(r *Registry) {
		r.userAgent = ua
	}
}

// WithTransportWrapper wraps the RoundTripper of every Client the registry
// builds. The wrapper sees requests after the https check.
func WithTransportWrapper(wrap func(http.RoundTripper) http.RoundTripper) Option {
	return func(r *Registry) {
		r.wrap = wrap
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clients:   make(map[string]*Client),
		logger:    slog.Default(),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the Client for identity, building it from cfg if this is the
// first request for that identity. A failed build leaves the registry
// unchanged, so a later call with corrected configuration can succeed.
func (r *Registry) Get(ctx context.Context, identity string, cfg config.Config) (*Client, error) {
	r.mu.RLock()
	c, ok := r.clients[identity]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have won the race while we waited for the lock.
	if c, ok := r.clients[identity]; ok {
		return c, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := newClient(identity, cfg, r)
	if err != nil {
		r.logger.Error("building repospanner client", "identity", identity, "error", err)
		return nil, err
	}

	r.clients[identity] = c
	telemetry.RecordClientCreated(ctx)
	r.logger.Debug("created repospanner client", "identity", identity, "url", c.BaseURL())

	return c, nil
}

// Len returns the number of clients in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
