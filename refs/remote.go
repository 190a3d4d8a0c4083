package refs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/wolfeidau/repospanner"
	"github.com/wolfeidau/repospanner/client"
	"github.com/wolfeidau/repospanner/telemetry"
)

// ListPath is the path of the reference listing below the repository URL.
const ListPath = "simple/refs"

// Remote is a read-only Backend served from a repoSpanner server. The
// listing is fetched on first use and never refreshed.
type Remote struct {
	client *client.Client
	cache  Cache
	logger *slog.Logger
}

// Option configures a Remote.
type Option func(*Remote)

// WithLogger sets the logger for the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Remote) {
		r.logger = logger
	}
}

// NewRemote creates a reference backend for c.
func NewRemote(c *client.Client, opts ...Option) *Remote {
	r := &Remote{
		client: c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load fetches the listing if it has not been loaded yet.
func (r *Remote) Load(ctx context.Context) error {
	return r.cache.Load(ctx, r.fetch)
}

// Digest returns the digest of the loaded listing, zero before the first load.
func (r *Remote) Digest() repospanner.Digest {
	return r.cache.Digest()
}

// LoadedAt returns when the listing was installed, zero before the first load.
func (r *Remote) LoadedAt() time.Time {
	return r.cache.LoadedAt()
}

func (r *Remote) fetch(ctx context.Context, t *Table) (repospanner.Digest, error) {
	start := time.Now()
	ctx = telemetry.WithOperation(ctx, telemetry.OpRefs)

	digest, records, err := r.stream(ctx, t)
	duration := time.Since(start)

	if err != nil {
		telemetry.RecordRefsLoad(ctx, loadOutcome(err), 0, duration)
		r.logger.Error("loading references failed",
			"identity", r.client.Identity(),
			"error", err,
			"duration", duration,
		)
		return repospanner.Digest{}, err
	}

	telemetry.RecordRefsLoad(ctx, "success", t.Len(), duration)
	r.logger.Debug("loaded references",
		"identity", r.client.Identity(),
		"records", records,
		"refs", t.Len(),
		"digest", digest.ShortString(),
		"duration", duration,
	)

	return digest, nil
}

func (r *Remote) stream(ctx context.Context, t *Table) (repospanner.Digest, int, error) {
	req, err := r.client.PrepareRequest(ctx, ListPath)
	if err != nil {
		return repospanner.Digest{}, 0, err
	}

	resp, err := req.Do()
	if err != nil {
		return repospanner.Digest{}, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	p := NewParser(t)
	hw := repospanner.NewHashingWriter(p)

	if _, err := io.Copy(hw, resp.Body); err != nil {
		var pe *repospanner.ParseError
		if errors.As(err, &pe) {
			return repospanner.Digest{}, 0, err
		}
		return repospanner.Digest{}, 0, fmt.Errorf("%w: reading %s: %w", repospanner.ErrTransport, req.URL(), err)
	}

	if err := p.Finish(); err != nil {
		return repospanner.Digest{}, 0, err
	}

	if skipped := p.Skipped(); len(skipped) > 0 {
		r.logger.Debug("skipped symbolic references with unseen targets", "names", skipped)
	}

	return hw.Sum(), p.Records(), nil
}

func loadOutcome(err error) string {
	var pe *repospanner.ParseError
	switch {
	case errors.As(err, &pe):
		return "parse_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, repospanner.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Exists reports whether name is a known reference.
func (r *Remote) Exists(ctx context.Context, name string) (bool, error) {
	if err := r.Load(ctx); err != nil {
		return false, err
	}
	return r.cache.Has(name), nil
}

// Lookup returns the reference stored under name, or a *RefNotFoundError.
func (r *Remote) Lookup(ctx context.Context, name string) (Reference, error) {
	if err := r.Load(ctx); err != nil {
		return Reference{}, err
	}
	ref, ok := r.cache.Get(name)
	if !ok {
		return Reference{}, &repospanner.RefNotFoundError{Name: name}
	}
	return ref, nil
}

// Iterator returns an iterator over a snapshot of the references, filtered
// by pattern when it is non-empty.
func (r *Remote) Iterator(ctx context.Context, pattern string) (*Iterator, error) {
	match, err := compileGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling glob %q: %w", pattern, err)
	}
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return newIterator(r.cache.Snapshot(), match), nil
}

func (r *Remote) Write(context.Context, Reference, bool) error {
	return repospanner.NotImplemented("write")
}

func (r *Remote) Delete(context.Context, string, repospanner.ObjectID) error {
	return repospanner.NotImplemented("del")
}

func (r *Remote) Rename(context.Context, string, string, bool) (Reference, error) {
	return Reference{}, repospanner.NotImplemented("rename")
}

// Compress is a no-op: there are no local reference files to pack.
func (r *Remote) Compress(context.Context) error {
	return nil
}

// HasLog always reports false; the server keeps no reference logs.
func (r *Remote) HasLog(context.Context, string) (bool, error) {
	return false, nil
}

func (r *Remote) EnsureLog(context.Context, string) error {
	return repospanner.NotImplemented("ensure_log")
}

func (r *Remote) ReflogRead(context.Context, string) (*Reflog, error) {
	return nil, repospanner.NotImplemented("reflog_read")
}

func (r *Remote) ReflogWrite(context.Context, *Reflog) error {
	return repospanner.NotImplemented("reflog_write")
}

func (r *Remote) ReflogRename(context.Context, string, string) error {
	return repospanner.NotImplemented("reflog_rename")
}

func (r *Remote) ReflogDelete(context.Context, string) error {
	return repospanner.NotImplemented("reflog_delete")
}

func (r *Remote) Lock(context.Context, string) (*RefLock, error) {
	return nil, repospanner.NotImplemented("lock")
}

func (r *Remote) Unlock(context.Context, *RefLock, bool, Reference) error {
	return repospanner.NotImplemented("unlock")
}

var _ Backend = (*Remote)(nil)
