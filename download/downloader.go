// Package download deduplicates concurrent fetches of the same object from
// the remote store. When several callers ask for an object that is not yet
// staged locally, only one remote fetch is performed.
package download

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wolfeidau/repospanner"
	"golang.org/x/sync/singleflight"
)

// Result holds the outcome of a fetch.
type Result struct {
	ID     repospanner.ObjectID
	Size   int64
	Digest repospanner.Digest
}

// FetchFunc fetches one object and stages it locally.
// The context passed to FetchFunc is detached from any single caller so
// that one caller timing out does not cancel the fetch for other waiters.
type FetchFunc func(ctx context.Context) (*Result, error)

// Downloader deduplicates concurrent fetches for the same object id
// using singleflight. It uses DoChan so each caller can respect its own
// context deadline without cancelling the in-flight fetch for others.
type Downloader struct {
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger for the downloader.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// New creates a new Downloader.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do deduplicates concurrent fetches for the same id.
// Returns the result, whether it was shared with another caller, and any error.
//
// If the caller's context expires before the fetch completes, Do returns
// the context error but the in-flight fetch continues for other waiters.
func (d *Downloader) Do(ctx context.Context, id repospanner.ObjectID, fn FetchFunc) (*Result, bool, error) {
	key := id.String()
	ch := d.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			d.forgetOnError(key, res.Err)
			return nil, res.Shared, res.Err
		}
		if res.Shared {
			d.logger.Debug("joined in-flight fetch", "id", key)
		}
		return res.Val.(*Result), res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// forgetOnError drops the key after a real fetch failure. Context errors
// are left alone: they belong to a caller, not to the shared fetch.
func (d *Downloader) forgetOnError(key string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	d.group.Forget(key)
}
