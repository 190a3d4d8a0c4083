package odb

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/wolfeidau/repospanner"
	"github.com/wolfeidau/repospanner/client"
	"github.com/wolfeidau/repospanner/download"
	"github.com/wolfeidau/repospanner/telemetry"
)

// ObjectPathPrefix is the path below the repository URL that serves objects
// by hex id.
const ObjectPathPrefix = "simple/object/"

// FetchResult describes an object staged into the loose store.
type FetchResult = download.Result

// Remote is a read-only object database backed by a repoSpanner server.
// Every read fetches the object and stages it into the loose store, which
// then decodes it.
type Remote struct {
	client     *client.Client
	store      *LooseStore
	downloader *download.Downloader
	logger     *slog.Logger
}

// Option configures a Remote.
type Option func(*Remote)

// WithLogger sets the logger for the object database.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Remote) {
		r.logger = logger
	}
}

// NewRemote creates an object database for c that stages into store.
func NewRemote(c *client.Client, store *LooseStore, opts ...Option) *Remote {
	r := &Remote{
		client: c,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.downloader = download.New(download.WithLogger(r.logger))
	return r
}

// Store returns the loose store objects are staged into.
func (r *Remote) Store() *LooseStore {
	return r.store
}

// Fetch downloads id into the loose store. A 404 from the server is
// returned as ErrNotFound and leaves the store untouched. Concurrent fetches
// of the same id share one download.
func (r *Remote) Fetch(ctx context.Context, id repospanner.ObjectID) (*FetchResult, error) {
	res, shared, err := r.downloader.Do(ctx, id, func(ctx context.Context) (*download.Result, error) {
		return r.retrieve(ctx, id)
	})
	telemetry.RecordObjectFetch(ctx, fetchOutcome(err), shared)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Remote) retrieve(ctx context.Context, id repospanner.ObjectID) (*download.Result, error) {
	ctx = telemetry.WithOperation(ctx, telemetry.OpObject)

	req, err := r.client.PrepareRequest(ctx, ObjectPathPrefix+id.String())
	if err != nil {
		return nil, err
	}

	resp, err := req.Do()
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	w, err := r.store.Stage(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := download.Stage(id, resp.Body, w)
	if err != nil {
		r.logger.Error("staging object failed", "id", id.String(), "error", err)
		return nil, err
	}

	r.logger.Debug("fetched object",
		"id", id.String(),
		"size", res.Size,
		"digest", res.Digest.ShortString(),
	)
	return res, nil
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, repospanner.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// Exists fetches id and reports whether the server has it. Only a 404
// means false; any other failure is returned as an error.
func (r *Remote) Exists(ctx context.Context, id repospanner.ObjectID) (bool, error) {
	if _, err := r.Fetch(ctx, id); err != nil {
		if errors.Is(err, repospanner.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read fetches id and decodes it from the loose store.
func (r *Remote) Read(ctx context.Context, id repospanner.ObjectID) (*Object, error) {
	if _, err := r.Fetch(ctx, id); err != nil {
		return nil, err
	}
	return r.store.Read(ctx, id)
}

// ReadHeader fetches id and decodes its type and size.
func (r *Remote) ReadHeader(ctx context.Context, id repospanner.ObjectID) (Header, error) {
	if _, err := r.Fetch(ctx, id); err != nil {
		return Header{}, err
	}
	return r.store.ReadHeader(ctx, id)
}

// Write is not supported; the server is read-only from this client.
func (r *Remote) Write(context.Context, plumbing.ObjectType, []byte) (repospanner.ObjectID, error) {
	return repospanner.ObjectID{}, repospanner.NotImplemented("write")
}
