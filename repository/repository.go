// Package repository wires a git directory to its repoSpanner reference
// and object backends.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/wolfeidau/repospanner/client"
	"github.com/wolfeidau/repospanner/config"
	"github.com/wolfeidau/repospanner/odb"
	"github.com/wolfeidau/repospanner/refs"
)

// Repository is a git directory whose references and objects are served
// by repoSpanner.
type Repository struct {
	gitDir  string
	client  *client.Client
	refs    *refs.Remote
	objects *odb.Remote
}

type options struct {
	logger *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger passed to the backends.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open reads the repoSpanner settings of gitDir and builds its backends.
// The absolute git directory is the identity under which the client is
// registered in reg.
func Open(ctx context.Context, reg *client.Registry, gitDir string, opts ...Option) (*Repository, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	abs, err := filepath.Abs(gitDir)
	if err != nil {
		return nil, fmt.Errorf("resolving git dir: %w", err)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}

	c, err := reg.Get(ctx, abs, cfg)
	if err != nil {
		return nil, err
	}

	store, err := odb.NewLooseStore(filepath.Join(abs, "objects"))
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("repository", abs)

	return &Repository{
		gitDir:  abs,
		client:  c,
		refs:    refs.NewRemote(c, refs.WithLogger(logger)),
		objects: odb.NewRemote(c, store, odb.WithLogger(logger)),
	}, nil
}

// GitDir returns the absolute git directory.
func (r *Repository) GitDir() string {
	return r.gitDir
}

// Client returns the repoSpanner client of the repository.
func (r *Repository) Client() *client.Client {
	return r.client
}

// Refs returns the reference backend.
func (r *Repository) Refs() *refs.Remote {
	return r.refs
}

// Objects returns the object database.
func (r *Repository) Objects() *odb.Remote {
	return r.objects
}
