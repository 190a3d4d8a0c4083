package refs

import (
	"context"
	"time"

	"github.com/wolfeidau/repospanner"
)

// ReflogEntry is one line of a reference log.
type ReflogEntry struct {
	Old       repospanner.ObjectID
	New       repospanner.ObjectID
	Committer string
	When      time.Time
	Message   string
}

// Reflog is the log of updates to one reference.
type Reflog struct {
	Name    string
	Entries []ReflogEntry
}

// RefLock is a held lock on a reference, returned by Lock.
type RefLock struct {
	Name string
}

// Backend is a reference database.
type Backend interface {
	Exists(ctx context.Context, name string) (bool, error)
	Lookup(ctx context.Context, name string) (Reference, error)

	// Iterator returns references in name order, filtered by a shell glob
	// when pattern is non-empty.
	Iterator(ctx context.Context, pattern string) (*Iterator, error)

	Write(ctx context.Context, ref Reference, force bool) error
	Delete(ctx context.Context, name string, old repospanner.ObjectID) error
	Rename(ctx context.Context, oldName, newName string, force bool) (Reference, error)

	// Compress packs loose references.
	Compress(ctx context.Context) error

	HasLog(ctx context.Context, name string) (bool, error)
	EnsureLog(ctx context.Context, name string) error
	ReflogRead(ctx context.Context, name string) (*Reflog, error)
	ReflogWrite(ctx context.Context, log *Reflog) error
	ReflogRename(ctx context.Context, oldName, newName string) error
	ReflogDelete(ctx context.Context, name string) error

	Lock(ctx context.Context, name string) (*RefLock, error)
	Unlock(ctx context.Context, lock *RefLock, success bool, ref Reference) error
}
