package refs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/repospanner"
)

func TestCache_LoadOnce(t *testing.T) {
	var c Cache
	var calls atomic.Int32

	fetch := func(ctx context.Context, tbl *Table) (repospanner.Digest, error) {
		calls.Add(1)
		tbl.Upsert(Reference{Name: "main", Target: mustID(t, hashA)})
		return repospanner.DigestBytes([]byte("listing")), nil
	}

	require.False(t, c.Loaded())
	require.NoError(t, c.Load(context.Background(), fetch))
	require.NoError(t, c.Load(context.Background(), fetch))

	require.Equal(t, int32(1), calls.Load())
	require.True(t, c.Loaded())
	require.True(t, c.Has("main"))
	require.Equal(t, 1, c.Len())
	require.Equal(t, repospanner.DigestBytes([]byte("listing")), c.Digest())
	require.False(t, c.LoadedAt().IsZero())
}

func TestCache_FailedLoadInstallsNothing(t *testing.T) {
	var c Cache
	boom := errors.New("boom")

	err := c.Load(context.Background(), func(ctx context.Context, tbl *Table) (repospanner.Digest, error) {
		// Partial state must be discarded.
		tbl.Upsert(Reference{Name: "main", Target: mustID(t, hashA)})
		return repospanner.Digest{}, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, c.Loaded())
	require.False(t, c.Has("main"))
	require.Zero(t, c.Len())

	// Next call retries from scratch.
	err = c.Load(context.Background(), func(ctx context.Context, tbl *Table) (repospanner.Digest, error) {
		tbl.Upsert(Reference{Name: "dev", Target: mustID(t, hashB)})
		return repospanner.Digest{}, nil
	})
	require.NoError(t, err)
	require.True(t, c.Has("dev"))
	require.False(t, c.Has("main"))
}

func TestCache_LookupsWaitForLoad(t *testing.T) {
	var c Cache
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = c.Load(context.Background(), func(ctx context.Context, tbl *Table) (repospanner.Digest, error) {
			close(started)
			tbl.Upsert(Reference{Name: "main", Target: mustID(t, hashA)})
			<-release
			tbl.Upsert(Reference{Name: "dev", Target: mustID(t, hashB)})
			return repospanner.Digest{}, nil
		})
	}()
	<-started

	const readers = 8
	results := make(chan bool, readers)
	var wg sync.WaitGroup
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Load(context.Background(), func(context.Context, *Table) (repospanner.Digest, error) {
				return repospanner.Digest{}, errors.New("second load must not run")
			})
			results <- c.Has("main") && c.Has("dev")
		}()
	}

	select {
	case <-results:
		t.Fatal("lookup completed while load was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	close(results)

	for full := range results {
		require.True(t, full, "lookup observed a partial table")
	}
}

func TestCache_SnapshotIsPrivate(t *testing.T) {
	var c Cache

	require.Zero(t, c.Snapshot().Len(), "snapshot before load is empty")

	require.NoError(t, c.Load(context.Background(), func(ctx context.Context, tbl *Table) (repospanner.Digest, error) {
		tbl.Upsert(Reference{Name: "main", Target: mustID(t, hashA)})
		return repospanner.Digest{}, nil
	}))

	snap := c.Snapshot()
	snap.Upsert(Reference{Name: "main", Target: mustID(t, hashB)})
	snap.Upsert(Reference{Name: "extra"})

	ref, ok := c.Get("main")
	require.True(t, ok)
	require.Equal(t, hashA, ref.Target.String())
	require.False(t, c.Has("extra"))
}

func TestCache_GetBeforeLoad(t *testing.T) {
	var c Cache
	_, ok := c.Get("main")
	require.False(t, ok)
	require.Zero(t, c.Len())
}
