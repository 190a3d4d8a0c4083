package odb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/repospanner"
)

// encodeLoose returns the id and loose-object encoding of data.
func encodeLoose(t *testing.T, typ plumbing.ObjectType, data []byte) (repospanner.ObjectID, []byte) {
	t.Helper()
	return repospanner.ObjectID(plumbing.ComputeHash(typ, data)), deflate(t, fmt.Sprintf("%s %d\x00", typ, len(data)), data)
}

func deflate(t *testing.T, header string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(header))
	require.NoError(t, err)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestStore(t *testing.T) *LooseStore {
	t.Helper()
	s, err := NewLooseStore(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	return s
}

func stage(t *testing.T, s *LooseStore, id repospanner.ObjectID, raw []byte) {
	t.Helper()
	w, err := s.Stage(context.Background(), id)
	require.NoError(t, err)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestLooseStore_ReadBlob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data := []byte("hello repospanner\n")
	id, raw := encodeLoose(t, plumbing.BlobObject, data)

	has, err := s.Has(ctx, id)
	require.NoError(t, err)
	require.False(t, has)

	stage(t, s, id, raw)

	has, err = s.Has(ctx, id)
	require.NoError(t, err)
	require.True(t, has)

	_, err = os.Stat(filepath.Join(s.Root(), id.Dir(), id.File()))
	require.NoError(t, err, "object stored at the loose path")

	h, err := s.ReadHeader(ctx, id)
	require.NoError(t, err)
	require.Equal(t, plumbing.BlobObject, h.Type)
	require.EqualValues(t, len(data), h.Size)

	obj, err := s.Read(ctx, id)
	require.NoError(t, err)
	require.Equal(t, data, obj.Data)
	require.Equal(t, h, obj.Header)
}

func TestLooseStore_EmptyBlob(t *testing.T) {
	s := newTestStore(t)
	id, raw := encodeLoose(t, plumbing.BlobObject, nil)
	require.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", id.String())

	stage(t, s, id, raw)

	obj, err := s.Read(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, obj.Data)
}

func TestLooseStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	id, _ := encodeLoose(t, plumbing.BlobObject, []byte("absent"))

	_, err := s.Read(context.Background(), id)
	require.ErrorIs(t, err, repospanner.ErrNotFound)

	_, err = s.ReadHeader(context.Background(), id)
	require.ErrorIs(t, err, repospanner.ErrNotFound)
}

func TestLooseStore_Corrupt(t *testing.T) {
	data := []byte("payload")
	id, _ := encodeLoose(t, plumbing.BlobObject, data)

	tests := []struct {
		name       string
		raw        []byte
		headerOnly bool
	}{
		{"not zlib", []byte("plain text, not deflated"), true},
		{"unknown type", deflate(t, "widget 7\x00", data), true},
		{"delta type", deflate(t, "ofs-delta 7\x00", data), true},
		{"missing size", deflate(t, "blob\x00", data), true},
		{"bad size", deflate(t, "blob seven\x00", data), true},
		{"no terminator", deflate(t, "blob 7", nil), true},
		{"short content", deflate(t, "blob 9\x00", data), false},
		{"long content", deflate(t, "blob 3\x00", data), false},
		{"wrong hash", deflate(t, "blob 7\x00", []byte("PAYLOAD")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			stage(t, s, id, tt.raw)

			_, err := s.Read(context.Background(), id)
			require.ErrorIs(t, err, ErrCorruptObject)

			_, err = s.ReadHeader(context.Background(), id)
			if tt.headerOnly {
				require.ErrorIs(t, err, ErrCorruptObject)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLooseStore_StageAbort(t *testing.T) {
	s := newTestStore(t)
	id, raw := encodeLoose(t, plumbing.BlobObject, []byte("discard me"))

	w, err := s.Stage(context.Background(), id)
	require.NoError(t, err)
	_, err = w.Write(raw[:4])
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	has, err := s.Has(context.Background(), id)
	require.NoError(t, err)
	require.False(t, has)
}
