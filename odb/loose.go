// Package odb fetches objects from a repoSpanner server into the
// repository's loose object directory and reads them back.
package odb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/klauspost/compress/zlib"

	"github.com/wolfeidau/repospanner"
	"github.com/wolfeidau/repospanner/backend"
)

// ErrCorruptObject is returned when a loose object cannot be decoded or
// does not hash to its id.
var ErrCorruptObject = errors.New("corrupt loose object")

// maxPrealloc caps the buffer reserved up front from an untrusted header.
const maxPrealloc = 32 << 20

// Header describes a stored object.
type Header struct {
	Type plumbing.ObjectType
	Size int64
}

// Object is a decoded loose object.
type Object struct {
	Header
	Data []byte
}

// LooseStore is a git loose object directory: zlib-compressed
// "<type> <size>\0<data>" files stored under aa/bbbb... paths.
type LooseStore struct {
	backend backend.WriterBackend
	root    string
}

// NewLooseStore opens the loose object directory at objectsDir, creating
// it if needed.
func NewLooseStore(objectsDir string) (*LooseStore, error) {
	fs, err := backend.NewFilesystem(objectsDir)
	if err != nil {
		return nil, fmt.Errorf("opening object directory: %w", err)
	}
	return &LooseStore{
		backend: backend.NewInstrumentedBackend(fs, "loose"),
		root:    fs.Root(),
	}, nil
}

// Root returns the absolute object directory.
func (s *LooseStore) Root() string {
	return s.root
}

// Stage returns a writer for the object file of id. Nothing appears at the
// object's path until Close succeeds; Abort discards the staged bytes.
func (s *LooseStore) Stage(ctx context.Context, id repospanner.ObjectID) (backend.StagedWriter, error) {
	return s.backend.Writer(ctx, id.LoosePath())
}

// Has reports whether the object file of id exists.
func (s *LooseStore) Has(ctx context.Context, id repospanner.ObjectID) (bool, error) {
	return s.backend.Exists(ctx, id.LoosePath())
}

// ReadHeader decodes only the type and size of the object.
func (s *LooseStore) ReadHeader(ctx context.Context, id repospanner.ObjectID) (Header, error) {
	rc, err := s.open(ctx, id)
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = rc.Close() }()

	zr, err := zlib.NewReader(rc)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %s: %w", ErrCorruptObject, id, err)
	}
	defer func() { _ = zr.Close() }()

	h, err := readHeader(bufio.NewReader(zr))
	if err != nil {
		return Header{}, fmt.Errorf("%w: %s: %w", ErrCorruptObject, id, err)
	}
	return h, nil
}

// Read decodes the object and checks that its content hashes to id.
func (s *LooseStore) Read(ctx context.Context, id repospanner.ObjectID) (*Object, error) {
	rc, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	zr, err := zlib.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptObject, id, err)
	}
	defer func() { _ = zr.Close() }()

	br := bufio.NewReader(zr)
	h, err := readHeader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptObject, id, err)
	}

	var buf bytes.Buffer
	if h.Size <= maxPrealloc {
		buf.Grow(int(h.Size))
	}
	n, err := io.Copy(&buf, io.LimitReader(br, h.Size+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptObject, id, err)
	}
	if n != h.Size {
		return nil, fmt.Errorf("%w: %s: header says %d bytes, found %d", ErrCorruptObject, id, h.Size, n)
	}

	if got := repospanner.ObjectID(plumbing.ComputeHash(h.Type, buf.Bytes())); got != id {
		return nil, fmt.Errorf("%w: %s: content hashes to %s", ErrCorruptObject, id, got)
	}

	return &Object{Header: h, Data: buf.Bytes()}, nil
}

func (s *LooseStore) open(ctx context.Context, id repospanner.ObjectID) (io.ReadCloser, error) {
	rc, err := s.backend.Read(ctx, id.LoosePath())
	if errors.Is(err, backend.ErrNotFound) {
		return nil, fmt.Errorf("object %s: %w", id, repospanner.ErrNotFound)
	}
	return rc, err
}

// readHeader parses "<type> <size>\0".
func readHeader(br *bufio.Reader) (Header, error) {
	raw, err := br.ReadSlice(0)
	if err != nil {
		return Header{}, fmt.Errorf("reading header: %w", err)
	}

	typ, size, ok := bytes.Cut(raw[:len(raw)-1], []byte{' '})
	if !ok {
		return Header{}, fmt.Errorf("header %q has no size", raw)
	}

	t, err := plumbing.ParseObjectType(string(typ))
	if err != nil || t.IsDelta() {
		return Header{}, fmt.Errorf("unknown object type %q", typ)
	}

	n, err := strconv.ParseInt(string(size), 10, 64)
	if err != nil || n < 0 {
		return Header{}, fmt.Errorf("invalid object size %q", size)
	}

	return Header{Type: t, Size: n}, nil
}
