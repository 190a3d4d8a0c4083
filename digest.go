package repospanner

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// DigestSize is the size of a BLAKE3 digest in bytes (256 bits).
const DigestSize = 32

// Digest is a BLAKE3-256 fingerprint of a payload received from the remote
// store. It is used to compare reference listings and staged objects, it is
// not an object identifier.
type Digest [DigestSize]byte

// String returns the hex-encoded representation of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ShortString returns a shortened hex representation for display.
func (d Digest) ShortString() string {
	return hex.EncodeToString(d[:8])
}

// IsZero returns true if the digest is all zeros (uninitialized).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// DigestBytes computes the BLAKE3 digest of the given bytes.
func DigestBytes(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// HashingWriter wraps a writer and computes the digest as data is written.
type HashingWriter struct {
	w io.Writer
	h *blake3.Hasher
	n int64
}

// NewHashingWriter creates a writer that computes a digest as data is written.
// A nil w only hashes.
func NewHashingWriter(w io.Writer) *HashingWriter {
	if w == nil {
		w = io.Discard
	}
	return &HashingWriter{
		w: w,
		h: blake3.New(),
	}
}

// Write implements io.Writer.
func (hw *HashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		_, _ = hw.h.Write(p[:n])
		hw.n += int64(n)
	}
	return n, err
}

// Sum returns the digest of all data written so far.
func (hw *HashingWriter) Sum() Digest {
	var d Digest
	hw.h.Sum(d[:0])
	return d
}

// BytesWritten returns the total number of bytes written.
func (hw *HashingWriter) BytesWritten() int64 {
	return hw.n
}
