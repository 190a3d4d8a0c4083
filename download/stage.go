package download

import (
	"fmt"
	"io"

	"github.com/wolfeidau/repospanner"
	"github.com/wolfeidau/repospanner/backend"
)

// Stage copies r into the staged writer w while computing the payload
// digest. The write is committed only if the copy and Close both succeed;
// any failure aborts w so nothing becomes visible at its key.
func Stage(id repospanner.ObjectID, r io.Reader, w backend.StagedWriter) (*Result, error) {
	hw := repospanner.NewHashingWriter(w)

	if _, err := io.Copy(hw, r); err != nil {
		_ = w.Abort()
		return nil, fmt.Errorf("staging object %s: %w", id, err)
	}

	if err := w.Close(); err != nil {
		_ = w.Abort()
		return nil, fmt.Errorf("committing object %s: %w", id, err)
	}

	return &Result{
		ID:     id,
		Size:   hw.BytesWritten(),
		Digest: hw.Sum(),
	}, nil
}
