package refs

import (
	"io"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/gobwas/glob"
)

// Iterator walks a private snapshot of the reference table. It holds no
// lock, so lookups and loads proceed while it is in use. It is not safe for
// concurrent use and cannot be restarted.
type Iterator struct {
	snap  *Table
	it    treemap.Iterator
	match glob.Glob
}

func newIterator(snap *Table, match glob.Glob) *Iterator {
	return &Iterator{
		snap:  snap,
		it:    snap.iterator(),
		match: match,
	}
}

// compileGlob compiles a shell glob with no separators, so '*' also
// matches '/'. Braces match themselves, as in fnmatch.
func compileGlob(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	return glob.Compile(escapeBraces(pattern))
}

// escapeBraces quotes '{' and '}' outside character classes. Escaped
// characters are copied through untouched.
func escapeBraces(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)

	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			b.WriteByte(c)
			i++
			b.WriteByte(pattern[i])
			continue
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '{' || c == '}':
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Next returns the next matching reference, or io.EOF when done.
func (i *Iterator) Next() (Reference, error) {
	if i.snap == nil {
		return Reference{}, io.EOF
	}
	for i.it.Next() {
		ref := i.it.Value().(Reference)
		if i.match == nil || i.match.Match(ref.Name) {
			return ref, nil
		}
	}
	return Reference{}, io.EOF
}

// NextName returns the name of the next matching reference, or io.EOF.
func (i *Iterator) NextName() (string, error) {
	ref, err := i.Next()
	if err != nil {
		return "", err
	}
	return ref.Name, nil
}

// ForEach calls fn for each remaining reference, stopping at the first error.
func (i *Iterator) ForEach(fn func(Reference) error) error {
	for {
		ref, err := i.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ref); err != nil {
			return err
		}
	}
}

// Close releases the snapshot. Next returns io.EOF afterwards.
func (i *Iterator) Close() error {
	i.snap = nil
	i.it = treemap.Iterator{}
	return nil
}
