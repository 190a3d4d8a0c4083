package refs

import (
	"bytes"
	"fmt"

	"github.com/wolfeidau/repospanner"
)

// Record types on the wire.
const (
	TypeReal     = "real"
	TypeSymbolic = "symb"
)

// Parser decodes a reference listing into a Table. The listing is a
// sequence of newline terminated records, each holding three NUL separated
// fields: type, name and value.
//
// Chunks may split records at any byte. Symbolic records resolve only
// against references already seen earlier in the stream; a symbolic record
// whose target has not been seen is skipped.
type Parser struct {
	table   *Table
	buf     []byte
	records int
	skipped []string
	err     error
}

// NewParser returns a parser that upserts into t.
func NewParser(t *Table) *Parser {
	return &Parser{table: t}
}

// Append adds chunk to the buffer and applies every complete record in it.
// After an error the parser is unusable and returns the same error.
func (p *Parser) Append(chunk []byte) error {
	if p.err != nil {
		return p.err
	}
	p.buf = append(p.buf, chunk...)
	p.err = p.drain(false)
	return p.err
}

// Write implements io.Writer so a response body can be copied straight in.
func (p *Parser) Write(b []byte) (int, error) {
	if err := p.Append(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Finish ends the stream. Any unterminated residual record is an
// ErrTruncatedStream error.
func (p *Parser) Finish() error {
	if p.err != nil {
		return p.err
	}
	p.err = p.drain(true)
	return p.err
}

// Records returns the number of records applied so far.
func (p *Parser) Records() int {
	return p.records
}

// Skipped returns the names of symbolic references dropped because their
// target had not been seen.
func (p *Parser) Skipped() []string {
	return p.skipped
}

func (p *Parser) drain(final bool) error {
	off := 0
	for {
		i := bytes.IndexByte(p.buf[off:], '\n')
		if i < 0 {
			break
		}
		if err := p.apply(p.buf[off : off+i]); err != nil {
			return err
		}
		off += i + 1
	}

	p.buf = append(p.buf[:0], p.buf[off:]...)

	if final && len(p.buf) > 0 {
		return &repospanner.ParseError{
			Kind:   repospanner.ErrTruncatedStream,
			Record: p.records + 1,
			Detail: fmt.Sprintf("%d bytes after last newline", len(p.buf)),
		}
	}
	return nil
}

func (p *Parser) apply(line []byte) error {
	p.records++

	typ, rest, ok := bytes.Cut(line, []byte{0})
	if !ok {
		return p.malformed("missing name field")
	}
	name, value, ok := bytes.Cut(rest, []byte{0})
	if !ok {
		return p.malformed("missing value field")
	}
	if len(name) == 0 {
		return p.malformed("empty name")
	}

	switch string(typ) {
	case TypeReal:
		if len(value) != repospanner.HexSize {
			return p.malformed(fmt.Sprintf("%s: value has %d characters, want %d", name, len(value), repospanner.HexSize))
		}
		id, err := repospanner.ParseObjectID(string(value))
		if err != nil {
			return p.malformed(fmt.Sprintf("%s: %v", name, err))
		}
		p.table.Upsert(Reference{Name: string(name), Target: id})

	case TypeSymbolic:
		target, ok := p.table.Get(string(value))
		if !ok {
			p.skipped = append(p.skipped, string(name))
			return nil
		}
		p.table.Upsert(Reference{Name: string(name), Target: target.Target})

	default:
		return &repospanner.ParseError{
			Kind:   repospanner.ErrInvalidRefType,
			Record: p.records,
			Detail: fmt.Sprintf("type %q", typ),
		}
	}

	return nil
}

func (p *Parser) malformed(detail string) error {
	return &repospanner.ParseError{
		Kind:   repospanner.ErrMalformedRecord,
		Record: p.records,
		Detail: detail,
	}
}
