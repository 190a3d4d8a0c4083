package repospanner

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfigMissing is returned when a required configuration value is absent.
	ErrConfigMissing = errors.New("repospanner: configuration missing")

	// ErrDisabled is returned when repospanner.enabled is not set for a repository.
	ErrDisabled = fmt.Errorf("%w: repospanner not enabled", ErrConfigMissing)

	// ErrClientInit is returned when the transport for a client cannot be built.
	ErrClientInit = errors.New("repospanner: client initialisation failed")

	// ErrRequestInit is returned when a request cannot be prepared.
	ErrRequestInit = errors.New("repospanner: request initialisation failed")

	// ErrNotFound is returned when the remote store reports an object absent,
	// or a reference lookup finds no matching name.
	ErrNotFound = errors.New("repospanner: not found")

	// ErrMalformedRecord is returned for a reference record with fewer than
	// three NUL separated fields or an invalid value.
	ErrMalformedRecord = errors.New("repospanner: malformed reference record")

	// ErrInvalidRefType is returned for a record type other than "real" or "symb".
	ErrInvalidRefType = errors.New("repospanner: invalid reference type")

	// ErrTruncatedStream is returned when a reference listing ends mid-record.
	ErrTruncatedStream = errors.New("repospanner: truncated reference stream")

	// ErrTransport is returned for network, TLS and non-404 status failures.
	ErrTransport = errors.New("repospanner: transport error")

	// ErrNotImplemented is returned by mutation operations the client does not support.
	ErrNotImplemented = errors.New("repospanner: not implemented")

	// ErrInvalidObjectID is returned when an object identifier cannot be parsed.
	ErrInvalidObjectID = errors.New("repospanner: invalid object id")
)

// ConfigMissingError names a required configuration option that is absent.
type ConfigMissingError struct {
	Field string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("required config option %s missing", e.Field)
}

// Is reports ErrConfigMissing.
func (e *ConfigMissingError) Is(target error) bool {
	return target == ErrConfigMissing
}

// NotImplementedError names an operation the remote store client does not support.
type NotImplementedError struct {
	Op string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("function %s not implemented for repoSpanner", e.Op)
}

// Is reports ErrNotImplemented.
func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// NotImplemented returns a NotImplementedError for op.
func NotImplemented(op string) error {
	return &NotImplementedError{Op: op}
}

// RefNotFoundError is returned by reference lookups for an unknown name.
type RefNotFoundError struct {
	Name string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("reference '%s' not found", e.Name)
}

// Is reports ErrNotFound.
func (e *RefNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StatusError is a non-2xx response from the remote store.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("error received from repoSpanner: %s returned %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("error received from repoSpanner: %s returned %d", e.URL, e.StatusCode)
}

// Is reports ErrNotFound for 404 responses and ErrTransport otherwise.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrTransport:
		return e.StatusCode != http.StatusNotFound
	}
	return false
}

// ParseError is a violation of the reference listing wire format.
// Kind is one of ErrMalformedRecord, ErrInvalidRefType or ErrTruncatedStream.
type ParseError struct {
	Kind   error
	Record int
	Detail string
}

func (e *ParseError) Error() string {
	if e.Record > 0 {
		return fmt.Sprintf("%v: record %d: %s", e.Kind, e.Record, e.Detail)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}
