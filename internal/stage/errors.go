package stage

import (
	"errors"
	"fmt"

	"docstage/internal/schema"
)

// Failure kinds. Match them with errors.Is against any error returned by the store.
var (
	ErrOpen   = errors.New("open failure")
	ErrRead   = errors.New("read failure")
	ErrWrite  = errors.New("write failure")
	ErrRemove = errors.New("remove failure")
)

// Error is a caller-visible store failure carrying a collection-specific message.
// All failures are retriable by the caller; the store never retries.
type Error struct {
	Kind       error  // one of ErrOpen, ErrRead, ErrWrite, ErrRemove
	Collection string // collection name
	Message    string // human-readable, names the collection's documents
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError wraps err as a failure of the given kind against collection c.
func NewError(kind error, c schema.Collection, err error) *Error {
	display := c.DisplayName
	if display == "" {
		display = fmt.Sprintf("collection %q", c.Name)
	}

	var verb string
	switch kind {
	case ErrOpen:
		verb = "could not open"
	case ErrRead:
		verb = "could not load"
	case ErrWrite:
		verb = "could not save"
	case ErrRemove:
		verb = "could not delete from"
	default:
		verb = "failed on"
	}

	return &Error{
		Kind:       kind,
		Collection: c.Name,
		Message:    verb + " " + display,
		Err:        err,
	}
}
