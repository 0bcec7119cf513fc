package module

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by LoadError.
var (
	ErrUndersized = errors.New("module blob is undersized")
	ErrBadMagic   = errors.New("wrong module magic")
	ErrNoScripts  = errors.New("module declares no scripts")
	ErrBadOffset  = errors.New("offset outside module")
	ErrBadString  = errors.New("unterminated string")
	ErrCodeRange  = errors.New("address outside code region")
)

// LoadError reports a malformed module. A module that fails to load is
// discarded as a whole; no partial state is kept.
type LoadError struct {
	Reason string
	Offset int // byte offset where the problem was found, -1 if unknown
	Err    error
}

func (e *LoadError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("load module: %s at offset %d: %v", e.Reason, e.Offset, e.Err)
	}
	return fmt.Sprintf("load module: %s: %v", e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadError(err error, offset int, format string, args ...any) *LoadError {
	return &LoadError{
		Reason: fmt.Sprintf(format, args...),
		Offset: offset,
		Err:    err,
	}
}
