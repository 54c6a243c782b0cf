// Package oxerr defines the error taxonomy shared by every core subsystem.
//
// Every operation that can fail for a reason the caller might branch on
// returns (or wraps) an *Error carrying one of the closed set of Kinds
// below, instead of a bare string. Lower-level causes are preserved with
// github.com/pkg/errors so a Cause() walk survives the taxonomy boundary.
package oxerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of error categories a caller can branch on.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindAlreadyExists       Kind = "already_exists"
	KindInvalidFileType     Kind = "invalid_file_type"
	KindIncompatibleSchemas Kind = "incompatible_schemas"
	KindCommitDBCorrupted   Kind = "commit_db_corrupted"
	KindAuthentication      Kind = "authentication"
	KindIO                  Kind = "io"
	KindSerialization       Kind = "serialization"
	KindBasic               Kind = "basic"
)

// Error is the structured payload every core package returns.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "refstore.CreateBranch".
	Op string
	// Resource is the path/commit id/branch name/schema name involved, if any.
	Resource string
	Err error
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error, wrapping cause with a stack trace via
// github.com/pkg/errors so Cause() keeps working across the boundary.
func New(kind Kind, op, resource string, cause error) *Error {
	if cause == nil {
		cause = errors.New(string(kind))
	} else {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Op: op, Resource: resource, Err: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if oe, ok := err.(*Error); ok {
			return oe.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NotFound is a convenience constructor for the most common kind.
func NotFound(op, resource string) *Error {
	return New(KindNotFound, op, resource, nil)
}

// Wrap adapts any lower-level error into the IO kind, preserving its
// cause chain. A nil err yields nil.
func Wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(KindIO, op, "", err)
}
