package domain

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. Every failure that aborts a settlement
// carries exactly one kind so callers can map it to an exit code or HTTP
// status without string matching.
type Kind string

const (
	// KindMalformed covers unparseable identifiers and events with missing
	// required fields. Never defaulted.
	KindMalformed Kind = "malformed_input"

	// KindUnmapped covers references the engine refuses to guess: a SKU
	// without a brand, a memo label without an account.
	KindUnmapped Kind = "unmapped_reference"

	// KindAmbiguous covers situations with more than one candidate where
	// exactly one is required (account mappings, audit invoices).
	KindAmbiguous Kind = "ambiguous"

	// KindAuthFailed marks a ledger token that is invalid beyond refresh,
	// so callers can treat it as a 401-equivalent.
	KindAuthFailed Kind = "external_auth"

	// KindInconsistent marks an internal-invariant breach (unbalanced
	// journal entry, allocation not summing to its total). Never posted.
	KindInconsistent Kind = "consistency_violation"
)

// Error is the taxonomy-carrying error type.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" if err carries no classification.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
