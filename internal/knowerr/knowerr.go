// Package knowerr provides the structured error taxonomy used across the
// indexing and retrieval core.
package knowerr

import "fmt"

// Kind classifies an Error for retry/propagation decisions.
type Kind string

const (
	// KindStorage is a durable-store failure. Never retried inside the repository.
	KindStorage Kind = "storage"
	// KindParse is a parser failure. Transient by default.
	KindParse Kind = "parse"
	// KindEmbed is an embedder failure. Transient by default.
	KindEmbed Kind = "embed"
	// KindVectorStore is a vector store failure. Transient by default.
	KindVectorStore Kind = "vector_store"
	// KindUnsupportedFile marks a file extension with no registered parser. Not an error.
	KindUnsupportedFile Kind = "unsupported_file"
	// KindTombstone marks an attempted index of a path under an active source tombstone.
	KindTombstone Kind = "tombstone_violation"
	// KindConfig is an invalid retrieval/indexing configuration.
	KindConfig Kind = "config"
	// KindToolDisabled marks the tool-calling gate as off.
	KindToolDisabled Kind = "tool_disabled"
)

// transientKinds are retried by the worker pool up to maxAttempts.
var transientKinds = map[Kind]bool{
	KindParse:       true,
	KindEmbed:       true,
	KindVectorStore: true,
}

// Error is the structured error type carried across the core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind from an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by Kind, so errors.Is(err, knowerr.New(knowerr.KindStorage, "")) works
// regardless of message/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the worker pool should retry the job that
// produced this error, per spec.md §7's propagation policy.
func Retryable(err error) bool {
	var e *Error
	if as(err, &e) {
		return transientKinds[e.Kind]
	}
	return false
}

// as is a tiny errors.As shim kept local to avoid importing "errors" just
// for this one call site.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// MCPDisabledTag is the message of ErrToolDisabled, returned at the
// tool-calling boundary when the feature gate reports disabled. It is the literal string
// transports surface to callers, per spec.md §6.
const MCPDisabledTag = "MCP_DISABLED"

// ErrToolDisabled is the sentinel used by the tool-calling boundary.
var ErrToolDisabled = New(KindToolDisabled, MCPDisabledTag)
