package engine

import (
	"errors"
	"fmt"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/repo"
)

var (
	// ErrBusy means another process held the store lock past the retry budget.
	// The operation wrote nothing and may be retried.
	ErrBusy = errors.New("store is busy")

	ErrDuplicateKey = errors.New("duplicate key")
	// ErrDuplicateEdge is returned when a dependency edge already exists.
	ErrDuplicateEdge = errors.New("dependency already exists")
	// ErrNoPersonaAvailable means every persona for a role was excluded.
	ErrNoPersonaAvailable = errors.New("no persona available")
)

// ValidationError rejects malformed input before any write.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// IDMismatchError reports a task key whose prefix or code disagrees with the
// role or priority supplied alongside it.
type IDMismatchError struct {
	ID       string
	Field    string
	Encoded  string
	Supplied string
}

func (e *IDMismatchError) Error() string {
	return fmt.Sprintf("task id %s encodes %s %s, which does not match %s", e.ID, e.Field, e.Encoded, e.Supplied)
}

// NotFoundError names the missing entity. It matches repo.ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == repo.ErrNotFound }

// ReferentialError reports a reference from one entity to another that does not exist.
type ReferentialError struct {
	Kind   string
	ID     string
	Ref    string
	RefID  string
	Detail string
}

func (e *ReferentialError) Error() string {
	msg := fmt.Sprintf("%s %s references missing %s %s", e.Kind, e.ID, e.Ref, e.RefID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ReferentialError) Is(target error) bool { return target == repo.ErrNotFound }

// ReviewBlockedError is returned when a task cannot be claimed because it is
// waiting on a pending review.
type ReviewBlockedError struct {
	TaskID string
	Review domain.Review
}

func (e *ReviewBlockedError) Error() string {
	return fmt.Sprintf("task %s is blocked by pending review #%d (%s)", e.TaskID, e.Review.ID, e.Review.Title)
}

// wrapNotFound converts repo.ErrNotFound into a NotFoundError for kind/id.
func wrapNotFound(err error, kind, id string) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}
