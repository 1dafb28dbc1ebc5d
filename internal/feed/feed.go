// Package feed defines the normalized change-feed contract the sync engine
// consumes: discrete Added/Modified/Removed records for documents matching
// a subscription, delivered strictly in order, with an initial full
// population distinguishable from live updates.
package feed

import "errors"

// Kind tags a change record.
type Kind int

const (
	Added Kind = iota
	Modified
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event is one change record. Doc carries the entity's new field values
// and is the zero value for Removed events, which only identify the
// document. OldIndex/NewIndex are the positions in the server's own
// ordering when the source reports them and -1 otherwise; the reconciler
// places entities by sort key, so the indices are advisory.
type Event[T any] struct {
	Kind     Kind
	ID       string
	Doc      T
	OldIndex int
	NewIndex int
}

// Batch groups the events delivered together. Initial marks the one-shot
// full population that precedes live updates; consumers use it to replace
// state wholesale instead of patching item by item.
type Batch[T any] struct {
	Initial bool
	Events  []Event[T]
}

// Feed is a live subscription. Events delivers batches in order and is
// closed when the feed terminates; after that Err reports the cause
// (nil for a deliberate Close). A terminated feed is never resumed;
// resubscribing is the caller's job.
type Feed[T any] interface {
	Events() <-chan Batch[T]
	Err() error
	Close()
}

// Error wraps the terminal failure of one feed.
type Error struct {
	Feed string
	Err  error
}

func (e *Error) Error() string {
	return "feed " + e.Feed + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFeedError reports whether err is (or wraps) a feed termination.
func IsFeedError(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}
