package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrStoreUnavailable wraps transport or connectivity failures. Callers
	// may retry the triggering action; local state is unchanged.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNoValue is returned by ReadOnceAt when nothing is stored at the path.
	ErrNoValue = errors.New("no value at path")
	// ErrPathExists is returned by CreateAt when the path is already set.
	ErrPathExists = errors.New("path already exists")
)

// Handler receives child-added events: the key of the child directly under
// the subscribed path and the full JSON record stored at that child.
type Handler func(childKey string, value json.RawMessage)

// Subscription is a live child-added registration. Close is idempotent and
// guarantees the handler will not fire after it returns. Close must not be
// called from inside the handler itself.
type Subscription interface {
	Close() error
}

// Adapter abstracts a path-addressable, subscribable key-value store. Paths
// are slash-separated (games/{code}/players/{key}). Writing a JSON object at
// a path also materializes its top-level fields as children of that path, so
// subscribers of the path observe the write as child-added events.
type Adapter interface {
	// WriteAt replaces the value at path. Last write wins.
	WriteAt(ctx context.Context, path string, value any) error
	// CreateAt writes the value only if the path is absent, failing with
	// ErrPathExists otherwise. This is the first-write-wins primitive used
	// for round publication.
	CreateAt(ctx context.Context, path string, value any) error
	// ReadOnceAt performs a one-shot read with no live subscription.
	ReadOnceAt(ctx context.Context, path string) (json.RawMessage, error)
	// SubscribeChildAdded fires the handler for every child present at the
	// path when the subscription starts and for every child added later.
	// Delivery is at-least-once and order-preserving per path; duplicate
	// child keys are suppressed per subscription.
	SubscribeChildAdded(path string, h Handler) (Subscription, error)
}
