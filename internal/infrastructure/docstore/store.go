// Package docstore is the document database the live feeds read from and
// post to: named collections of JSON documents, append-mostly, with
// push-based snapshot subscriptions.
package docstore

import (
	"context"
	"fmt"
	"time"
)

// Document is one stored document. ID, CreatedAt and LastUpdated are
// assigned by the store.
type Document struct {
	ID          string
	Fields      map[string]any
	CreatedAt   time.Time
	LastUpdated time.Time
}

// Order fields a subscription can sort on (always descending).
const (
	OrderCreatedAt   = "createdAt"
	OrderLastUpdated = "lastUpdated"
)

// Query selects a collection and its ordering.
type Query struct {
	Collection string
	OrderBy    string
}

// SnapshotFunc receives the full ordered contents of the collection. It is
// called once after subscribing and again after every change.
type SnapshotFunc func([]Document)

// ErrorFunc receives a subscription failure. It is terminal: no callback of
// any kind follows it.
type ErrorFunc func(error)

// Subscription is a standing subscription. Unsubscribe is idempotent and
// returns only after the last callback has finished.
type Subscription interface {
	Unsubscribe()
}

// Writer appends documents to a collection.
type Writer interface {
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
}

// Subscriber opens standing subscriptions. ctx bounds the lifetime of the
// subscription; callers must still Unsubscribe.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error)
}

// Store is the full read/write/subscribe contract.
type Store interface {
	Writer
	Subscriber
}

func (q Query) validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	switch q.OrderBy {
	case "", OrderCreatedAt, OrderLastUpdated:
		return nil
	}
	return fmt.Errorf("%w: cannot order by %q", ErrInvalidQuery, q.OrderBy)
}

func (q Query) orderField() string {
	if q.OrderBy == "" {
		return OrderCreatedAt
	}
	return q.OrderBy
}

// serverFields drops client-supplied timestamps; the store owns them.
func serverFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == OrderCreatedAt || k == OrderLastUpdated {
			continue
		}
		out[k] = v
	}
	return out
}
