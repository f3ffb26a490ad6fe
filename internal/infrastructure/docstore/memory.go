package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store with the same contract as GormStore. It
// backs the API when no database is configured and stands in for the real
// store in tests.
type Memory struct {
	mu       sync.Mutex
	docs     map[string][]Document
	subs     map[string]map[*memorySubscription]struct{}
	failures []error
	paused   map[string]bool

	Now      func() time.Time
	ReadOnly map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string][]Document),
		subs:     make(map[string]map[*memorySubscription]struct{}),
		ReadOnly: make(map[string]bool),
		paused:   make(map[string]bool),
		Now:      time.Now,
	}
}

// FailNextWrites makes the next len(errs) calls to Add fail with errs, in order.
func (m *Memory) FailNextWrites(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Pause holds change notifications for collection until Resume, simulating
// a subscription that lags behind writes.
func (m *Memory) Pause(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused[collection] = true
}

// Resume delivers a fresh snapshot to every subscriber of collection.
func (m *Memory) Resume(collection string) {
	m.mu.Lock()
	delete(m.paused, collection)
	subs := m.subscribers(collection)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.notify()
	}
}

func (m *Memory) subscribers(collection string) []*memorySubscription {
	subs := make([]*memorySubscription, 0, len(m.subs[collection]))
	for sub := range m.subs[collection] {
		subs = append(subs, sub)
	}
	return subs
}

// Break ends every subscription on collection with err.
func (m *Memory) Break(collection string, err error) {
	m.mu.Lock()
	subs := m.subscribers(collection)
	m.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.fail <- err:
		default:
		}
	}
}

func (m *Memory) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if collection == "" {
		return "", fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	m.mu.Lock()
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		return "", err
	}
	if m.ReadOnly[collection] {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: collection %q is read-only", ErrPermissionDenied, collection)
	}
	now := m.Now().UTC()
	doc := Document{
		ID:          uuid.New().String(),
		Fields:      serverFields(fields),
		CreatedAt:   now,
		LastUpdated: now,
	}
	m.docs[collection] = append(m.docs[collection], doc)
	var subs []*memorySubscription
	if !m.paused[collection] {
		subs = m.subscribers(collection)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.notify()
	}
	return doc.ID, nil
}

func (m *Memory) Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		fail:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	if m.subs[q.Collection] == nil {
		m.subs[q.Collection] = make(map[*memorySubscription]struct{})
	}
	m.subs[q.Collection][sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer m.remove(q.Collection, sub)
		onSnapshot(m.snapshot(q))
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.fail:
				onError(err)
				return
			case <-sub.kick:
				onSnapshot(m.snapshot(q))
			}
		}
	}()
	return sub, nil
}

// Len returns the number of documents in collection.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

func (m *Memory) remove(collection string, sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs[collection], sub)
}

// snapshot returns copies ordered newest first; equal timestamps keep the
// later insertion first.
func (m *Memory) snapshot(q Query) []Document {
	m.mu.Lock()
	stored := m.docs[q.Collection]
	out := make([]Document, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		d := stored[i]
		fields := make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = v
		}
		d.Fields = fields
		out = append(out, d)
	}
	m.mu.Unlock()

	key := func(d Document) time.Time { return d.CreatedAt }
	if q.orderField() == OrderLastUpdated {
		key = func(d Document) time.Time { return d.LastUpdated }
	}
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]).After(key(out[j]))
	})
	return out
}

type memorySubscription struct {
	cancel context.CancelFunc
	kick   chan struct{}
	fail   chan error
	done   chan struct{}
}

func (s *memorySubscription) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) Unsubscribe() {
	s.cancel()
	<-s.done
}
