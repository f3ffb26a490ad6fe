// Package live keeps an in-memory view of a remote collection current through
// a standing subscription and merges it with transient records that have not
// reached the store yet.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agrihill-backend/internal/domain"
	"agrihill-backend/internal/infrastructure/docstore"

	"github.com/rs/zerolog/log"
)

type Options struct {
	Collection string
	// OrderBy defaults to createdAt, newest first.
	OrderBy string
	Schema  Schema
	// Defaults are shown beneath everything else so an empty store still
	// renders a feed.
	Defaults []domain.Record
}

// State is a point-in-time copy of the view. Err is set once the
// subscription has failed and stays set until Refresh.
type State struct {
	Remote    []domain.Record
	Loading   bool
	Err       error
	Closed    bool
	Version   uint64
	UpdatedAt time.Time
}

// View is safe for concurrent use.
type View struct {
	store    docstore.Subscriber
	opts     Options
	defaults []domain.Record
	base     context.Context

	mu      sync.Mutex
	sub     docstore.Subscription
	gen     uint64
	state   State
	changed chan struct{}
}

// Open subscribes to opts.Collection. ctx bounds the lifetime of the view,
// including subscriptions opened later by Refresh.
func Open(ctx context.Context, store docstore.Subscriber, opts Options) (*View, error) {
	if opts.OrderBy == "" {
		opts.OrderBy = docstore.OrderCreatedAt
	}
	defaults := make([]domain.Record, len(opts.Defaults))
	for i, r := range opts.Defaults {
		r.Source = domain.SourceDefault
		if r.Kind == "" {
			r.Kind = opts.Schema.Kind
		}
		defaults[i] = r
	}
	v := &View{
		store:    store,
		opts:     opts,
		defaults: defaults,
		base:     ctx,
		gen:      1,
		state:    State{Loading: true},
		changed:  make(chan struct{}),
	}
	if err := v.subscribe(1); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *View) Collection() string { return v.opts.Collection }

func (v *View) subscribe(gen uint64) error {
	q := docstore.Query{Collection: v.opts.Collection, OrderBy: v.opts.OrderBy}
	sub, err := v.store.Subscribe(v.base, q,
		func(docs []docstore.Document) { v.onSnapshot(gen, docs) },
		func(err error) { v.onError(gen, err) },
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscription, v.opts.Collection, err)
	}

	v.mu.Lock()
	if v.state.Closed {
		v.mu.Unlock()
		sub.Unsubscribe()
		return ErrClosed
	}
	if v.gen != gen {
		// superseded by a later Refresh
		v.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	v.sub = sub
	v.mu.Unlock()
	return nil
}

func (v *View) onSnapshot(gen uint64, docs []docstore.Document) {
	recs := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		if r, ok := v.opts.Schema.Normalize(d); ok {
			recs = append(recs, r)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Closed || gen != v.gen || v.state.Err != nil {
		return
	}
	v.state.Remote = recs
	v.state.Loading = false
	v.state.UpdatedAt = time.Now()
	v.bump()
}

func (v *View) onError(gen uint64, err error) {
	v.fail(gen, fmt.Errorf("%w: %w", ErrSubscription, err))
}

func (v *View) fail(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Closed || gen != v.gen {
		return
	}
	log.Warn().Err(err).Str("collection", v.opts.Collection).Msg("live: subscription failed")
	v.state.Err = err
	v.state.Loading = false
	v.bump()
}

// bump publishes a state change. Caller holds mu.
func (v *View) bump() {
	v.state.Version++
	close(v.changed)
	v.changed = make(chan struct{})
}

// State returns a copy of the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Changed returns a channel closed on the next state change. After Close it
// returns an already-closed channel.
func (v *View) Changed() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.changed
}

// Records merges the current remote snapshot with transient sources, given in
// decreasing priority, followed by the view's defaults.
func (v *View) Records(transient ...[]domain.Record) []domain.Record {
	return v.merge(v.State(), transient)
}

func (v *View) merge(st State, transient [][]domain.Record) []domain.Record {
	sources := make([][]domain.Record, 0, len(transient)+1)
	sources = append(sources, transient...)
	sources = append(sources, v.defaults)
	return Merge(st.Remote, sources...)
}

// Page is one projected read of a view.
type Page struct {
	Items     []domain.Record `json:"items"`
	Total     int             `json:"total"`
	Loading   bool            `json:"loading"`
	Version   uint64          `json:"version"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// Page merges and projects the current state. It fails with the terminal
// subscription error, if any, instead of returning a partial list.
func (v *View) Page(f Filter, o Order, transient ...[]domain.Record) (Page, error) {
	st := v.State()
	if st.Closed {
		return Page{}, ErrClosed
	}
	if st.Err != nil {
		return Page{}, st.Err
	}
	items := Project(v.merge(st, transient), f, o)
	p := Page{Items: items, Total: len(items), Loading: st.Loading, Version: st.Version}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		p.UpdatedAt = &t
	}
	return p, nil
}

// Refresh drops the current subscription, clears any error and subscribes
// again.
func (v *View) Refresh() error {
	v.mu.Lock()
	if v.state.Closed {
		v.mu.Unlock()
		return ErrClosed
	}
	old := v.sub
	v.sub = nil
	v.gen++
	gen := v.gen
	v.state.Err = nil
	v.state.Loading = true
	v.bump()
	v.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}
	if err := v.subscribe(gen); err != nil {
		v.fail(gen, err)
		return err
	}
	return nil
}

// Close releases the subscription. It is idempotent; callbacks that race with
// it are discarded.
func (v *View) Close() {
	v.mu.Lock()
	if v.state.Closed {
		v.mu.Unlock()
		return
	}
	v.state.Closed = true
	v.state.Version++
	sub := v.sub
	v.sub = nil
	close(v.changed)
	v.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
