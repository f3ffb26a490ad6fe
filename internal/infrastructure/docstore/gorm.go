package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"agrihill-backend/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const channelPrefix = "docstore:"

// GormStore keeps documents in the `documents` table and announces changes
// on a Redis channel per collection. Subscribers reload the whole ordered
// collection on every announcement.
type GormStore struct {
	DB       *gorm.DB
	Rdb      *redis.Client
	ReadOnly map[string]bool
}

// NewGormStore returns a store; collections named in readOnly reject writes
// with ErrPermissionDenied.
func NewGormStore(db *gorm.DB, rdb *redis.Client, readOnly []string) *GormStore {
	ro := make(map[string]bool, len(readOnly))
	for _, c := range readOnly {
		if c = strings.TrimSpace(c); c != "" {
			ro[c] = true
		}
	}
	return &GormStore{DB: db, Rdb: rdb, ReadOnly: ro}
}

// Channel returns the Redis channel announcing changes to collection.
func Channel(collection string) string {
	return channelPrefix + collection
}

func (s *GormStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	if s.ReadOnly[collection] {
		return "", fmt.Errorf("%w: collection %q is read-only", ErrPermissionDenied, collection)
	}
	body := serverFields(fields)
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	kind, _ := body["type"].(string)
	now := time.Now().UTC()
	doc := &domain.Document{
		Collection:  collection,
		Kind:        string(domain.KindOf(kind)),
		Fields:      datatypes.JSON(b),
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := s.DB.WithContext(ctx).Create(doc).Error; err != nil {
		return "", classify(err)
	}
	id := doc.DocumentID.String()
	if err := s.Rdb.Publish(ctx, Channel(collection), id).Err(); err != nil {
		// The write is durable. Subscribers on the same Redis fail with
		// ErrUnavailable and reload the whole collection once refreshed.
		log.Warn().Err(err).Str("collection", collection).Str("document_id", id).Msg("docstore: change announcement failed")
	}
	return id, nil
}

func (s *GormStore) Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	ps := s.Rdb.Subscribe(ctx, Channel(q.Collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		cancel()
		return nil, fmt.Errorf("%w: subscribe %s: %w", ErrUnavailable, q.Collection, err)
	}
	sub := &gormSubscription{cancel: cancel, ps: ps, done: make(chan struct{})}
	go sub.run(ctx, s, q, onSnapshot, onError)
	return sub, nil
}

// Snapshot loads the ordered contents of a collection once.
func (s *GormStore) Snapshot(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	var rows []domain.Document
	err := s.DB.WithContext(ctx).
		Where("collection = ?", q.Collection).
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.orderField()}, Desc: true}).
		Find(&rows).Error
	if err != nil {
		return nil, classify(err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		fields := map[string]any{}
		if len(row.Fields) > 0 {
			if err := json.Unmarshal(row.Fields, &fields); err != nil {
				log.Warn().Err(err).Str("document_id", row.DocumentID.String()).Msg("docstore: skipping undecodable document")
				continue
			}
		}
		docs = append(docs, Document{
			ID:          row.DocumentID.String(),
			Fields:      fields,
			CreatedAt:   row.CreatedAt,
			LastUpdated: row.LastUpdated,
		})
	}
	return docs, nil
}

type gormSubscription struct {
	cancel context.CancelFunc
	ps     *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

// run reloads the snapshot on every announcement. Any receive error ends the
// subscription with ErrUnavailable; the connection is never resubscribed
// behind the caller's back, since announcements sent meanwhile are gone.
func (g *gormSubscription) run(ctx context.Context, s *GormStore, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) {
	defer close(g.done)
	deliver := func() bool {
		docs, err := s.Snapshot(ctx, q)
		if ctx.Err() != nil {
			return false
		}
		if err != nil {
			onError(err)
			return false
		}
		onSnapshot(docs)
		return true
	}
	if !deliver() {
		return
	}
	for {
		msg, err := g.ps.ReceiveTimeout(ctx, changePingInterval)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if isTimeout(err) {
				// idle; make sure the connection is still there
				if err = g.ps.Ping(ctx); err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
			}
			log.Warn().Err(err).Str("collection", q.Collection).Msg("docstore: change feed lost")
			onError(fmt.Errorf("%w: %s change feed: %w", ErrUnavailable, q.Collection, err))
			return
		}
		if _, ok := msg.(*redis.Message); !ok {
			continue
		}
		if !deliver() {
			return
		}
	}
}

// changePingInterval is how long the change feed may stay silent before
// the connection is pinged.
var changePingInterval = 30 * time.Second

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (g *gormSubscription) Unsubscribe() {
	g.once.Do(func() {
		g.cancel()
		_ = g.ps.Close()
	})
	<-g.done
}
