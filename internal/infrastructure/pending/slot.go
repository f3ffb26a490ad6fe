// Package pending holds records a session has just posted so the next feed
// read shows them before the store's subscription catches up. Entries are
// read once and cleared.
package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agrihill-backend/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix  = "pending:"
	DefaultTTL = 10 * time.Minute
)

// Slot is a short-lived per-session list in Redis.
type Slot struct {
	Rdb *redis.Client
	TTL time.Duration
}

func key(session, feed string) string {
	return keyPrefix + session + ":" + feed
}

// Put appends rec to the session's slot for feed and refreshes the TTL.
func (s *Slot) Put(ctx context.Context, session, feed string, rec domain.Record) error {
	return s.push(ctx, session, feed, []domain.Record{rec})
}

// Restore puts back records returned by Take whose read did not reach the
// client. recs is in Take order.
func (s *Slot) Restore(ctx context.Context, session, feed string, recs []domain.Record) error {
	oldest := make([]domain.Record, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		oldest = append(oldest, recs[i])
	}
	return s.push(ctx, session, feed, oldest)
}

func (s *Slot) push(ctx context.Context, session, feed string, recs []domain.Record) error {
	if s == nil || s.Rdb == nil || session == "" || len(recs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(recs))
	for _, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode pending record: %w", err)
		}
		values = append(values, b)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := key(session, feed)
	_, err := s.Rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, values...)
		pipe.Expire(ctx, k, ttl)
		return nil
	})
	return err
}

// Take returns and clears the slot, most recent first. Entries that fail to
// decode are dropped.
func (s *Slot) Take(ctx context.Context, session, feed string) ([]domain.Record, error) {
	if s == nil || s.Rdb == nil || session == "" {
		return nil, nil
	}
	k := key(session, feed)
	var lrange *redis.StringSliceCmd
	_, err := s.Rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	raw := lrange.Val()
	out := make([]domain.Record, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var rec domain.Record
		if err := json.Unmarshal([]byte(raw[i]), &rec); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("pending: dropping undecodable record")
			continue
		}
		rec.Source = domain.SourceSession
		out = append(out, rec)
	}
	return out, nil
}
