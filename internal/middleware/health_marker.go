package middleware

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys read by the health endpoints.
const (
	KeyReqTotal   = "health:global:req_total"
	KeyReqErrors  = "health:global:req_errors"
	KeyResTime    = "health:global:res_time_total"
	KeyResCount   = "health:global:res_count"
	KeyStartTime  = "health:global:start_time"
	KeyLastReq    = "health:global:last_request"
	KeyErrorLog   = "health:global:error_log"
	KeyPostFailed = "health:global:post_failed"
)

// HealthMarker records request stats in Redis (skip /, /health*, favicon and streams).
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon") || strings.HasSuffix(path, "/stream") {
			return c.Next()
		}

		start := time.Now()
		b, _ := json.Marshal(map[string]interface{}{
			"time":   start,
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		})
		ctx := c.UserContext()
		_, _ = rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, KeyLastReq, b, 0)
			p.Incr(ctx, KeyReqTotal)
			return nil
		})

		err := c.Next()

		status := c.Response().StatusCode()
		_, _ = rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.Incr(ctx, KeyResCount)
			p.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
			if status >= 500 {
				p.Incr(ctx, KeyReqErrors)
			}
			return nil
		})
		return err
	}
}

// errorLogSize bounds the list served by /health/errors.
const errorLogSize = 50

// MarkPostFailure counts a listing write that exhausted its retries and
// appends it to the error log.
func MarkPostFailure(c *fiber.Ctx, rdb *redis.Client, class, message string) {
	if rdb == nil {
		return
	}
	b, _ := json.Marshal(map[string]interface{}{
		"time":     time.Now(),
		"path":     c.Path(),
		"method":   c.Method(),
		"class":    class,
		"message":  message,
		"trace_id": GetTraceID(c),
	})
	ctx := c.UserContext()
	_, _ = rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, KeyPostFailed, class, 1)
		p.LPush(ctx, KeyErrorLog, b)
		p.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
		return nil
	})
}
