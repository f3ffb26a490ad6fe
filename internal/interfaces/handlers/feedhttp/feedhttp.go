// Package feedhttp holds the HTTP pieces shared by the live feed handlers:
// the server-sent event stream and the mapping of write outcomes to
// responses.
package feedhttp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agrihill-backend/internal/application/live"
	"agrihill-backend/internal/middleware"
	"agrihill-backend/internal/pkg/response"
	"agrihill-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KeepAlive is the interval between SSE comment frames on an idle stream.
var KeepAlive = 15 * time.Second

// PageFunc reads the current page of a feed.
type PageFunc func(ctx context.Context) (live.Page, error)

// Stream serves a feed as server-sent events: a "page" event now and after
// every change, an "error" event while the subscription is down and a final
// "closed" event when the view shuts. done ends the stream on shutdown.
func Stream(c *fiber.Ctx, done <-chan struct{}, changed func() <-chan struct{}, page PageFunc, failMsg string) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	traceID := middleware.GetTraceID(c)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if done != nil {
			go func() {
				select {
				case <-done:
					cancel()
				case <-ctx.Done():
				}
			}()
		}
		keepalive := time.NewTicker(KeepAlive)
		defer keepalive.Stop()

		for {
			next := changed()
			p, err := page(ctx)
			switch {
			case errors.Is(err, live.ErrClosed):
				_ = writeEvent(w, "closed", 0, fiber.Map{"message": "feed closed"})
				return
			case err != nil:
				if werr := writeEvent(w, "error", 0, fiber.Map{"message": failMsg}); werr != nil {
					return
				}
			default:
				if werr := writeEvent(w, "page", p.Version, p); werr != nil {
					log.Debug().Str("trace_id", traceID).Err(werr).Msg("stream: client gone")
					return
				}
			}

		wait:
			for {
				select {
				case <-next:
					break wait
				case <-ctx.Done():
					return
				case <-keepalive.C:
					if _, err := w.WriteString(": ping\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event string, id uint64, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return w.Flush()
}

// PostStatus maps a failed write to its HTTP status.
func PostStatus(class live.ErrorClass) int {
	switch class {
	case live.ClassPermissionDenied:
		return fiber.StatusForbidden
	case live.ClassUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadGateway
	}
}

// PostFailed renders a write that exhausted its retries and records it for
// the health endpoints.
func PostFailed(c *fiber.Ctx, rdb *redis.Client, o live.Outcome, progress []string) error {
	middleware.MarkPostFailure(c, rdb, string(o.Class), o.Message)
	return response.ErrorWithMetadata(c, o.Message, PostStatus(o.Class),
		fiber.Map{"class": o.Class},
		fiber.Map{"attempts": o.Attempts, "progress": progress},
	)
}

// Invalid renders a form rejected before any write, with per-field messages
// as details.
func Invalid(c *fiber.Ctx, sentinel, err error) error {
	var fe validation.FieldErrors
	if !errors.As(err, &fe) {
		fe = validation.FieldErrors{}
	}
	return response.Error(c, sentinel.Error(), fiber.StatusBadRequest, fe)
}

// Incoming decodes an optional JSON object from the request body. An empty
// body yields nil.
func Incoming(c *fiber.Ctx) (map[string]any, error) {
	body := c.Body()
	if len(body) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return m, nil
}
