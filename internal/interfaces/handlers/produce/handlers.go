package produce

import (
	"context"
	"errors"

	"agrihill-backend/internal/application/live"
	producesvc "agrihill-backend/internal/application/produce"
	"agrihill-backend/internal/interfaces/handlers/feedhttp"
	"agrihill-backend/internal/middleware"
	"agrihill-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *producesvc.Service
	Rdb     *redis.Client
	// Done closes on shutdown and ends open streams.
	Done <-chan struct{}
}

func (h *Handlers) feed(c *fiber.Ctx, incoming map[string]any) error {
	var q producesvc.Query
	if err := c.QueryParser(&q); err != nil {
		return response.Error(c, "Invalid query parameters", fiber.StatusBadRequest, nil)
	}
	page, err := h.Service.Feed(c.UserContext(), middleware.GetSessionID(c), q, incoming)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("produce: feed unavailable")
		return response.Unavailable(c, producesvc.ErrFeedUnavailable.Error())
	}
	return response.Success(c, "Produce fetched", page, fiber.Map{"filters": q})
}

// List GET /api/v1/produce
func (h *Handlers) List(c *fiber.Ctx) error {
	return h.feed(c, nil)
}

// Search POST /api/v1/produce/search: filters in the query string, an
// optional produce object in the body that is listed first.
func (h *Handlers) Search(c *fiber.Ctx) error {
	incoming, err := feedhttp.Incoming(c)
	if err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	return h.feed(c, incoming)
}

// Stream GET /api/v1/produce/stream: server-sent events.
func (h *Handlers) Stream(c *fiber.Ctx) error {
	var q producesvc.Query
	if err := c.QueryParser(&q); err != nil {
		return response.Error(c, "Invalid query parameters", fiber.StatusBadRequest, nil)
	}
	return feedhttp.Stream(c, h.Done, h.Service.Changed, func(ctx context.Context) (live.Page, error) {
		return h.Service.Feed(ctx, "", q, nil)
	}, producesvc.ErrFeedUnavailable.Error())
}

// Refresh POST /api/v1/produce/refresh: resubscribe after a connection failure.
func (h *Handlers) Refresh(c *fiber.Ctx) error {
	if err := h.Service.Refresh(); err != nil {
		log.Warn().Err(err).Msg("produce: refresh failed")
		return response.Unavailable(c, producesvc.ErrFeedUnavailable.Error())
	}
	return response.Success(c, "Reconnecting", fiber.Map{"version": h.Service.View.State().Version}, nil)
}

// Post POST /api/v1/produce: 201 with the posted record, 400 with field
// errors, or the classified write failure.
func (h *Handlers) Post(c *fiber.Ctx) error {
	var in producesvc.PostInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.Post(c.UserContext(), middleware.GetSessionID(c), in)
	if err != nil {
		if errors.Is(err, producesvc.ErrInvalidForm) {
			return feedhttp.Invalid(c, producesvc.ErrInvalidForm, err)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	if !res.Outcome.OK() {
		return feedhttp.PostFailed(c, h.Rdb, res.Outcome, res.Progress)
	}
	return response.SuccessCreated(c, res.Outcome.Message, fiber.Map{
		"id":     res.Outcome.ID,
		"record": res.Record,
		"reset":  res.Reset,
	}, fiber.Map{"attempts": res.Outcome.Attempts, "progress": res.Progress})
}
