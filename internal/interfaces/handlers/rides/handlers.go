package rides

import (
	"context"
	"errors"
	"net/url"

	"agrihill-backend/internal/application/live"
	ridesvc "agrihill-backend/internal/application/rides"
	"agrihill-backend/internal/interfaces/handlers/feedhttp"
	"agrihill-backend/internal/middleware"
	"agrihill-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *ridesvc.Service
	Rdb     *redis.Client
	Done    <-chan struct{}
}

func queryValues(c *fiber.Ctx) url.Values {
	v := url.Values{}
	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		v.Add(string(key), string(value))
	})
	return v
}

func (h *Handlers) feed(c *fiber.Ctx, nav map[string]any) error {
	var q ridesvc.Query
	if err := c.QueryParser(&q); err != nil {
		return response.Error(c, "Invalid query parameters", fiber.StatusBadRequest, nil)
	}
	page, err := h.Service.Feed(c.UserContext(), middleware.GetSessionID(c), q, ridesvc.Incoming{
		Navigation: nav,
		Params:     queryValues(c),
	})
	if err != nil {
		log.Warn().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("rides: feed unavailable")
		return response.Unavailable(c, ridesvc.ErrFeedUnavailable.Error())
	}
	return response.Success(c, "Rides fetched", page, fiber.Map{"filters": q})
}

// List GET /api/v1/rides: ride fields among the query parameters are shown
// as a ride of their own.
func (h *Handlers) List(c *fiber.Ctx) error {
	return h.feed(c, nil)
}

// Search POST /api/v1/rides/search
func (h *Handlers) Search(c *fiber.Ctx) error {
	nav, err := feedhttp.Incoming(c)
	if err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	return h.feed(c, nav)
}

// Stream GET /api/v1/rides/stream
func (h *Handlers) Stream(c *fiber.Ctx) error {
	var q ridesvc.Query
	if err := c.QueryParser(&q); err != nil {
		return response.Error(c, "Invalid query parameters", fiber.StatusBadRequest, nil)
	}
	return feedhttp.Stream(c, h.Done, h.Service.Changed, func(ctx context.Context) (live.Page, error) {
		return h.Service.Feed(ctx, "", q, ridesvc.Incoming{})
	}, ridesvc.ErrFeedUnavailable.Error())
}

// Refresh POST /api/v1/rides/refresh
func (h *Handlers) Refresh(c *fiber.Ctx) error {
	if err := h.Service.Refresh(); err != nil {
		log.Warn().Err(err).Msg("rides: refresh failed")
		return response.Unavailable(c, ridesvc.ErrFeedUnavailable.Error())
	}
	return response.Success(c, "Reconnecting", fiber.Map{"version": h.Service.View.State().Version}, nil)
}

// Post POST /api/v1/rides
func (h *Handlers) Post(c *fiber.Ctx) error {
	var in ridesvc.PostInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.Post(c.UserContext(), middleware.GetSessionID(c), in)
	if err != nil {
		if errors.Is(err, ridesvc.ErrInvalidForm) {
			return feedhttp.Invalid(c, ridesvc.ErrInvalidForm, err)
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
