package drivers

import (
	"errors"

	driversvc "agrihill-backend/internal/application/drivers"
	"agrihill-backend/internal/interfaces/handlers/feedhttp"
	"agrihill-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *driversvc.Service
}

// List GET /api/v1/drivers
func (h *Handlers) List(c *fiber.Ctx) error {
	var q driversvc.Query
	if err := c.QueryParser(&q); err != nil {
		return response.Error(c, "Invalid query parameters", fiber.StatusBadRequest, nil)
	}
	drivers := h.Service.Search(c.UserContext(), q)
	return response.Success(c, "Drivers fetched", fiber.Map{
		"items": drivers,
		"total": len(drivers),
	}, fiber.Map{"vehicles": h.Service.Vehicles(), "filters": q})
}

// Book POST /api/v1/drivers/:id/booking
func (h *Handlers) Book(c *fiber.Ctx) error {
	var in driversvc.BookingInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	booking, err := h.Service.Book(c.UserContext(), c.Params("id"), in)
	switch {
	case errors.Is(err, driversvc.ErrDriverNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, driversvc.ErrInvalidBooking):
		return feedhttp.Invalid(c, driversvc.ErrInvalidBooking, err)
	case err != nil:
		log.Error().Err(err).Msg("drivers: booking failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Booking request ready", booking, nil)
}
