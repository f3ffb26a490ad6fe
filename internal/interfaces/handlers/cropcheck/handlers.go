package cropcheck

import (
	"errors"
	"io"
	"net/http"

	cropsvc "agrihill-backend/internal/application/cropcheck"
	"agrihill-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// MaxImageBytes bounds the uploaded photo.
const MaxImageBytes = 8 << 20

type Handlers struct {
	Service *cropsvc.Service
}

// Check POST /api/v1/crop-check: multipart "image" plus optional "cropType".
func (h *Handlers) Check(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return response.Error(c, cropsvc.ErrImageRequired.Error(), fiber.StatusBadRequest, nil)
	}
	if fh.Size > MaxImageBytes {
		return response.Error(c, "Image is too large", fiber.StatusRequestEntityTooLarge, nil)
	}
	f, err := fh.Open()
	if err != nil {
		return response.Error(c, cropsvc.ErrImageRequired.Error(), fiber.StatusBadRequest, nil)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return response.Error(c, cropsvc.ErrImageRequired.Error(), fiber.StatusBadRequest, nil)
	}
	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}

	res, err := h.Service.Check(c.UserContext(), cropsvc.Image{Data: data, MIMEType: mime}, c.FormValue("cropType"))
	switch {
	case errors.Is(err, cropsvc.ErrImageRequired):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	case errors.Is(err, cropsvc.ErrNotConfigured):
		return response.Error(c, err.Error(), fiber.StatusServiceUnavailable, nil)
	case err != nil:
		log.Error().Err(err).Msg("cropcheck: analysis failed")
		return response.Error(c, cropsvc.ErrModel.Error(), fiber.StatusBadGateway, nil)
	}
	return response.Success(c, "Crop check complete", res, nil)
}
