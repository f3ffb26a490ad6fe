package cropcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	cropsvc "agrihill-backend/internal/application/cropcheck"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	text string
	err  error
	got  cropsvc.Image
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, img cropsvc.Image) (string, error) {
	f.got = img
	return f.text, f.err
}

func multipartRequest(t *testing.T, image []byte, cropType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if image != nil {
		part, err := w.CreateFormFile("image", "leaf.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("cropType", cropType))
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/crop-check", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func setupCropTest(a cropsvc.Analyzer) *fiber.App {
	h := &Handlers{Service: &cropsvc.Service{Analyzer: a}}
	app := fiber.New()
	app.Post("/crop-check", h.Check)
	return app
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestCheck_Success(t *testing.T) {
	fa := &fakeAnalyzer{text: `{"is_healthy":false,"top_conditions":[{"label":"Leaf blight","confidence":0.82}],"advice":["Remove infected leaves"]}`}
	app := setupCropTest(fa)

	resp, err := app.Test(multipartRequest(t, pngHeader, "tomato"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", fa.got.MIMEType)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	data := out["data"].(map[string]interface{})
	assert.Equal(t, false, data["is_healthy"])
	assert.Len(t, data["top_conditions"], 1)
}

func TestCheck_MissingImage(t *testing.T) {
	app := setupCropTest(&fakeAnalyzer{})
	resp, err := app.Test(multipartRequest(t, nil, "tomato"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheck_NotConfigured(t *testing.T) {
	app := setupCropTest(nil)
	resp, err := app.Test(multipartRequest(t, pngHeader, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCheck_ModelError(t *testing.T) {
	app := setupCropTest(&fakeAnalyzer{err: errors.New("quota")})
	resp, err := app.Test(multipartRequest(t, pngHeader, "rice"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
