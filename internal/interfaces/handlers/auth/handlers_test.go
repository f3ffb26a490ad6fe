package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	authsvc "agrihill-backend/internal/application/auth"
	"agrihill-backend/internal/domain"
	"agrihill-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeUserFinder for tests: returns configured user or error.
type fakeUserFinder struct {
	user *domain.User
	err  error
}

func (f *fakeUserFinder) FindByEmailAndPassword(_ context.Context, email, password string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user != nil && f.user.Email == email && password == "password123" {
		return f.user, nil
	}
	if f.user != nil && f.user.Email == email {
		return nil, authsvc.ErrIncorrectPassword
	}
	return nil, authsvc.ErrInvalidEmail
}

func setupAuthHandlers(t *testing.T, finder authsvc.UserFinder) (*Handlers, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	h := &Handlers{
		UserFinder: finder,
		Rdb:        rdb,
		Config:     middleware.SessionConfig{},
	}
	return h, rdb
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(http.MethodPost, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestLogin_EmptyBody(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{}})
	app := fiber.New()
	app.Post("/login", h.Login)

	resp := postJSON(t, app, "/login", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLogin_MissingCredentials(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Post("/login", h.Login)

	resp := postJSON(t, app, "/login", map[string]string{"email": "a@b.com"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	uid := uuid.New()
	h, _ := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{UserID: uid, Email: "test@example.com"}})
	app := fiber.New()
	app.Post("/login", h.Login)

	for _, body := range []map[string]string{
		{"email": "nonexistent@example.com", "password": "any"},
		{"email": "test@example.com", "password": "wrong"},
	} {
		resp := postJSON(t, app, "/login", body)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		out := decode(t, resp)
		errObj, _ := out["error"].(map[string]interface{})
		assert.Equal(t, "Invalid credentials or user not found", errObj["message"])
	}
}

func TestLogin_Success(t *testing.T) {
	uid := uuid.New()
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{UserID: uid, Email: "test@example.com"}})
	app := fiber.New()
	app.Post("/login", h.Login)

	resp := postJSON(t, app, "/login", map[string]string{"email": "test@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "Login successful", out["message"])
	data, _ := out["data"].(map[string]interface{})
	require.NotNil(t, data)
	user, _ := data["user"].(map[string]interface{})
	require.NotNil(t, user)
	assert.Equal(t, "test@example.com", user["email"])
	assert.Equal(t, uid.String(), user["user_id"])

	cookies := resp.Header.Values("Set-Cookie")
	require.NotEmpty(t, cookies)
	assert.Contains(t, cookies[0], "agrihill.sid=")

	members, err := rdb.SMembers(context.Background(), "user_sessions:"+uid.String()).Result()
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestLogin_NilUserFinder(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	app := fiber.New()
	app.Post("/login", h.Login)

	resp := postJSON(t, app, "/login", map[string]string{"email": "a@b.com", "password": "pass"})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestSignup(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))
	svc := &authsvc.Service{DB: db}

	h, _ := setupAuthHandlers(t, svc)
	h.Signupper = svc
	app := fiber.New()
	app.Post("/signup", h.Signup)
	app.Post("/login", h.Login)

	resp := postJSON(t, app, "/signup", map[string]string{"email": "grower@example.com", "password": "123"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	errObj, _ := decode(t, resp)["error"].(map[string]interface{})
	assert.Equal(t, "Password should be at least 6 characters", errObj["message"])

	resp = postJSON(t, app, "/signup", map[string]string{"email": "grower@example.com", "password": "harvest"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "agrihill.sid=s:")

	resp = postJSON(t, app, "/signup", map[string]string{"email": "grower@example.com", "password": "harvest"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = postJSON(t, app, "/login", map[string]string{"email": "grower@example.com", "password": "harvest"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMe_NoSession(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Get("/me", h.Me)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMe_WithSessionUserInLocals(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Get("/me", func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id": "550e8400-e29b-41d4-a716-446655440000",
			"email":   "test@example.com",
		})
		return h.Me(c)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, "Authenticated", out["message"])
	data, _ := out["data"].(map[string]interface{})
	user, _ := data["user"].(map[string]interface{})
	assert.Equal(t, "test@example.com", user["email"])
}

func TestLogout_ClearsSession(t *testing.T) {
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{})
	ctx := context.Background()
	require.NoError(t, rdb.Set(ctx, middleware.SessionRedisPrefix+"sid-1", `{"user":{}}`, 0).Err())
	require.NoError(t, rdb.SAdd(ctx, "user_sessions:u-1", "sid-1").Err())

	app := fiber.New()
	app.Delete("/logout", func(c *fiber.Ctx) error {
		c.Locals("session_id", "sid-1")
		c.Locals("user", map[string]interface{}{"user_id": "u-1"})
		return h.Logout(c)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Values("Set-Cookie"))

	n, _ := rdb.Exists(ctx, middleware.SessionRedisPrefix+"sid-1").Result()
	assert.Zero(t, n)
	members, _ := rdb.SMembers(ctx, "user_sessions:u-1").Result()
	assert.Empty(t, members)
}

func TestLogoutAll_EndsEverySession(t *testing.T) {
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{})
	ctx := context.Background()
	for _, sid := range []string{"sid-1", "sid-2"} {
		require.NoError(t, rdb.Set(ctx, middleware.SessionRedisPrefix+sid, `{"user":{}}`, 0).Err())
		require.NoError(t, rdb.SAdd(ctx, "user_sessions:u-1", sid).Err())
	}

	app := fiber.New()
	app.Delete("/sessions", func(c *fiber.Ctx) error {
		c.Locals("session_id", "sid-1")
		c.Locals("user", map[string]interface{}{"user_id": "u-1"})
		return h.LogoutAll(c)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/sessions", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	data, _ := out["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["sessions"])

	n, _ := rdb.Exists(ctx, middleware.SessionRedisPrefix+"sid-1", middleware.SessionRedisPrefix+"sid-2", "user_sessions:u-1").Result()
	assert.Zero(t, n)
}
