package auth

import (
	"context"
	"errors"

	authsvc "agrihill-backend/internal/application/auth"
	"agrihill-backend/internal/domain"
	"agrihill-backend/internal/middleware"
	"agrihill-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// loginFailed is what the client sees for any bad email/password pair.
const loginFailed = "Invalid credentials or user not found"

// Signupper creates accounts.
type Signupper interface {
	Signup(ctx context.Context, email, password string) (*domain.User, error)
}

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	UserFinder authsvc.UserFinder
	Signupper  Signupper
	Rdb        *redis.Client
	Config     middleware.SessionConfig
}

// Credentials is the signup and login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup POST /api/v1/auth/signup: create the account and sign it in.
func (h *Handlers) Signup(c *fiber.Ctx) error {
	if h.Signupper == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req Credentials
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, authsvc.ErrEmailPasswordRequired.Error(), fiber.StatusBadRequest, nil)
	}
	user, err := h.Signupper.Signup(c.UserContext(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired),
			errors.Is(err, authsvc.ErrInvalidEmailFormat),
			errors.Is(err, authsvc.ErrWeakPassword):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrEmailTaken):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		default:
			log.Error().Err(err).Msg("auth/signup: create user failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	if err := h.startSession(c, user); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.SuccessCreated(c, "Account created", fiber.Map{"user": sessionShape(user)}, nil)
}

// Login POST /api/v1/auth/login: authenticate, create session, SAdd user_sessions:user_id, set cookie.
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.UserFinder == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req Credentials
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, authsvc.ErrEmailPasswordRequired.Error(), fiber.StatusBadRequest, nil)
	}
	if req.Email == "" || req.Password == "" {
		return response.Error(c, authsvc.ErrEmailPasswordRequired.Error(), fiber.StatusBadRequest, nil)
	}

	user, err := h.UserFinder.FindByEmailAndPassword(c.UserContext(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrInvalidEmail), errors.Is(err, authsvc.ErrIncorrectPassword):
			log.Info().Err(err).Msg("auth/login: rejected")
			return response.Error(c, loginFailed, fiber.StatusUnauthorized, nil)
		default:
			log.Error().Err(err).Msg("auth/login: lookup failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}

	if err := h.startSession(c, user); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Login successful", fiber.Map{"user": sessionShape(user)}, nil)
}

func (h *Handlers) startSession(c *fiber.Ctx, user *domain.User) error {
	sessionID := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID: user.UserID.String(),
		Email:  user.Email,
	})
	if err := h.Rdb.SAdd(c.UserContext(), authsvc.UserSessionsPrefix+user.UserID.String(), sessionID).Err(); err != nil {
		log.Error().Err(err).Msg("auth: track session failed")
		return err
	}
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)
	return nil
}

func sessionShape(u *domain.User) authsvc.SessionUserShape {
	return authsvc.SessionUserShape{UserID: u.UserID.String(), Email: u.Email}
}

// Me GET /api/v1/auth/me: return current session user in standard success format.
func (h *Handlers) Me(c *fiber.Ctx) error {
	sessionUser := middleware.GetUser(c)
	user, err := authsvc.VerifyUser(sessionUser)
	if err != nil {
		log.Debug().Str("path", "/auth/me").
			Bool("cookie_present", c.Cookies(middleware.SessionCookieName) != "").
			Bool("session_user_nil", sessionUser == nil).
			Msg("auth/me: not authenticated")
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}
	return response.Success(c, "Authenticated", fiber.Map{"user": user}, nil)
}

// Logout DELETE /api/v1/auth/logout: SRem user_sessions:user_id, Del session key, clear cookie.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	ctx := c.UserContext()

	if sessionID != "" {
		if userID := middleware.GetUserID(c); userID != "" {
			_ = h.Rdb.SRem(ctx, authsvc.UserSessionsPrefix+userID, sessionID).Err()
		}
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}
	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.MaxAge = -1
	c.Cookie(&cookie)
	return response.Success(c, "Logged out successfully", nil, nil)
}

// LogoutAll DELETE /api/v1/auth/sessions: end every session of the signed-in user.
func (h *Handlers) LogoutAll(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	n, err := authsvc.DestroyUserSessions(c.UserContext(), h.Rdb, userID)
	if err != nil {
		log.Error().Err(err).Msg("auth: destroy sessions failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	middleware.DestroySession(c)
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.MaxAge = -1
	c.Cookie(&cookie)
	return response.Success(c, "Signed out of all sessions", fiber.Map{"sessions": n}, nil)
}
