package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	authsvc "agrihill-backend/internal/application/auth"
	"agrihill-backend/internal/application/cropcheck"
	"agrihill-backend/internal/application/drivers"
	healthsvc "agrihill-backend/internal/application/health"
	"agrihill-backend/internal/application/produce"
	"agrihill-backend/internal/application/rides"
	"agrihill-backend/internal/config"
	"agrihill-backend/internal/infrastructure/database"
	"agrihill-backend/internal/infrastructure/docstore"
	"agrihill-backend/internal/infrastructure/pending"
	authhandler "agrihill-backend/internal/interfaces/handlers/auth"
	crophandler "agrihill-backend/internal/interfaces/handlers/cropcheck"
	driverhandler "agrihill-backend/internal/interfaces/handlers/drivers"
	healthhandler "agrihill-backend/internal/interfaces/handlers/health"
	producehandler "agrihill-backend/internal/interfaces/handlers/produce"
	ridehandler "agrihill-backend/internal/interfaces/handlers/rides"
	"agrihill-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Services are the long-lived dependencies behind the app. Close releases
// them; the feeds stop their subscriptions and open streams end.
type Services struct {
	DB      *gorm.DB
	Rdb     *redis.Client
	Store   docstore.Store
	Produce *produce.Service
	Rides   *rides.Service

	done     chan struct{}
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// StopFeeds ends open streams and closes both views. Storage stays open so
// in-flight requests can finish.
func (s *Services) StopFeeds() {
	s.stopOnce.Do(func() {
		if s.done != nil {
			close(s.done)
		}
		if s.Produce != nil {
			s.Produce.Close()
		}
		if s.Rides != nil {
			s.Rides.Close()
		}
	})
}

func (s *Services) Close() {
	s.StopFeeds()
	if s.cancel != nil {
		s.cancel()
	}
	if s.Rdb != nil {
		_ = s.Rdb.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Open connects storage and opens both live feeds concurrently.
func Open(ctx context.Context, cfg *config.Config, rdb *redis.Client) (*Services, error) {
	svc := &Services{Rdb: rdb, done: make(chan struct{})}
	ctx, svc.cancel = context.WithCancel(ctx)

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := database.Open(dsn)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	svc.DB = db
	if err := database.AutoMigrate(db); err != nil {
		svc.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.DatabaseURL == "" {
		mem := docstore.NewMemory()
		for _, c := range cfg.ReadOnlyCollections {
			mem.ReadOnly[c] = true
		}
		svc.Store = mem
		log.Warn().Msg("DATABASE_URL not set: feeds run on the in-memory store")
	} else {
		svc.Store = docstore.NewGormStore(db, rdb, cfg.ReadOnlyCollections)
	}

	slot := &pending.Slot{Rdb: rdb, TTL: cfg.PendingTTL}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := produce.New(ctx, svc.Store, slot, produce.Config{
			Collection:  cfg.ListingsCollection,
			MaxAttempts: cfg.SubmitMaxAttempts,
			RetryDelay:  cfg.SubmitRetryDelay,
		})
		if err != nil {
			return err
		}
		svc.Produce = s
		return gctx.Err()
	})
	g.Go(func() error {
		s, err := rides.New(ctx, svc.Store, slot, rides.Config{
			Collection:  cfg.ListingsCollection,
			MaxAttempts: cfg.SubmitMaxAttempts,
			RetryDelay:  cfg.SubmitRetryDelay,
		})
		if err != nil {
			return err
		}
		svc.Rides = s
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

// Done closes when the services shut down.
func (s *Services) Done() <-chan struct{} { return s.done }

// CreateApp builds the Fiber app with all global middleware and route registration.
func CreateApp(ctx context.Context, cfg *config.Config) (*fiber.App, *Services, error) {
	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.IsProduction(),
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("session: %w", err)
	}
	svc, err := Open(ctx, cfg, rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	var analyzer cropcheck.Analyzer
	if ga, err := cropcheck.NewGenAI(ctx, cfg.GeminiAPIKey, cfg.GeminiModel); err == nil {
		analyzer = ga
	} else if !errors.Is(err, cropcheck.ErrNotConfigured) {
		log.Warn().Err(err).Msg("crop check disabled")
	}

	app := New(cfg, svc, sessionHandler, analyzer)
	return app, svc, nil
}

// New registers middleware and routes over already opened services.
func New(cfg *config.Config, svc *Services, sessionHandler fiber.Handler, analyzer cropcheck.Analyzer) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
		BodyLimit:               10 << 20,
	})

	app.Use(middleware.Tracing())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.FrontendURLEndsWith,
		DevPassword:    cfg.DevPassword,
		AllowLocalhost: !cfg.IsProduction(),
	}))
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(svc.Rdb))
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb: svc.Rdb,
		Feeds: map[string]healthsvc.Feed{
			"produce": svc.Produce.View,
			"rides":   svc.Rides.View,
		},
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if svc.DB != nil {
		if sqlDB, err := svc.DB.DB(); err == nil {
			hh.DB = sqlDB
		}
	}
	app.Get("/api/health", hh.Live)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/health/reset", hh.Reset)

	users := &authsvc.Service{DB: svc.DB}
	ah := &authhandler.Handlers{
		UserFinder: users,
		Signupper:  users,
		Rdb:        svc.Rdb,
		Config: middleware.SessionConfig{
			Secret:            cfg.SessionSecret,
			RedisURL:          cfg.RedisURL,
			AllowCrossSiteDev: cfg.AllowCrossSiteDev,
			IsProduction:      cfg.IsProduction(),
		},
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/signup", ah.Signup)
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)
	authGroup.Delete("/sessions", middleware.RequireAuth(), ah.LogoutAll)

	ph := &producehandler.Handlers{Service: svc.Produce, Rdb: svc.Rdb, Done: svc.Done()}
	produceGroup := app.Group("/api/v1/produce")
	produceGroup.Get("/", ph.List)
	produceGroup.Post("/search", ph.Search)
	produceGroup.Get("/stream", ph.Stream)
	produceGroup.Post("/refresh", ph.Refresh)
	produceGroup.Post("/", middleware.RequireAuth(), ph.Post)

	rh := &ridehandler.Handlers{Service: svc.Rides, Rdb: svc.Rdb, Done: svc.Done()}
	rideGroup := app.Group("/api/v1/rides", middleware.RequireAuth())
	rideGroup.Get("/", rh.List)
	rideGroup.Post("/search", rh.Search)
	rideGroup.Get("/stream", rh.Stream)
	rideGroup.Post("/refresh", rh.Refresh)
	rideGroup.Post("/", rh.Post)

	dh := &driverhandler.Handlers{Service: drivers.NewService(drivers.Directory())}
	app.Get("/api/v1/drivers", dh.List)
	app.Post("/api/v1/drivers/:id/booking", dh.Book)

	ch := &crophandler.Handlers{Service: &cropcheck.Service{Analyzer: analyzer}}
	app.Post("/api/v1/crop-check", ch.Check)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Route not found")
	})
	return app
}
