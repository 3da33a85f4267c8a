package server

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/cache"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/events"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/handlers"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/middleware"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/repository"
	"github.com/Sidd-007/experiment-analytics/cmd/analytics-engine/internal/services"
	"github.com/Sidd-007/experiment-analytics/pkg/auth"
	"github.com/Sidd-007/experiment-analytics/pkg/config"
	"github.com/Sidd-007/experiment-analytics/pkg/rbac"
)

type Server struct {
	config *config.Config
	logger zerolog.Logger

	clickhouse clickhouse.Conn
	db         *pgxpool.Pool
	redis      *redis.Client
	nats       *nats.Conn

	// Services
	statsService      services.StatisticsService
	experimentService services.ExperimentService

	// Handlers
	handlers *handlers.Handlers
}

func NewServer(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger.With().Str("component", "server").Logger(),
	}

	s.logger.Info().Msg("Initializing Analytics Engine server")

	steps := []struct {
		name string
		init func() error
	}{
		{"clickhouse", s.initClickHouse},
		{"database", s.initDatabase},
		{"redis", s.initRedis},
		{"nats", s.initNATS},
		{"services", s.initServices},
	}
	for _, step := range steps {
		if err := step.init(); err != nil {
			if closeErr := s.Cleanup(); closeErr != nil {
				s.logger.Error().Err(closeErr).Msg("Cleanup after failed initialization")
			}
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	s.logger.Info().Msg("Analytics Engine server initialized successfully")
	return s, nil
}

func (s *Server) initServices() error {
	counterRepo := repository.NewCounterRepository(s.clickhouse, s.logger)
	experimentRepo := repository.NewExperimentRepository(s.db, s.logger)
	reportCache := cache.NewReportCache(s.redis, s.config.Analytics.CacheTTL, s.logger)
	publisher := events.NewPublisher(s.nats, s.config.NATS.SubjectPrefix, s.logger)

	s.statsService = services.NewStatisticsService(s.config.Analytics, s.logger)
	s.experimentService = services.NewExperimentService(
		experimentRepo,
		counterRepo,
		reportCache,
		publisher,
		s.config.Analytics,
		s.logger,
	)

	enforcer, err := rbac.NewRBAC()
	if err != nil {
		return fmt.Errorf("failed to initialize RBAC: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(
		auth.NewTokenManager(s.config.Auth.JWTSecret),
		auth.NewAPIKeyManager(s.config.Auth.BCryptCost, s.config.Auth.APIKeys),
		enforcer,
		s.logger,
	)

	s.handlers = handlers.NewHandlers(s.experimentService, s.statsService, authMiddleware, map[string]handlers.ReadinessCheck{
		"clickhouse": s.clickhouse.Ping,
		"postgres":   s.db.Ping,
		"redis": func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		},
		"nats": func(context.Context) error {
			if !s.nats.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		},
	})

	return nil
}

func (s *Server) RegisterRoutes(r chi.Router) {
	s.logger.Info().Msg("Registering Analytics Engine routes")

	// Health endpoints
	r.Get("/health", s.handlers.Health)
	r.Get("/ready", s.handlers.Ready)

	authz := s.handlers.AuthMiddleware

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authz.Authenticate)

		// Stateless statistics over caller-supplied counters
		r.Route("/stats", func(r chi.Router) {
			r.Use(authz.Require(rbac.ObjectAnalytics, rbac.ActionRead))

			r.Post("/sample-size", s.handlers.PlanSampleSize)
			r.Post("/significance", s.handlers.TestSignificance)
			r.Post("/power", s.handlers.AnalyzePower)
			r.Post("/impact", s.handlers.ProjectImpact)
			r.Post("/assumptions", s.handlers.ValidateAssumptions)
			r.Post("/analyze", s.handlers.Analyze)
		})

		r.Route("/experiments", func(r chi.Router) {
			r.With(authz.Require(rbac.ObjectExperiment, rbac.ActionCreate)).Post("/", s.handlers.CreateExperiment)
			r.With(authz.Require(rbac.ObjectExperiment, rbac.ActionRead)).Get("/", s.handlers.ListExperiments)

			r.Route("/{experimentId}", func(r chi.Router) {
				r.With(authz.Require(rbac.ObjectExperiment, rbac.ActionRead)).Get("/", s.handlers.GetExperiment)
				r.With(authz.Require(rbac.ObjectExperiment, rbac.ActionUpdate)).Put("/status", s.handlers.UpdateExperimentStatus)
				r.With(authz.Require(rbac.ObjectAnalytics, rbac.ActionRead)).Get("/analysis", s.handlers.GetExperimentAnalysis)
			})
		})
	})

	s.logger.Info().Msg("Analytics Engine routes registered")
}

// Cleanup closes whatever connections were opened.
func (s *Server) Cleanup() error {
	s.logger.Info().Msg("Cleaning up Analytics Engine resources")

	var errs []error

	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if s.db != nil {
		s.db.Close()
	}

	if s.clickhouse != nil {
		if err := s.clickhouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %v", errs)
	}

	s.logger.Info().Msg("Analytics Engine cleanup completed")
	return nil
}

func (s *Server) initClickHouse() error {
	cfg := s.config.ClickHouse

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connecting to ClickHouse")

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{s.config.GetClickHouseAddr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": cfg.MaxExecutionTime,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s.clickhouse = conn
	s.logger.Info().Msg("Successfully connected to ClickHouse")
	return nil
}

func (s *Server) initDatabase() error {
	dbConfig, err := pgxpool.ParseConfig(s.config.GetDatabaseDSN())
	if err != nil {
		return fmt.Errorf("failed to parse database config: %w", err)
	}

	dbConfig.MaxConns = int32(s.config.Database.MaxOpenConns)
	dbConfig.MinConns = int32(s.config.Database.MaxIdleConns)
	dbConfig.MaxConnLifetime = s.config.Database.MaxLifetime

	s.db, err = pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := s.db.Ping(context.Background()); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.logger.Info().Msg("Database connection established")
	return nil
}

func (s *Server) initRedis() error {
	s.redis = redis.NewClient(&redis.Options{
		Addr:         s.config.GetRedisAddr(),
		Password:     s.config.Redis.Password,
		DB:           s.config.Redis.Database,
		PoolSize:     s.config.Redis.PoolSize,
		DialTimeout:  s.config.Redis.DialTimeout,
		ReadTimeout:  s.config.Redis.ReadTimeout,
		WriteTimeout: s.config.Redis.WriteTimeout,
	})

	if err := s.redis.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.Info().Msg("Redis connection established")
	return nil
}

func (s *Server) initNATS() error {
	opts := []nats.Option{
		nats.Name("analytics-engine"),
		nats.MaxReconnects(s.config.NATS.MaxReconnect),
		nats.ReconnectWait(s.config.NATS.ReconnectWait),
		nats.Timeout(s.config.NATS.Timeout),
	}

	var err error
	s.nats, err = nats.Connect(s.config.NATS.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.logger.Info().Msg("NATS connection established")
	return nil
}
