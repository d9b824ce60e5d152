package main

import (
	"context"

	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mzheng-dev/sportsmeet/internal/api"
	"github.com/mzheng-dev/sportsmeet/internal/config"
	"github.com/mzheng-dev/sportsmeet/internal/db"
	"github.com/mzheng-dev/sportsmeet/internal/directory"
	"github.com/mzheng-dev/sportsmeet/internal/repository"
	"github.com/mzheng-dev/sportsmeet/internal/service"
	"github.com/mzheng-dev/sportsmeet/pkg/logger"
)

func main() {
	logger, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting application")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err = pool.Ping(context.Background()); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}

	logger.Info("database connection established")

	if err = db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	logger.Info("schema migrations applied")

	transactor := db.NewPgxTransactor(pool)

	eventRepo := repository.NewPgxEventRepository(pool)
	teamRepo := repository.NewPgxTeamRepository(pool)
	regRepo := repository.NewPgxRegistrationRepository(pool)

	students := directory.NewHTTPResolver(cfg.DirectoryBaseURL, cfg.DirectoryTimeout)

	engine := service.NewTeamService(transactor).
		WithEventRepo(eventRepo).
		WithTeamRepo(teamRepo).
		WithRegistrationRepo(regRepo)

	reg := service.NewRegistrationService(transactor).
		WithEventRepo(eventRepo).
		WithTeamRepo(teamRepo).
		WithRegistrationRepo(regRepo).
		WithDirectory(students).
		WithEngine(engine)

	healthChecker := api.MustNewHealthChecker(health.Config{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})

	e := echo.New()

	handler := api.NewHandler(logger).
		WithRegistrationService(reg).
		WithHealthChecker(healthChecker)

	handler.RegisterRoutes(e)

	logger.Info("server starting", zap.String("addr", cfg.HTTPAddr))
	if err = e.Start(cfg.HTTPAddr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
