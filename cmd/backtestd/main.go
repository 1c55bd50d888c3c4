// Package main wires backtestd's daemon: config, database, observability,
// the algorithm registry, and the HTTP control plane, then serves until
// an interrupt signal arrives. Grounded on the teacher's cmd/ares/main.go
// bootstrap sequence (config load -> DB connect -> OTel setup -> event bus
// -> gin router -> graceful shutdown), adapted to this service's much
// smaller collaborator set.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"backtestd/internal/algorithms"
	"backtestd/internal/api"
	"backtestd/internal/auth"
	"backtestd/internal/backtest"
	"backtestd/internal/config"
	"backtestd/internal/docs"
	"backtestd/internal/eventbus"
	applogger "backtestd/internal/logger"
	"backtestd/internal/middleware"
	"backtestd/internal/monitoring"
	"backtestd/internal/observability"
	"backtestd/internal/repositories"
	"backtestd/internal/storage"
)

// migrateAncillaryTables creates the schema for the logging, config-hot-
// reload, and tracing side tables that live outside internal/repositories
// (each owned by the package that uses it, per the teacher's per-package
// TableName convention).
func migrateAncillaryTables(db *gorm.DB) error {
	return db.AutoMigrate(&applogger.SystemLog{}, &config.ServiceConfig{}, &config.ConfigHistory{}, &observability.ServiceSpan{})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DBDSN()), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		log.Fatal("db connection failed: ", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("db handle failed: ", err)
	}
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := repositories.AutoMigrate(db); err != nil {
		log.Fatal("migration failed: ", err)
	}
	if err := migrateAncillaryTables(db); err != nil {
		log.Fatal("ancillary migration failed: ", err)
	}

	otelShutdown, err := observability.SetupOTelSDK(context.Background())
	if err != nil {
		log.Fatal("otel setup failed: ", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	if err := auth.Init(cfg.JWTSecret); err != nil {
		log.Fatal("auth init failed: ", err)
	}

	eb := eventbus.NewEventBusWithRedis(cfg.RedisAddr)
	asEB, _ := eb.(*eventbus.EventBus) // nil when Redis-backed; RunService tolerates a nil in-memory bus
	defer eb.Close()

	applogger.SetGlobalLogger(applogger.NewLogger("backtestd", db))
	audit := applogger.NewAuditLogger(db, asEB)
	audit.Start()

	cfgMgr := config.NewManager(db, "backtestd")
	defer cfgMgr.Close()

	metrics := monitoring.NewMetrics()

	registry := backtest.NewAlgorithmRegistry()
	registry.Register("momentum", algorithms.NewMomentumAlgorithm(algorithms.DefaultMomentumConfig()))

	dataset := storage.NewCSVDataset(cfg.DatasetRoot)
	runRepo := repositories.NewRunRepository(db)
	ckptRepo := repositories.NewCheckpointRepository(db)
	tradeRepo := repositories.NewTradeRepository(db)

	runService := api.NewRunService(dataset, registry, runRepo, ckptRepo, tradeRepo, asEB, metrics)

	go runSystemMetricsLoop(context.Background(), metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(middleware.RateLimiter(100, time.Minute))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.CheckHealth())
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.GetSnapshot())
	})

	docs.SwaggerInfo.Title = "backtestd API"
	docs.SwaggerInfo.Description = "Control-plane API for deterministic backtest runs."
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api.RegisterAuthRoutes(r, cfg)

	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware())
	api.RegisterRoutes(protected, runService)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatal("server forced to shutdown: ", err)
	}
	log.Println("server exiting")
}

// runSystemMetricsLoop refreshes gopsutil-sourced process metrics on a
// fixed interval, the same cadence the teacher's autonomous monitor uses.
func runSystemMetricsLoop(ctx context.Context, metrics *monitoring.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitoring.RefreshSystemMetrics(metrics)
		}
	}
}
