/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the back office server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration (.env + environment)
  2. Open the configured store (SQLite, MongoDB or memory)
  3. Wire commerce, auth, report services and metrics
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  Flags override the matching environment variable.
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (SQLITE_PATH, default: backoffice.db)
           Use ":memory:" for in-memory database
  -store   Store driver: sqlite, mongodb, memory (STORE_DRIVER)

ENVIRONMENT:
  See config/config.go for the full list. JWT_SECRET is required except
  with the memory driver, where a random secret is generated per run.
  GEMINI_API_KEY enables POST /api/sales/report.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=dev ./server -db="./data/backoffice.db"

  # Run fully in memory
  ./server -store=memory

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
  - store/sqlite/sqlite.go, store/mongodb/mongodb.go: Storage
*/
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/backoffice/api"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/commerce/store"
	"github.com/warp/backoffice/config"
	"github.com/warp/backoffice/metrics"
	"github.com/warp/backoffice/report"
	"github.com/warp/backoffice/store/mongodb"
	"github.com/warp/backoffice/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "backoffice.db", "SQLite database path")
	driver := flag.String("store", config.DriverSQLite, "Store driver: sqlite, mongodb, memory")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			os.Setenv("PORT", strconv.Itoa(*port))
		case "db":
			os.Setenv("SQLITE_PATH", *dbPath)
		case "store":
			os.Setenv("STORE_DRIVER", *driver)
		}
	})

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel, os.Stdout)

	// Initialize store
	st, closeStore, err := openStore(cfg)
	if err != nil {
		logger.WithError(err).WithField("driver", cfg.StoreDriver).Fatal("failed to initialize store")
	}
	defer closeStore()

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("JWT_SECRET not set; tokens will not survive a restart")
	}

	svc := commerce.NewService(st, commerce.Options{Location: cfg.Location, Logger: logger})
	authSvc := &auth.Service{
		Users:  st,
		Tokens: &auth.TokenIssuer{Secret: []byte(secret), TTL: cfg.JWTTTL},
	}
	m := metrics.New(metrics.DefaultNamespace)

	var reports *report.Service
	if cfg.ReportsEnabled() {
		gemini, err := report.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize report generator")
		}
		reports = &report.Service{
			History:   svc.History,
			Products:  st,
			Generator: report.NewBreakerGenerator(gemini, report.DefaultBreakerConfig(), logger),
			Metrics:   m,
			Logger:    logger,
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set; report generation disabled")
	}

	handler := api.NewHandler(svc, authSvc, reports, m, logger)
	handler.CORSOrigins = cfg.CORSOrigins

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"store":  cfg.StoreDriver,
			"report": reports != nil,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}

	logger.Info("server stopped")
}

// backend is what every driver provides: the commerce store, users, and reset.
type backend interface {
	commerce.Store
	auth.UserStore
	api.Resetter
}

func openStore(cfg *config.Config) (backend, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongoDB:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Close(ctx)
		}
		if cfg.MongoTransactions {
			return mongodb.Transactional(s), closeFn, nil
		}
		return s, closeFn, nil

	case config.DriverMemory:
		return store.NewTxMemory(), func() {}, nil

	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
