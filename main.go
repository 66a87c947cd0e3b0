// rentify serves the Rentify clothing rental marketplace.
//
// Usage:
//
//	rentify serve
//	rentify migrate
//	rentify seed-categories --file categories.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/rentify/rentify-go/internal/api"
	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/notify"
	"github.com/rentify/rentify-go/internal/services"
	"github.com/rentify/rentify-go/internal/storage"
	"github.com/rentify/rentify-go/internal/tokens"
	"github.com/rentify/rentify-go/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "rentify",
		Short:         "Rentify clothing rental marketplace",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCategoriesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema.sql to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			schemaSQL, err := os.ReadFile(cfg.SchemaPath)
			if err != nil {
				return fmt.Errorf("failed to read schema: %w", err)
			}
			return database.InitSchema(cmd.Context(), string(schemaSQL))
		},
	}
}

func seedCategoriesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-categories",
		Short: "Upsert catalog categories from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if file == "" {
				file = cfg.CategorySeedPath
			}
			seeds, err := services.LoadSeedFile(file)
			if err != nil {
				return err
			}

			database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := services.NewCategoryService(database, metrics.NewNoopMetrics(), logger).Seed(cmd.Context(), seeds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories from %s\n", n, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file (defaults to CATEGORY_SEED_PATH)")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func runServe(ctx context.Context) error {
	cfg := config.LoadConfig()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.CheckSecrets(); err != nil {
		return err
	}
	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Warn("JWT_SECRET not set, signing sessions with the development secret",
			zap.String("environment", cfg.OTELDeploymentEnvironment))
	}

	// Initialize OpenTelemetry metrics
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down meter provider", zap.Error(err))
		}
	}()

	database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Schema and seed data are best effort at startup; `migrate` reports errors
	if schemaSQL, err := os.ReadFile(cfg.SchemaPath); err != nil {
		logger.Warn("could not read schema, assuming it already exists", zap.String("path", cfg.SchemaPath), zap.Error(err))
	} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
		logger.Warn("could not initialize schema, assuming it already exists", zap.Error(err))
	}

	categories := services.NewCategoryService(database, appMetrics, logger)
	if seeds, err := services.LoadSeedFile(cfg.CategorySeedPath); err != nil {
		logger.Warn("skipping category seed", zap.String("path", cfg.CategorySeedPath), zap.Error(err))
	} else if _, err := categories.Seed(ctx, seeds); err != nil {
		logger.Warn("category seed failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, password reset will fail until it is reachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	images, err := storage.NewImageStore(cfg.MediaDir, logger)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(notify.NewSMTPMailer(cfg), appMetrics, logger)

	// Initialize services
	accounts := services.NewAccountService(database, appMetrics, dispatcher, logger)
	svc := api.Services{
		Accounts:   accounts,
		Profiles:   services.NewProfileService(database, appMetrics, accounts),
		Passwords:  services.NewPasswordService(accounts, tokens.NewRedisStore(rdb), dispatcher, cfg.ResetCodeTTL, cfg.ResetMaxAttempts, logger),
		Categories: categories,
		Catalog:    services.NewCatalogService(database, appMetrics, images, logger),
		Rentals:    services.NewRentalService(database, appMetrics, dispatcher, logger),
	}

	sessions := auth.NewSessionManager(cfg.JWTSecret, cfg.SessionTTL)
	app := api.NewApp(cfg, database, appMetrics, logger, sessions, svc)

	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.AppPort),
			zap.String("otlp_endpoint", cfg.OTELExporterOTLPEndpoint),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
