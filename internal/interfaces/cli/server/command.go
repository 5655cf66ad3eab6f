package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"captionly/internal/infrastructure/config"
	"captionly/internal/infrastructure/migration"
	httpServer "captionly/internal/interfaces/http"
	"captionly/internal/shared/logger"
)

var (
	env         string
	autoMigrate bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long:  `Start the Captionly entitlement server with the specified configuration.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Run pending database migrations on startup (not recommended for production)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	log.Infow("starting server", "environment", env)

	// gin writes its own banner and route dump; the structured logger covers it
	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {}

	container, err := httpServer.NewContainer(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	migrator := migration.NewMigrator(log)
	if autoMigrate {
		if err := migrator.Up(container.DB()); err != nil {
			container.Shutdown(context.Background())
			return fmt.Errorf("migration failed: %w", err)
		}
	} else {
		version, err := migrator.Version(container.DB())
		if err != nil {
			container.Shutdown(context.Background())
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if version == 0 {
			log.Warnw("database schema is empty, run 'captionly migrate up' or start with --auto-migrate")
		}
		log.Infow("migration status checked", "version", version)
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      container.Engine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.GetAddr(), "mode", cfg.Server.Mode)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	container.Shutdown(ctx)

	log.Infow("server exited gracefully")
	return nil
}
