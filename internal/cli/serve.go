package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/tenantcore/internal/auth"
	"github.com/watzon/tenantcore/internal/executions"
	"github.com/watzon/tenantcore/internal/server"
)

var (
	servePort int
	serveHost string
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP host",
	Long: `Open the database, load the configured modules, freeze the procedure
registry and serve the HTTP API.

Modules that fail to load are logged and skipped.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.loadModules(ctx)
	for _, f := range report.Failed {
		log.Warn().Err(f.Err).Str("module", f.Path).Msg("Module skipped")
	}

	sweeper := executions.NewSweeper(a.executions, cfg.Triggers.Retention, cfg.Triggers.CleanupSchedule)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	var tokens *auth.TokenService
	if cfg.Auth.JWT.Secret != "" {
		tokens = auth.NewTokenService(cfg.Auth.JWT)
	} else {
		log.Warn().Msg("auth.jwt.secret is not set, all callers are anonymous")
	}

	srv := server.New(cfg, server.Deps{
		DB:         a.db,
		Registry:   a.registry,
		Gateway:    a.gateway,
		Triggers:   a.engine,
		Executions: a.executions,
		Platform:   a.platform,
		Tokens:     tokens,
	}, server.WithVersion(version))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		log.Info().Msg("Shutdown signal received")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	return nil
}
