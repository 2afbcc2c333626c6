package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avatarctic/satcrack-offline/internal/infrastructure/httpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the offline fetch interceptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("no-install", false, "Do not install and activate the offline controller at startup")
}

func runServe(cmd *cobra.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger.Info("Starting satcrack-offline...")

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	originURL, err := cfg.OriginURL()
	if err != nil {
		return err
	}
	serverConfig := &httpserver.ServerConfig{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		TLSCertFile:   cfg.Server.TLSCertFile,
		TLSKeyFile:    cfg.Server.TLSKeyFile,
		Origin:        originURL,
		RefreshMaxAge: cfg.Offline.RefreshMaxAge,
	}

	deps := httpserver.ServerDeps{
		QuestionCache:      a.questionCache,
		QuestionLoader:     a.questionLoader,
		OfflineController:  a.controller,
		Events:             a.hub,
		RateLimiterService: a.rateLimiter,
		HealthCheckers:     a.healthCheckers,
	}
	// Leave the interface nil rather than holding a nil *AuthService.
	if a.authService != nil {
		deps.AuthService = a.authService
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	noInstall, _ := cmd.Flags().GetBool("no-install")
	if cfg.Offline.AutoStart && !noInstall {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Upstream.Timeout*2)
		if err := a.controller.Start(ctx); err != nil {
			logger.WithError(err).Warn("Offline controller did not start; requests pass through to the network")
		}
		cancel()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("Server exited")
	return nil
}
