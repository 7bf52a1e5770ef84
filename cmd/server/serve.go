package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/handlers"
	"github.com/insurai/compliance-engine/internal/reporting"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and scheduled digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	a.logger.Info("Starting InsurAI compliance service",
		zap.String("version", Version),
		zap.String("addr", a.config.GetHTTPAddr()),
	)

	gin.SetMode(a.config.Server.Mode)

	router := handlers.NewRouter(a.logger.Named("http"), a.metrics.Middleware())
	handler := handlers.NewComplianceHandler(handlers.Dependencies{
		Records:       a.records,
		Policies:      a.policies,
		Dispatcher:    a.dispatcher,
		Hub:           a.hub,
		Scheduler:     a.scheduler,
		Reports:       a.reports,
		Audit:         a.audit,
		Auth:          a.auth,
		Metrics:       a.metrics,
		Logger:        a.logger.Named("handlers"),
		SendOnSubmit:  a.config.Notifications.SendOnSubmit,
		DefaultFormat: reporting.Format(a.config.Reporting.DefaultFormat),
	})
	handler.RegisterRoutes(router)
	if a.config.Monitoring.EnableMetrics {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(a.metrics.Handler()))
	}

	server := &http.Server{
		Addr:         a.config.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()

	a.dispatcher.Start(ctx)

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		a.logger.Error("Service error, shutting down", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	a.scheduler.Stop()
	if err := a.dispatcher.Stop(shutdownCtx); err != nil {
		a.logger.Error("Queued HR notifications not delivered", zap.Error(err))
	}
	cancel()
	wg.Wait()

	a.logger.Info("InsurAI compliance service stopped")
	return runErr
}
