package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"secureapi/internal/auth"
	apphttp "secureapi/internal/http"
	"secureapi/internal/service"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("open identity store")
		return err
	}
	defer st.close()

	limiter, closeLimiter, err := openLimiter(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("open rate limiter")
		return err
	}
	defer closeLimiter()

	codec, err := newTokenCodec(cfg)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(st.users, auth.NewBcryptHasher(cfg.Auth.BcryptCost), codec, service.AuthOptions{
		StoreTimeout: cfg.StoreTimeout(),
		Logger:       logrus.NewEntry(logger),
	})
	txService := service.NewTransactionService(st.txs, cfg.StoreTimeout())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return err
	}
	handler := apphttp.NewHandler(authService, txService, apphttp.Options{
		LoginLimiter: limiter,
		RetryAfter:   cfg.RateLimitWindow(),
		CORSOrigins:  cfg.Server.CORSOrigins,
		Registry:     registry,
		Logger:       logrus.NewEntry(logger),
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		logger.WithError(err).Error("http server")
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
	return nil
}
