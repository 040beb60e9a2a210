// Package main runs the identity-provider sandbox locally. Point the gateway
// at it with SMILE_BASE_URL=http://localhost:8090/v1.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bondgateway/internal/identity/sandbox"
	"bondgateway/internal/platform/httpserver"
	"bondgateway/internal/platform/logger"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	latency := flag.Duration("latency", 0, "artificial delay before each verification answer")
	maxSkew := flag.Duration("max-skew", 0, "reject signatures older than this; zero disables")
	flag.Parse()

	log := logger.New(os.Getenv("LOG_LEVEL"))
	srv := httpserver.New(*addr, sandbox.New(sandbox.Config{
		PartnerID: os.Getenv("SMILE_PARTNER_ID"),
		APIKey:    os.Getenv("SMILE_API_KEY"),
		MaxSkew:   *maxSkew,
		Latency:   *latency,
		Logger:    log,
	}).Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("sandbox provider listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("sandbox provider stopped", "error", err)
		os.Exit(1)
	}
}
