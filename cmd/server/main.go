package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	accounthandler "bondgateway/internal/account/handler"
	accountservice "bondgateway/internal/account/service"
	accountstore "bondgateway/internal/account/store"
	"bondgateway/internal/account/token"
	"bondgateway/internal/audit"
	identityhandler "bondgateway/internal/identity/handler"
	identitymetrics "bondgateway/internal/identity/metrics"
	"bondgateway/internal/identity/provider"
	identityservice "bondgateway/internal/identity/service"
	"bondgateway/internal/identity/tracer"
	"bondgateway/internal/onboarding/cleanup"
	onboardinghandler "bondgateway/internal/onboarding/handler"
	"bondgateway/internal/onboarding/machine"
	onboardingstore "bondgateway/internal/onboarding/store"
	"bondgateway/internal/platform/config"
	"bondgateway/internal/platform/database"
	"bondgateway/internal/platform/health"
	"bondgateway/internal/platform/httpserver"
	"bondgateway/internal/platform/logger"
	"bondgateway/internal/platform/metrics"
	"bondgateway/internal/platform/redis"
	"bondgateway/internal/ratelimit"
	httptransport "bondgateway/internal/transport/http"
	"bondgateway/pkg/platform/circuit"
	"bondgateway/pkg/platform/middleware/auth"
	"bondgateway/pkg/platform/middleware/request"
)

const (
	shutdownTimeout   = 10 * time.Second
	poolStatsInterval = 15 * time.Second
	auditBufferSize   = 256
)

// main wires dependencies and runs the HTTP server alongside the background
// workers until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("bond-gateway exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	if cfg.IsProduction() && cfg.UsesDevSigningKey() {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	if cfg.UsesDevSigningKey() {
		log.Warn("using development JWT signing key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing bond-gateway",
		"addr", cfg.Addr,
		"env", cfg.Environment,
		"provider_env", cfg.Provider.Env,
		"provider_configured", cfg.Provider.PartnerID != "" && cfg.Provider.APIKey != "",
	)

	healthHandler := health.New(cfg.Environment)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // process is exiting
		healthHandler.RegisterCheck("redis", redisClient.Health)
	}

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // process is exiting
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		healthHandler.RegisterCheck("postgres", pool.Health)
	}

	appMetrics := metrics.New()

	publisher := audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithPublisherLogger(log),
	)
	defer publisher.Close()

	verifier := newVerifier(cfg, log)

	var accounts accountstore.Store
	switch {
	case pool != nil:
		accounts = accountstore.NewPostgres(pool.DB())
		log.Info("account store: postgres")
	case redisClient != nil:
		accounts = accountstore.NewRedis(redisClient.Client)
		log.Info("account store: redis")
	default:
		accounts = accountstore.NewInMemory()
		log.Info("account store: in-memory")
	}

	tokens := token.New(cfg.JWTSigningKey, cfg.TokenTTL)
	accountSvc := accountservice.New(accounts, tokens,
		accountservice.WithAuditPublisher(publisher),
		accountservice.WithMetrics(appMetrics),
		accountservice.WithLogger(log),
	)

	sessions := onboardingstore.New()
	newMachine := func() *machine.Machine {
		return machine.New(verifier, machine.WithLogger(log))
	}
	sweeper, err := cleanup.New(sessions, cfg.OnboardingSessionTTL,
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(appMetrics),
	)
	if err != nil {
		return err
	}

	var limiterStore ratelimit.Store
	memLimiter := ratelimit.NewInMemory()
	if redisClient != nil {
		limiterStore = ratelimit.NewRedis(redisClient.Client)
	} else {
		limiterStore = memLimiter
	}
	limiter := ratelimit.NewMiddleware(limiterStore, cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimit.WithLogger(log),
		ratelimit.WithRegisterer(prometheus.DefaultRegisterer),
	)

	router := httptransport.NewRouter(
		httptransport.Options{Logger: log, Metrics: request.NewMetrics(), RateLimit: limiter.Handler},
		healthHandler,
		identityhandler.New(verifier, publisher, log),
		onboardinghandler.New(sessions, newMachine, accountSvc,
			onboardinghandler.WithAuditPublisher(publisher),
			onboardinghandler.WithMetrics(appMetrics),
			onboardinghandler.WithLogger(log),
		),
		accounthandler.New(accountSvc, auth.RequireAuth(tokens, log), log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if redisClient != nil {
		g.Go(func() error { return redisClient.RunPoolStats(gctx, poolStatsInterval) })
	} else {
		g.Go(func() error { return sweepLimiter(gctx, memLimiter, cfg.RateLimit.Window) })
	}
	return g.Wait()
}

func newVerifier(cfg config.Server, log *slog.Logger) *identityservice.Service {
	baseURL := cfg.Provider.BaseURL
	if baseURL == "" {
		baseURL = provider.BaseURL(cfg.Provider.Env)
	}
	breaker := circuit.New("identity-provider",
		circuit.WithStateChange(func(name string, from, to circuit.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
	)
	opts := []provider.Option{
		provider.WithTimeout(cfg.Provider.Timeout),
		provider.WithBreaker(breaker),
	}
	if cfg.Provider.MaxRPS > 0 {
		burst := int(cfg.Provider.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, provider.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Provider.MaxRPS), burst)))
	}
	client := provider.New(baseURL, opts...)
	return identityservice.New(client,
		identityservice.Credentials{PartnerID: cfg.Provider.PartnerID, APIKey: cfg.Provider.APIKey},
		identityservice.WithLogger(log),
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithTracer(tracer.NewOTel()),
	)
}

// sweepLimiter drops idle in-memory rate limit windows.
func sweepLimiter(ctx context.Context, limiter *ratelimit.InMemory, window time.Duration) error {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			limiter.Sweep(window)
		}
	}
}
