package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-travel/internal/booking"
	"github.com/noah-isme/backend-travel/internal/catalog"
	"github.com/noah-isme/backend-travel/internal/common"
	"github.com/noah-isme/backend-travel/internal/config"
	"github.com/noah-isme/backend-travel/internal/discount"
	"github.com/noah-isme/backend-travel/internal/health"
	"github.com/noah-isme/backend-travel/internal/obs"
	"github.com/noah-isme/backend-travel/internal/order"
	"github.com/noah-isme/backend-travel/internal/pricing"
	"github.com/noah-isme/backend-travel/internal/ratelimit"
	"github.com/noah-isme/backend-travel/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "travel")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "travel-booking-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	baseTransport := otelhttp.NewTransport(http.DefaultTransport)
	discountHTTP := &resilience.HTTPClient{
		Client:      &http.Client{Transport: baseTransport},
		Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithLogger(logger),
		BaseBackoff: 100 * time.Millisecond,
		MaxAttempts: 2,
		Jitter:      0.2,
		Timeout:     cfg.DiscountTimeout,
		Target:      "discount-validator",
	}
	orderHTTP := &resilience.HTTPClient{
		Client:      &http.Client{Transport: baseTransport},
		Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithLogger(logger),
		BaseBackoff: 200 * time.Millisecond,
		MaxAttempts: 2,
		Jitter:      0.2,
		Timeout:     cfg.OrderTimeout,
		Target:      "order-service",
	}

	var source catalog.Source
	if cfg.CatalogServiceURL != "" {
		catalogHTTP := &resilience.HTTPClient{
			Client:      &http.Client{Transport: baseTransport},
			Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithLogger(logger),
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     5 * time.Second,
			Target:      "catalog-service",
		}
		source = catalog.CachedSource{
			Inner: catalog.HTTPSource{BaseURL: cfg.CatalogServiceURL, HTTP: catalogHTTP},
			Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		}
	} else {
		logger.Warn().Msg("CATALOG_SERVICE_URL not set, serving built-in sample catalog")
		source = seedCatalog()
	}

	store := booking.NewStore(cfg.SessionTTL)
	defer store.Close()

	bookingHandler := &booking.Handler{
		Store:     store,
		Catalog:   source,
		Discounts: discount.HTTPValidator{BaseURL: cfg.DiscountServiceURL, HTTP: discountHTTP},
		DiscountCfg: discount.Config{
			Debounce: cfg.DiscountDebounce,
			Timeout:  cfg.DiscountTimeout,
			Logger:   logger,
		},
		Submitter: booking.NewSubmitter(
			order.HTTPClient{BaseURL: cfg.OrderServiceURL, HTTP: orderHTTP},
			cfg.OrderTimeout,
			envOrDefault("CURRENCY_CODE", "IDR"),
			logger,
		),
		Logger: logger,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	applyLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:discount:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.ApplyRateWindow,
			Max:    cfg.ApplyRateMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker: health.Probes{
			Redis:       redisClient,
			HTTP:        &http.Client{Transport: baseTransport},
			DiscountURL: cfg.DiscountServiceURL,
		},
		RedisTimeout:    envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		DiscountTimeout: envDurationMillis("HEALTH_READY_DISCOUNT_TIMEOUT_MS", 500),
	}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/v1/bookings", func(v chi.Router) {
		v.Post("/", bookingHandler.Create)
		v.Get("/{id}", bookingHandler.Get)
		v.Patch("/{id}", bookingHandler.Update)
		v.Delete("/{id}", bookingHandler.Delete)
		v.With(applyLimiter.Middleware).Post("/{id}/discount", bookingHandler.ApplyDiscount)
		v.Delete("/{id}/discount", bookingHandler.RemoveDiscount)
		v.With(idem.Middleware).Post("/{id}/submit", bookingHandler.Submit)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutdown signal received")
	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// seedCatalog returns a small fixed product set for local development.
func seedCatalog() catalog.StaticSource {
	intPtr := func(n int) *int { return &n }
	source := catalog.StaticSource{}
	source.Register(catalog.Product{
		ID:       "bromo-sunrise-3d2n",
		Type:     catalog.TypeOpenTrip,
		Title:    "Bromo Sunrise Open Trip 3D2N",
		Currency: "IDR",
		Tiers: pricing.TierTable{
			{MinPax: 1, MaxPax: intPtr(2), Price: 550_000},
			{MinPax: 3, MaxPax: intPtr(5), Price: 500_000},
			{MinPax: 6, MaxPax: nil, Price: 450_000},
		},
		Addons: pricing.AddonCatalog{
			{Name: "photographer", Price: 150_000},
			{Name: "private_tent", Price: 75_000},
		},
		RequiresDates: true,
	})
	source.Register(catalog.Product{
		ID:        "avanza-harian",
		Type:      catalog.TypeCarRental,
		Title:     "Toyota Avanza Daily Rental",
		Currency:  "IDR",
		FlatPrice: 350_000,
		Addons: pricing.AddonCatalog{
			{Name: "driver", Price: 150_000},
			{Name: "child_seat", Price: 50_000},
		},
		RequiresDates:  true,
		RequiresPickup: true,
	})
	source.Register(catalog.Product{
		ID:        "snorkeling-nusa-penida",
		Type:      catalog.TypeActivity,
		Title:     "Nusa Penida Snorkeling Day Trip",
		Currency:  "IDR",
		FlatPrice: 275_000,
		Addons: pricing.AddonCatalog{
			{Name: "underwater_camera", Price: 100_000},
		},
		RequiresPickup: true,
	})
	return source
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
