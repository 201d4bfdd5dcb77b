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
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/parceltrack/backend-track/internal/app"
	"github.com/parceltrack/backend-track/internal/browser"
	"github.com/parceltrack/backend-track/internal/common"
	"github.com/parceltrack/backend-track/internal/config"
	"github.com/parceltrack/backend-track/internal/health"
	"github.com/parceltrack/backend-track/internal/obs"
	"github.com/parceltrack/backend-track/internal/ratelimit"
	"github.com/parceltrack/backend-track/internal/resilience"
	"github.com/parceltrack/backend-track/internal/scraper"
	"github.com/parceltrack/backend-track/internal/security"
	"github.com/parceltrack/backend-track/internal/track"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "track")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "track-api",
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

	engine, err := newEngine(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("engine", cfg.BrowserEngine).Msg("launch browser engine")
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error().Err(err).Msg("close browser engine")
		}
	}()

	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := engine.Healthy(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("probe browser engine")
		}
	}

	pool := browser.NewPool(engine, cfg.MaxSessions, cfg.QueueTimeout, logger)

	provider := scraper.NewSiteScraper(scraper.Config{
		Name: cfg.CarrierName,
		URL:  cfg.CarrierURL,
		Selectors: scraper.Selectors{
			TrackingInput:  cfg.TrackingInputSel,
			SubmitButton:   cfg.SubmitButtonSel,
			ResultTable:    cfg.ResultTableSel,
			ResultRow:      cfg.ResultRowSel,
			NotFoundBanner: cfg.NotFoundBannerSel,
		},
		WaitTimeout: cfg.WaitTimeout,
	}, logger)

	deps := app.Dependencies{
		Context:      context.Background(),
		Engine:       engine,
		Pool:         pool,
		Validator:    validator.New(),
		LimiterStore: app.NewLimiterStore(),
	}

	var breaker *resilience.Breaker
	if envBool("CARRIER_BREAKER_ENABLED", true) {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Carrier:      cfg.CarrierName,
			MinRequests:  envInt("CARRIER_BREAKER_MIN_REQUESTS", 10),
			FailureRatio: envFloat("CARRIER_BREAKER_FAILURE_RATIO", 0.6),
			OpenFor:      envDurationMillis("CARRIER_BREAKER_OPEN_FOR_MS", 30000),
			Log:          logger,
		})
	}

	trackSvc := &track.Service{Pool: pool, Provider: provider, Breaker: breaker, Log: logger}
	trackHandler := &track.Handler{Svc: trackSvc, Validate: deps.Validator, Log: logger}

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
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS", true)}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", false)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:        readinessChecker{engine: engine},
		BrowserTimeout: envDurationMillis("HEALTH_READY_BROWSER_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Group(func(g chi.Router) {
		g.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		g.Use(trackLimiter(cfg, deps.LimiterStore, logger).Middleware)
		g.Post("/track", trackHandler.Track)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("engine", engine.Name()).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}
}

func newEngine(cfg *config.Config) (browser.Engine, error) {
	opts := browser.Options{
		BinPath:        cfg.BrowserBin,
		Headless:       cfg.BrowserHeadless,
		NoSandbox:      cfg.BrowserNoSandbox,
		UserAgent:      cfg.BrowserUserAgent,
		NavTimeout:     cfg.NavTimeout,
		BlockResources: cfg.BlockResources,
	}
	switch cfg.BrowserEngine {
	case "playwright":
		return browser.NewPlaywrightEngine(opts)
	default:
		return browser.NewRodEngine(opts)
	}
}

func trackLimiter(cfg *config.Config, store limiter.Store, logger zerolog.Logger) ratelimit.Handler {
	rate, err := limiter.NewRateFromFormatted(cfg.TrackRateLimit)
	if err != nil {
		logger.Warn().Err(err).Str("value", cfg.TrackRateLimit).Msg("invalid rate limit format, using default")
		rate = limiter.Rate{Period: time.Minute, Limit: 30}
	}
	return ratelimit.Handler{
		Limiter: ratelimit.Memory{Store: store},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: rate.Period,
			Max:    int(rate.Limit),
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter store failure")
		},
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	engine browser.Engine
}

func (c readinessChecker) PingBrowser(ctx context.Context, timeout time.Duration) error {
	if c.engine == nil {
		return errors.New("browser engine not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.engine.Healthy(ctx)
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
