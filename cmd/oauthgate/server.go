package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/StricklySoft/oauthgate/pkg/auth"
	"github.com/StricklySoft/oauthgate/pkg/gate"
	"github.com/StricklySoft/oauthgate/pkg/oauth2client"
	"github.com/StricklySoft/oauthgate/pkg/session"
)

const shutdownTimeout = 15 * time.Second

// healthChecker is implemented by stores backed by a remote dependency.
type healthChecker interface {
	Health(ctx context.Context) error
}

func serve(ctx context.Context, cfg *GateConfig) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("failed to close session store", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := newHandler(cfg, store, reg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("oauthgate listening",
			"addr", cfg.Listen,
			"upstream", cfg.Upstream,
			"store", cfg.Store,
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newStore(ctx context.Context, cfg *GateConfig) (session.Store, error) {
	if cfg.Store == storeRedis {
		store, err := session.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return session.NewMemoryStore(cfg.Cookie.MaxAge), nil
}

// newHandler assembles the router:
//
//	/healthz  liveness, plus a store ping for redis
//	/metrics  Prometheus
//	/*        session middleware -> gate -> reverse proxy
func newHandler(cfg *GateConfig, store session.Store, reg *prometheus.Registry, logger *slog.Logger) (http.Handler, error) {
	verifier, err := auth.NewJWTVerifier(cfg.Auth)
	if err != nil {
		return nil, err
	}
	client, err := oauth2client.New(cfg.OAuth)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(store, cfg.Cookie, logger)
	if err != nil {
		return nil, err
	}
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", cfg.Upstream, err)
	}

	var app http.Handler = newProxy(upstream, logger)
	if cfg.PassOptionsThrough {
		app = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
			AllowCredentials: true,
		}).Handler(app)
	}

	g := gate.New(auth.NewAuthenticator(verifier), client,
		gate.WithLogger(logger),
		gate.WithMetrics(gate.NewMetrics(reg)),
		gate.WithPassOptionsThrough(cfg.PassOptionsThrough),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(store))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Handle("/*", sessions.Middleware(g.Middleware(app)))
	return r, nil
}

// newProxy forwards to upstream with the caller's identity attached.
func newProxy(upstream *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		Transport: auth.NewPropagatingRoundTripper(nil, logger),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "upstream request failed",
				"error", err,
				"path", r.URL.Path,
			)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}

func healthz(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hc, ok := store.(healthChecker); ok {
			if err := hc.Health(r.Context()); err != nil {
				http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
