// Package server exposes the notification service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-notify/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultMaxBodyBytes int64 = 64 << 10
	shutdownTimeout           = 10 * time.Second
)

// InboundProcessor verifies and applies a webhook body.
type InboundProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type NotificationService interface {
	SendNotification(ctx context.Context, req core.SendRequest) (core.DeliveryOutcome, error)
	Broadcast(ctx context.Context, req core.BroadcastRequest) (core.BroadcastSummary, error)
}

type Config struct {
	Webhooks       InboundProcessor
	Notifications  NotificationService
	ServiceName    string
	AllowedOrigins []string
	MaxBodyBytes   int64
	Registerer     prom.Registerer
	Gatherer       prom.Gatherer
	Logger         core.Logger
	LoggerProvider core.LoggerProvider
}

type Server struct {
	webhooks      InboundProcessor
	notifications NotificationService
	maxBodyBytes  int64
	logger        core.Logger
	handler       http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.Webhooks == nil {
		return nil, fmt.Errorf("server: webhook processor is required")
	}
	if cfg.Notifications == nil {
		return nil, fmt.Errorf("server: notification service is required")
	}
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prom.DefaultGatherer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "notify"
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	_, logger := glog.Resolve("notify.http", cfg.LoggerProvider, cfg.Logger)

	s := &Server{
		webhooks:      cfg.Webhooks,
		notifications: cfg.Notifications,
		maxBodyBytes:  maxBody,
		logger:        glog.Ensure(logger),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(newREDMetrics(registerer).middleware)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}

	r.Post("/api/webhook", s.handleWebhook)
	r.Post("/api/notifications/send", s.handleSend)
	r.Post("/api/notifications/broadcast", s.handleBroadcast)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.handler = otelhttp.NewHandler(r, serviceName)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}

// recoverer turns a handler panic into the generic JSON 500 response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.WithContext(r.Context()).Error("http handler panic",
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"panic", fmt.Sprint(rec),
			)
			writeError(w, http.StatusInternalServerError, core.MessageInternalError)
		}()
		next.ServeHTTP(w, r)
	})
}
