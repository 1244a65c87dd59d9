// Command notifyd serves the Mini App webhook and notification HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-notify/adapters/gocommand"
	"github.com/goliatone/go-notify/adapters/gologger"
	"github.com/goliatone/go-notify/adapters/natsevents"
	promadapter "github.com/goliatone/go-notify/adapters/prometheus"
	"github.com/goliatone/go-notify/core"
	"github.com/goliatone/go-notify/delivery"
	"github.com/goliatone/go-notify/ratelimit"
	"github.com/goliatone/go-notify/server"
	"github.com/goliatone/go-notify/transport"
	"github.com/goliatone/go-notify/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, lookupEnv(os.Environ()), os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "notifyd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env map[string]string, logOutput io.Writer) error {
	root := gologger.NewJSONLogger(logOutput, env[envPrefix+"LOG_LEVEL"])
	loggers := gologger.NewSlogProvider(root)
	logger := loggers.GetLogger("notifyd")

	raw, err := rawConfigFromEnv(env)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, raw)
	if err != nil {
		return err
	}

	backends, err := openStores(ctx, cfg.Store, loggers.GetLogger("notify.store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Error("store close failed", "error", err.Error())
		}
	}()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := promadapter.NewRecorder(registry, promadapter.WithNamespace(cfg.ServiceName))

	httpAdapter := transport.NewRESTAdapter(transport.NewInstrumentedClient(cfg.Delivery.Timeout))
	senderConfig := delivery.Config{
		Store:            backends.credentials,
		Transport:        httpAdapter,
		DefaultTargetURL: cfg.AppURL,
		Timeout:          cfg.Delivery.Timeout,
		RateLimit:        throttlePolicy(cfg.Delivery, backends.rateLimit),
		LoggerProvider:   loggers,
		Metrics:          metrics,
	}
	if backends.deliveries != nil {
		senderConfig.Recorder = backends.deliveries
	}

	options := []core.Option{
		core.WithCredentialStore(backends.credentials),
		core.WithCredentialLister(backends.lister),
		core.WithNotificationSender(delivery.NewSender(senderConfig)),
		core.WithLoggerProvider(loggers),
		core.WithMetricsRecorder(metrics),
	}
	if cfg.NATS.URL != "" {
		conn, err := natsevents.Connect(cfg.NATS.URL, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("notifyd: nats connect: %w", err)
		}
		defer conn.Close()
		publisher, err := natsevents.NewPublisher(conn,
			natsevents.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			natsevents.WithLogger(loggers.GetLogger("notify.nats")),
		)
		if err != nil {
			return err
		}
		options = append(options, core.WithLifecyclePublisher(publisher))
	}

	svc, err := core.NewService(cfg, options...)
	if err != nil {
		return err
	}

	processor := webhooks.NewProcessor(
		webhooks.NewJFSVerifier(webhooks.NewHubAppKeyVerifier(httpAdapter, cfg.Hub.URL, cfg.Hub.APIKey)),
		svc,
	)
	processor.MaxBodyBytes = cfg.Webhook.MaxBodyBytes

	commands := gocommand.NewRegistryAdapter(command.NewRegistry())
	handlers := gocommand.ServiceHandlers{Service: svc, Lister: backends.lister}
	if backends.deliveries != nil {
		handlers.Deliveries = backends.deliveries
	}
	subscriptions, err := gocommand.RegisterService(commands, handlers)
	if err != nil {
		return err
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}()
	if err := commands.Initialize(); err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Webhooks:       processor,
		Notifications:  svc,
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.Webhook.MaxBodyBytes,
		Registerer:     registry,
		Gatherer:       registry,
		LoggerProvider: loggers,
	})
	if err != nil {
		return err
	}

	logger.Info("notifyd starting",
		"service", cfg.ServiceName,
		"store", cfg.Store.Driver,
		"nats", cfg.NATS.URL != "",
	)
	return srv.ListenAndServe(ctx, cfg.HTTP.Addr)
}

// throttlePolicy is nil unless a throttle window is configured.
func throttlePolicy(cfg core.DeliveryConfig, store ratelimit.StateStore) core.RateLimitPolicy {
	if cfg.ThrottleWindow <= 0 || store == nil {
		return nil
	}
	return ratelimit.NewTokenPolicy(store, cfg.ThrottleWindow)
}
