package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	credentialStore  CredentialStore
	credentialLister CredentialLister
	sender           NotificationSender
	publisher        LifecyclePublisher
	now              func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithCredentialStore sets the store. When the store also implements
// CredentialLister it is used for broadcasts unless WithCredentialLister
// overrides it.
func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithCredentialLister(lister CredentialLister) Option {
	return func(b *serviceBuilder) {
		b.credentialLister = lister
	}
}

func WithNotificationSender(sender NotificationSender) Option {
	return func(b *serviceBuilder) {
		b.sender = sender
	}
}

func WithLifecyclePublisher(publisher LifecyclePublisher) Option {
	return func(b *serviceBuilder) {
		b.publisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("notify", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             time.Now,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader returns a loader serving a fixed raw map.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds the loaded layer. Validation runs after the runtime layer has
// been merged, since required values such as app_url may come from either.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString(layer, "service_name", cfg.ServiceName, includeZero)
	setString(layer, "app_name", cfg.AppName, includeZero)
	setString(layer, "app_url", cfg.AppURL, includeZero)

	webhook := map[string]any{}
	if includeZero || cfg.Webhook.MaxBodyBytes > 0 {
		webhook["max_body_bytes"] = cfg.Webhook.MaxBodyBytes
	}
	setSection(layer, "webhook", webhook)

	notifications := map[string]any{}
	setString(notifications, "welcome_title", cfg.Notifications.WelcomeTitle, includeZero)
	setString(notifications, "welcome_body", cfg.Notifications.WelcomeBody, includeZero)
	setString(notifications, "enabled_title", cfg.Notifications.EnabledTitle, includeZero)
	setString(notifications, "enabled_body", cfg.Notifications.EnabledBody, includeZero)
	setSection(layer, "notifications", notifications)

	delivery := map[string]any{}
	if includeZero || cfg.Delivery.Timeout > 0 {
		delivery["timeout"] = cfg.Delivery.Timeout
	}
	if includeZero || cfg.Delivery.ThrottleWindow > 0 {
		delivery["throttle_window"] = cfg.Delivery.ThrottleWindow
	}
	setSection(layer, "delivery", delivery)

	httpSection := map[string]any{}
	setString(httpSection, "addr", cfg.HTTP.Addr, includeZero)
	if includeZero || len(cfg.HTTP.AllowedOrigins) > 0 {
		httpSection["allowed_origins"] = append([]string(nil), cfg.HTTP.AllowedOrigins...)
	}
	setSection(layer, "http", httpSection)

	store := map[string]any{}
	setString(store, "driver", cfg.Store.Driver, includeZero)
	setString(store, "dsn", cfg.Store.DSN, includeZero)
	if includeZero || cfg.Store.CacheTTL > 0 {
		store["cache_ttl"] = cfg.Store.CacheTTL
	}
	setString(store, "token_key", cfg.Store.TokenKey, includeZero)
	setSection(layer, "store", store)

	hub := map[string]any{}
	setString(hub, "url", cfg.Hub.URL, includeZero)
	setString(hub, "api_key", cfg.Hub.APIKey, includeZero)
	setSection(layer, "hub", hub)

	nats := map[string]any{}
	setString(nats, "url", cfg.NATS.URL, includeZero)
	setString(nats, "subject_prefix", cfg.NATS.SubjectPrefix, includeZero)
	setSection(layer, "nats", nats)
	return layer
}

func setString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func setSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
