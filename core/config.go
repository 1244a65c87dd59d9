package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength = 32
	MaxBodyLength  = 128

	defaultServiceName        = "notify"
	defaultAppName            = "TickBase"
	defaultWebhookMaxBody     = 64 << 10
	defaultDeliveryTimeout    = 10 * time.Second
	defaultHTTPAddr           = ":8080"
	defaultStoreDriver        = "memory"
	defaultHubURL             = "https://hub-api.neynar.com"
	defaultNATSSubjectPrefix  = "notify.subscriptions"
	defaultEnabledTitle       = "Notifications enabled"
	defaultEnabledBody        = "You will now get updates about your tickets and events."
	defaultWelcomeBodyPattern = "Thanks for adding %s. Your tickets and events are one tap away."
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

type WebhookConfig struct {
	MaxBodyBytes int64 `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// NotificationsConfig holds the texts sent on subscription transitions. Empty
// values fall back to defaults derived from the app name.
type NotificationsConfig struct {
	WelcomeTitle string `koanf:"welcome_title" mapstructure:"welcome_title"`
	WelcomeBody  string `koanf:"welcome_body" mapstructure:"welcome_body"`
	EnabledTitle string `koanf:"enabled_title" mapstructure:"enabled_title"`
	EnabledBody  string `koanf:"enabled_body" mapstructure:"enabled_body"`
}

type DeliveryConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`

	// ThrottleWindow enables per-token throttling after a rate-limited reply.
	// Zero disables it.
	ThrottleWindow time.Duration `koanf:"throttle_window" mapstructure:"throttle_window"`
}

type HTTPConfig struct {
	Addr           string   `koanf:"addr" mapstructure:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins" mapstructure:"allowed_origins"`
}

type StoreConfig struct {
	Driver   string        `koanf:"driver" mapstructure:"driver"`
	DSN      string        `koanf:"dsn" mapstructure:"dsn"`
	CacheTTL time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	// TokenKey enables sealing notification tokens at rest when set.
	TokenKey string `koanf:"token_key" mapstructure:"token_key"`
}

type HubConfig struct {
	URL    string `koanf:"url" mapstructure:"url"`
	APIKey string `koanf:"api_key" mapstructure:"api_key"`
}

type NATSConfig struct {
	URL           string `koanf:"url" mapstructure:"url"`
	SubjectPrefix string `koanf:"subject_prefix" mapstructure:"subject_prefix"`
}

type Config struct {
	ServiceName   string              `koanf:"service_name" mapstructure:"service_name"`
	AppName       string              `koanf:"app_name" mapstructure:"app_name"`
	AppURL        string              `koanf:"app_url" mapstructure:"app_url"`
	Webhook       WebhookConfig       `koanf:"webhook" mapstructure:"webhook"`
	Notifications NotificationsConfig `koanf:"notifications" mapstructure:"notifications"`
	Delivery      DeliveryConfig      `koanf:"delivery" mapstructure:"delivery"`
	HTTP          HTTPConfig          `koanf:"http" mapstructure:"http"`
	Store         StoreConfig         `koanf:"store" mapstructure:"store"`
	Hub           HubConfig           `koanf:"hub" mapstructure:"hub"`
	NATS          NATSConfig          `koanf:"nats" mapstructure:"nats"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		AppName:     defaultAppName,
		Webhook: WebhookConfig{
			MaxBodyBytes: defaultWebhookMaxBody,
		},
		Delivery: DeliveryConfig{
			Timeout: defaultDeliveryTimeout,
		},
		HTTP: HTTPConfig{
			Addr: defaultHTTPAddr,
		},
		Store: StoreConfig{
			Driver: defaultStoreDriver,
		},
		Hub: HubConfig{
			URL: defaultHubURL,
		},
		NATS: NATSConfig{
			SubjectPrefix: defaultNATSSubjectPrefix,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.AppURL) == "" {
		return fmt.Errorf("core: app_url is required")
	}
	if _, err := parseOrigin(c.AppURL); err != nil {
		return fmt.Errorf("core: app_url is invalid: %w", err)
	}
	if c.Webhook.MaxBodyBytes < 0 {
		return fmt.Errorf("core: webhook.max_body_bytes must not be negative")
	}
	if c.Delivery.Timeout < 0 || c.Delivery.ThrottleWindow < 0 {
		return fmt.Errorf("core: delivery durations must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", StoreDriverMemory:
	case StoreDriverSQLite, StoreDriverPostgres, StoreDriverRedis:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("core: store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("core: unsupported store.driver %q", c.Store.Driver)
	}

	texts := c.Notifications.Resolve(c.AppName)
	for field, value := range map[string]string{
		"notifications.welcome_title": texts.WelcomeTitle,
		"notifications.enabled_title": texts.EnabledTitle,
	} {
		if utf8.RuneCountInString(value) > MaxTitleLength {
			return fmt.Errorf("core: %s must be %d characters or less", field, MaxTitleLength)
		}
	}
	for field, value := range map[string]string{
		"notifications.welcome_body": texts.WelcomeBody,
		"notifications.enabled_body": texts.EnabledBody,
	} {
		if utf8.RuneCountInString(value) > MaxBodyLength {
			return fmt.Errorf("core: %s must be %d characters or less", field, MaxBodyLength)
		}
	}
	return nil
}

// Resolve fills empty texts with the defaults for appName.
func (n NotificationsConfig) Resolve(appName string) NotificationsConfig {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = defaultAppName
	}
	out := n
	if strings.TrimSpace(out.WelcomeTitle) == "" {
		out.WelcomeTitle = "Welcome to " + appName
	}
	if strings.TrimSpace(out.WelcomeBody) == "" {
		out.WelcomeBody = fmt.Sprintf(defaultWelcomeBodyPattern, appName)
	}
	if strings.TrimSpace(out.EnabledTitle) == "" {
		out.EnabledTitle = defaultEnabledTitle
	}
	if strings.TrimSpace(out.EnabledBody) == "" {
		out.EnabledBody = defaultEnabledBody
	}
	return out
}

func parseOrigin(raw string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("url %q must be absolute", raw)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("url %q must use http or https", raw)
	}
	return parsed, nil
}
