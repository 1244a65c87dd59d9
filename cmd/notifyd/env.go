package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-notify/core"
)

const envPrefix = "NOTIFY_"

type envKind int

const (
	envString envKind = iota
	envInt
	envDuration
	envList
)

type envBinding struct {
	name string
	path []string
	kind envKind
}

var envBindings = []envBinding{
	{name: "SERVICE_NAME", path: []string{"service_name"}},
	{name: "APP_NAME", path: []string{"app_name"}},
	{name: "APP_URL", path: []string{"app_url"}},
	{name: "WEBHOOK_MAX_BODY_BYTES", path: []string{"webhook", "max_body_bytes"}, kind: envInt},
	{name: "WELCOME_TITLE", path: []string{"notifications", "welcome_title"}},
	{name: "WELCOME_BODY", path: []string{"notifications", "welcome_body"}},
	{name: "ENABLED_TITLE", path: []string{"notifications", "enabled_title"}},
	{name: "ENABLED_BODY", path: []string{"notifications", "enabled_body"}},
	{name: "DELIVERY_TIMEOUT", path: []string{"delivery", "timeout"}, kind: envDuration},
	{name: "DELIVERY_THROTTLE_WINDOW", path: []string{"delivery", "throttle_window"}, kind: envDuration},
	{name: "HTTP_ADDR", path: []string{"http", "addr"}},
	{name: "HTTP_ALLOWED_ORIGINS", path: []string{"http", "allowed_origins"}, kind: envList},
	{name: "STORE_DRIVER", path: []string{"store", "driver"}},
	{name: "STORE_DSN", path: []string{"store", "dsn"}},
	{name: "STORE_CACHE_TTL", path: []string{"store", "cache_ttl"}, kind: envDuration},
	{name: "STORE_TOKEN_KEY", path: []string{"store", "token_key"}},
	{name: "HUB_URL", path: []string{"hub", "url"}},
	{name: "HUB_API_KEY", path: []string{"hub", "api_key"}},
	{name: "NATS_URL", path: []string{"nats", "url"}},
	{name: "NATS_SUBJECT_PREFIX", path: []string{"nats", "subject_prefix"}},
}

// lookupEnv indexes KEY=VALUE pairs as returned by os.Environ.
func lookupEnv(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

// rawConfigFromEnv builds the nested raw map cfgx expects. Unset and blank
// variables are left out so defaults apply.
func rawConfigFromEnv(env map[string]string) (map[string]any, error) {
	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := env[envPrefix+binding.name]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := parseEnvValue(binding.kind, strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("notifyd: %s%s: %w", envPrefix, binding.name, err)
		}
		setPath(raw, binding.path, parsed)
	}
	return raw, nil
}

func parseEnvValue(kind envKind, value string) (any, error) {
	switch kind {
	case envInt:
		return strconv.ParseInt(value, 10, 64)
	case envDuration:
		return time.ParseDuration(value)
	case envList:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return value, nil
	}
}

func setPath(raw map[string]any, path []string, value any) {
	current := raw
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

// loadConfig layers the environment over the defaults and validates the
// result the same way core.NewService does.
func loadConfig(ctx context.Context, raw map[string]any) (core.Config, error) {
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(core.StaticConfigLoader(raw)).Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}
	return core.GoOptionsResolver{}.Resolve(defaults, loaded, core.Config{})
}
