package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-notify/core"
	notifymigrations "github.com/goliatone/go-notify/migrations"
	"github.com/goliatone/go-notify/ratelimit"
	"github.com/goliatone/go-notify/security"
	"github.com/goliatone/go-notify/store/memory"
	redisstore "github.com/goliatone/go-notify/store/redis"
	sqlstore "github.com/goliatone/go-notify/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type stores struct {
	credentials core.CredentialStore
	lister      core.CredentialLister
	rateLimit   ratelimit.StateStore
	deliveries  *sqlstore.DeliveryLogStore
	closers     []func() error
}

func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openStores(ctx context.Context, cfg core.StoreConfig, logger core.Logger) (*stores, error) {
	out, err := openBackends(ctx, cfg, logger)
	if err != nil || cfg.TokenKey == "" {
		return out, err
	}
	tokenCipher, err := security.NewTokenCipherFromString(cfg.TokenKey)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	sealed, err := security.NewEncryptedCredentialStore(out.credentials, tokenCipher)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	out.credentials = sealed
	out.lister = sealed
	logger.Info("notification tokens sealed at rest", "key_id", tokenCipher.KeyID())
	return out, nil
}

func openBackends(ctx context.Context, cfg core.StoreConfig, logger core.Logger) (*stores, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", core.StoreDriverMemory:
		store := memory.NewCredentialStore()
		logger.Warn("using in-memory credential store, credentials are lost on restart")
		return &stores{
			credentials: store,
			lister:      store,
			rateLimit:   ratelimit.NewMemoryStateStore(),
		}, nil
	case core.StoreDriverSQLite, core.StoreDriverPostgres:
		return openSQLStores(ctx, driver, cfg, logger)
	case core.StoreDriverRedis:
		client, err := redisstore.NewClient(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("notifyd: redis client: %w", err)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("notifyd: redis ping: %w", err)
		}
		store, err := redisstore.NewCredentialStore(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("credential store ready", "driver", driver)
		return &stores{
			credentials: store,
			lister:      store,
			rateLimit:   ratelimit.NewMemoryStateStore(),
			closers:     []func() error{client.Close},
		}, nil
	default:
		return nil, fmt.Errorf("notifyd: unsupported store driver %q", cfg.Driver)
	}
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-notify" }

func openSQLStores(ctx context.Context, driver string, cfg core.StoreConfig, logger core.Logger) (*stores, error) {
	sqlDriver, dialectName, dialect := sqlDialect(driver)
	sqlDB, err := sql.Open(sqlDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("notifyd: open %s: %w", driver, err)
	}
	if driver == core.StoreDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: sqlDriver, server: cfg.DSN}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("notifyd: persistence client: %w", err)
	}
	fail := func(err error) (*stores, error) {
		_ = client.Close()
		return nil, err
	}

	_, err = notifymigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, notifymigrations.WithDialects(dialectName))
	if err != nil {
		return fail(fmt.Errorf("notifyd: register migrations: %w", err))
	}
	if err := client.Migrate(ctx); err != nil {
		return fail(fmt.Errorf("notifyd: migrate: %w", err))
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fail(err)
	}

	out := &stores{
		rateLimit:  factory.RateLimitStateStore(),
		deliveries: factory.DeliveryLogStore(),
		closers:    []func() error{client.Close},
	}
	if cfg.CacheTTL > 0 {
		cached, err := factory.CachedCredentialStore(cfg.CacheTTL)
		if err != nil {
			return fail(err)
		}
		out.credentials = cached
		out.lister = cached
	} else {
		out.credentials = factory.CredentialStore()
		out.lister = factory.CredentialStore()
	}
	logger.Info("credential store ready", "driver", driver, "cache_ttl", cfg.CacheTTL.String())
	return out, nil
}

func sqlDialect(driver string) (string, string, schema.Dialect) {
	if driver == core.StoreDriverPostgres {
		return "postgres", notifymigrations.DialectPostgres, pgdialect.New()
	}
	return "sqlite3", notifymigrations.DialectSQLite, sqlitedialect.New()
}
