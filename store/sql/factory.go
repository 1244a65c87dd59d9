package sqlstore

import (
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every SQL backed store over one bun database.
type RepositoryFactory struct {
	db *bun.DB

	credentialStore     *CredentialStore
	deliveryLogStore    *DeliveryLogStore
	rateLimitStateStore *RateLimitStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) CredentialStore() *CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

// CachedCredentialStore wraps the credential store in a go-repository-cache
// service with the given ttl.
func (f *RepositoryFactory) CachedCredentialStore(ttl time.Duration) (*CachedCredentialStore, error) {
	if f == nil || f.credentialStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build credential cache: %w", err)
	}
	return NewCachedCredentialStore(f.credentialStore, cacheService)
}

func (f *RepositoryFactory) DeliveryLogStore() *DeliveryLogStore {
	if f == nil {
		return nil
	}
	return f.deliveryLogStore
}

func (f *RepositoryFactory) RateLimitStateStore() *RateLimitStateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db)
	if err != nil {
		return err
	}
	deliveryLogStore, err := NewDeliveryLogStore(f.db)
	if err != nil {
		return err
	}
	rateLimitStateStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}
	f.credentialStore = credentialStore
	f.deliveryLogStore = deliveryLogStore
	f.rateLimitStateStore = rateLimitStateStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
