package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-notify/core"
	notifymigrations "github.com/goliatone/go-notify/migrations"
	"github.com/goliatone/go-notify/ratelimit"
	sqlstore "github.com/goliatone/go-notify/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-notify-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"notification_credentials", "notification_deliveries", "notification_rate_limits"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestCredentialStore_PutGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.CredentialStore()
	key := core.RecipientKey{FID: 1, AppFID: 2}

	if _, found, err := store.Get(ctx, key); err != nil || found {
		t.Fatalf("expected absent credential, found=%v err=%v", found, err)
	}
	if err := store.Put(ctx, key, core.NotificationDetails{URL: "https://push.example/x", Token: "abc"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	details, found, err := store.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected credential, found=%v err=%v", found, err)
	}
	if details.URL != "https://push.example/x" || details.Token != "abc" {
		t.Fatalf("unexpected details %+v", details)
	}

	if err := store.Put(ctx, key, core.NotificationDetails{URL: "https://push.example/y", Token: "def"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	details, _, _ = store.Get(ctx, key)
	if details.Token != "def" || details.URL != "https://push.example/y" {
		t.Fatalf("expected overwrite to win, got %+v", details)
	}
	total, err := store.Count(ctx)
	if err != nil || total != 1 {
		t.Fatalf("expected a single row after overwrite, total=%d err=%v", total, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete of missing key should be a no-op: %v", err)
	}
	if _, found, _ := store.Get(ctx, key); found {
		t.Fatalf("expected credential to be gone")
	}
}

func TestCredentialStore_ConcurrentPutsKeepOneRow(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.CredentialStore()
	key := core.RecipientKey{FID: 5, AppFID: 6}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Put(ctx, key, core.NotificationDetails{URL: "https://push.example/x", Token: fmt.Sprintf("t%d", i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent put: %v", err)
		}
	}
	listed, err := store.ListByApp(ctx, 6)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one credential row, got %d", len(listed))
	}
}

func TestCredentialStore_ListByApp(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.CredentialStore()
	for _, key := range []core.RecipientKey{{FID: 3, AppFID: 9}, {FID: 1, AppFID: 9}, {FID: 2, AppFID: 10}} {
		if err := store.Put(ctx, key, core.NotificationDetails{URL: "https://push.example/x", Token: key.String()}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	listed, err := store.ListByApp(ctx, 9)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].Key.FID != 1 || listed[1].Key.FID != 3 {
		t.Fatalf("unexpected listing %+v", listed)
	}
	if listed[0].Details.Token != "1:9" {
		t.Fatalf("unexpected token %q", listed[0].Details.Token)
	}
}

func TestCredentialStore_RejectsInvalidDetails(t *testing.T) {
	factory := newFactory(t)
	err := factory.CredentialStore().Put(context.Background(), core.RecipientKey{FID: 1, AppFID: 2}, core.NotificationDetails{URL: "https://push.example/x"})
	if err == nil {
		t.Fatalf("expected missing token to be rejected")
	}
}

func TestCachedCredentialStore_InvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	cached, err := factory.CachedCredentialStore(time.Minute)
	if err != nil {
		t.Fatalf("cached store: %v", err)
	}
	key := core.RecipientKey{FID: 1, AppFID: 2}

	if _, found, err := cached.Get(ctx, key); err != nil || found {
		t.Fatalf("expected cached miss, found=%v err=%v", found, err)
	}
	if err := cached.Put(ctx, key, core.NotificationDetails{URL: "https://push.example/x", Token: "abc"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	details, found, err := cached.Get(ctx, key)
	if err != nil || !found || details.Token != "abc" {
		t.Fatalf("expected put to invalidate cached miss, got %+v found=%v err=%v", details, found, err)
	}
	if err := cached.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := cached.Get(ctx, key); found {
		t.Fatalf("expected delete to invalidate cached entry")
	}
	listed, err := cached.ListByApp(ctx, 2)
	if err != nil || len(listed) != 0 {
		t.Fatalf("expected empty listing, got %+v err=%v", listed, err)
	}
}

func TestDeliveryLogStore_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	logStore := factory.DeliveryLogStore()
	key := core.RecipientKey{FID: 1, AppFID: 2}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []core.DeliveryStatus{core.DeliveryStatusSuccess, core.DeliveryStatusRateLimit} {
		if err := logStore.Record(ctx, core.DeliveryRecord{
			NotificationID: fmt.Sprintf("notif-%d", i),
			Key:            key,
			Status:         status,
			Title:          "Welcome",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := logStore.Record(ctx, core.DeliveryRecord{Key: key, Status: core.DeliveryStatusSuccess}); err == nil {
		t.Fatalf("expected missing notification id to be rejected")
	}

	record, found, err := logStore.FindByNotificationID(ctx, "notif-1")
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if record.Status != core.DeliveryStatusRateLimit || record.Key != key {
		t.Fatalf("unexpected record %+v", record)
	}

	recent, err := logStore.ListByRecipient(ctx, key, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 || recent[0].NotificationID != "notif-1" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
}

func TestRateLimitStateStore_ThrottleRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	stateStore := factory.RateLimitStateStore()
	key := core.RateLimitKey{ProviderID: "push", ScopeType: "app", ScopeID: "2", BucketKey: "AbC"}

	if _, err := stateStore.Get(ctx, key); err != ratelimit.ErrStateNotFound {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := ratelimit.NewTokenPolicy(stateStore, 30*time.Second)
	policy.Now = func() time.Time { return now }
	if err := policy.AfterCall(ctx, key, core.ProviderResponseMeta{
		StatusCode: 200,
		Metadata:   map[string]any{ratelimit.MetadataRateLimited: true},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}

	state, err := stateStore.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Key.BucketKey != "AbC" {
		t.Fatalf("expected bucket case preserved, got %q", state.Key.BucketKey)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(now.Add(30*time.Second)) {
		t.Fatalf("unexpected throttled until %v", state.ThrottledUntil)
	}
	if state.Attempts != 1 || state.LastStatus != 200 {
		t.Fatalf("unexpected state %+v", state)
	}
	if err := policy.BeforeCall(ctx, key); !ratelimit.IsThrottled(err) {
		t.Fatalf("expected throttled error, got %v", err)
	}

	if err := policy.AfterCall(ctx, key, core.ProviderResponseMeta{StatusCode: 200}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	state, err = stateStore.Get(ctx, key)
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if state.ThrottledUntil != nil || state.Attempts != 0 {
		t.Fatalf("expected cleared throttle, got %+v", state)
	}
	if total, err := stateStore.Count(ctx); err != nil || total != 1 {
		t.Fatalf("expected the bucket row to be updated in place, got %d err=%v", total, err)
	}
}

func TestRateLimitStateStore_RejectsIncompleteKey(t *testing.T) {
	factory := newFactory(t)
	err := factory.RateLimitStateStore().Upsert(context.Background(), ratelimit.State{Key: core.RateLimitKey{ProviderID: "push"}})
	if err == nil {
		t.Fatalf("expected incomplete key error")
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:notify-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = notifymigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != notifymigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, notifymigrations.WithDialects(notifymigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
