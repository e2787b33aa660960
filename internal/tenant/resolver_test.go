package tenant

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/model"
	"portone-payment-api/internal/repository"
)

func openSQLite(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func setupPlatform(t *testing.T) repository.SiteRepository {
	t.Helper()
	db := openSQLite(t, filepath.Join(t.TempDir(), "platform.db"))
	if err := db.AutoMigrate(model.PlatformModels()...); err != nil {
		t.Fatal(err)
	}
	sites := repository.NewSiteRepository(db)
	ctx := context.Background()
	for _, s := range []*model.Site{
		{SiteID: "site_a", DBName: "tenant_a", Status: model.SiteActive},
		{SiteID: "site_off", DBName: "tenant_off", Status: model.SiteInactive},
	} {
		if err := sites.Upsert(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := sites.AddAPIKey(ctx, &model.SiteAPIKey{SiteID: "site_a", APIKeyHash: HashAPIKey("sk_live_a"), Status: model.SiteActive}); err != nil {
		t.Fatal(err)
	}
	return sites
}

func countingOpener(t *testing.T, opens *atomic.Int32) Opener {
	dir := t.TempDir()
	return func(dbName string) (*gorm.DB, error) {
		opens.Add(1)
		return openSQLite(t, filepath.Join(dir, dbName+".db")), nil
	}
}

func migrateTenant(db *gorm.DB) error { return db.AutoMigrate(model.TenantModels()...) }

func TestResolveConcurrentFirstUseOpensOnce(t *testing.T) {
	var opens atomic.Int32
	r := NewResolver(setupPlatform(t), countingOpener(t, &opens), migrateTenant)

	var wg sync.WaitGroup
	stores := make([]*Store, 20)
	errs := make([]error, 20)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stores[i], errs[i] = r.Resolve(context.Background(), "site_a")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Resolve #%d error = %v", i, err)
		}
	}
	if n := opens.Load(); n != 1 {
		t.Errorf("opens = %d, want 1", n)
	}
	if stores[0].DB != stores[19].DB {
		t.Errorf("expected a shared handle")
	}
}

func TestResolveUnknownOrInactive(t *testing.T) {
	var opens atomic.Int32
	r := NewResolver(setupPlatform(t), countingOpener(t, &opens), nil)

	for _, siteID := range []string{"", "nope", "site_off"} {
		_, err := r.Resolve(context.Background(), siteID)
		var nf *apperr.TenantNotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("Resolve(%q) error = %v, want TenantNotFoundError", siteID, err)
		}
	}
	if opens.Load() != 0 {
		t.Errorf("no handle should be opened for unknown tenants")
	}
}

func TestResolveOpenFailureIsPersistence(t *testing.T) {
	failing := func(string) (*gorm.DB, error) { return nil, errors.New("connection refused") }
	r := NewResolver(setupPlatform(t), failing, nil)

	_, err := r.Resolve(context.Background(), "site_a")
	if apperr.KindOf(err) != apperr.KindPersistence {
		t.Errorf("KindOf() = %q, want persistence (err=%v)", apperr.KindOf(err), err)
	}
}

func TestResolveMigrateFailureClosesHandle(t *testing.T) {
	var opened []*gorm.DB
	dir := t.TempDir()
	open := func(dbName string) (*gorm.DB, error) {
		db := openSQLite(t, filepath.Join(dir, dbName+".db"))
		opened = append(opened, db)
		return db, nil
	}
	failing := func(*gorm.DB) error { return errors.New("migration failed") }
	r := NewResolver(setupPlatform(t), open, failing)

	for i := 0; i < 2; i++ {
		if _, err := r.Resolve(context.Background(), "site_a"); apperr.KindOf(err) != apperr.KindPersistence {
			t.Fatalf("Resolve #%d error = %v, want persistence", i, err)
		}
	}
	if len(opened) != 2 {
		t.Fatalf("opens = %d, want a fresh attempt per call", len(opened))
	}
	for i, db := range opened {
		sqlDB, _ := db.DB()
		if err := sqlDB.Ping(); err == nil {
			t.Errorf("handle #%d still open after failed migration", i)
		}
	}
}

func TestResolveAPIKey(t *testing.T) {
	var opens atomic.Int32
	r := NewResolver(setupPlatform(t), countingOpener(t, &opens), nil)

	siteID, err := r.ResolveAPIKey(context.Background(), "sk_live_a")
	if err != nil || siteID != "site_a" {
		t.Errorf("ResolveAPIKey() = %q, %v", siteID, err)
	}
	if _, err := r.ResolveAPIKey(context.Background(), "sk_wrong"); apperr.KindOf(err) != apperr.KindTenantNotFound {
		t.Errorf("unknown key error = %v", err)
	}
}

func TestDSNOpener(t *testing.T) {
	var got string
	open := DSNOpener("user:pw@tcp(db:3306)/{db}?parseTime=true", func(dsn string) (*gorm.DB, error) {
		got = dsn
		return nil, nil
	})
	_, _ = open("tenant_a")
	if got != "user:pw@tcp(db:3306)/tenant_a?parseTime=true" {
		t.Errorf("dsn = %q", got)
	}
}
