// Package tenant binds a site identifier to that site's isolated database.
package tenant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/repository"
)

// Store is the set of repositories bound to one site's database.
type Store struct {
	SiteID       string
	DB           *gorm.DB
	Transactions repository.TransactionRepository
	BillingKeys  repository.BillingKeyRepository
	Schedules    repository.ScheduleRepository
}

func NewStore(siteID string, db *gorm.DB) *Store {
	return &Store{
		SiteID:       siteID,
		DB:           db,
		Transactions: repository.NewTransactionRepository(db),
		BillingKeys:  repository.NewBillingKeyRepository(db),
		Schedules:    repository.NewScheduleRepository(db),
	}
}

// Opener opens a handle for a tenant database name.
type Opener func(dbName string) (*gorm.DB, error)

// DSNOpener builds handles from a DSN template containing {db}.
func DSNOpener(template string, open func(dsn string) (*gorm.DB, error)) Opener {
	return func(dbName string) (*gorm.DB, error) {
		return open(strings.ReplaceAll(template, "{db}", dbName))
	}
}

type Resolver interface {
	Resolve(ctx context.Context, siteID string) (*Store, error)
	ResolveAPIKey(ctx context.Context, rawKey string) (string, error)
}

type resolverImpl struct {
	sites   repository.SiteRepository
	open    Opener
	migrate func(*gorm.DB) error

	handles sync.Map // db_name -> *gorm.DB
	group   singleflight.Group
}

// NewResolver caches one handle per database name for the process lifetime.
// migrate, when set, runs once on every freshly opened handle.
func NewResolver(sites repository.SiteRepository, open Opener, migrate func(*gorm.DB) error) Resolver {
	return &resolverImpl{
		sites:   sites,
		open:    open,
		migrate: migrate,
	}
}

func (r *resolverImpl) Resolve(ctx context.Context, siteID string) (*Store, error) {
	if siteID == "" {
		return nil, &apperr.TenantNotFoundError{SiteID: siteID}
	}

	site, err := r.sites.FindActive(ctx, siteID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &apperr.TenantNotFoundError{SiteID: siteID}
		}
		return nil, &apperr.PersistenceError{Op: "find site", Err: err}
	}

	db, err := r.handle(site.DBName)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "open tenant database", Err: err}
	}

	return NewStore(site.SiteID, db), nil
}

func (r *resolverImpl) handle(dbName string) (*gorm.DB, error) {
	if db, ok := r.handles.Load(dbName); ok {
		return db.(*gorm.DB), nil
	}

	v, err, _ := r.group.Do(dbName, func() (any, error) {
		if db, ok := r.handles.Load(dbName); ok {
			return db, nil
		}
		db, err := r.open(dbName)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", dbName, err)
		}
		if r.migrate != nil {
			if err := r.migrate(db); err != nil {
				if sqlDB, dbErr := db.DB(); dbErr == nil {
					sqlDB.Close()
				}
				return nil, err
			}
		}
		r.handles.Store(dbName, db)
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gorm.DB), nil
}

// ResolveAPIKey maps a raw API key to its site id. Unknown keys are a
// *apperr.TenantNotFoundError with an empty site id.
func (r *resolverImpl) ResolveAPIKey(ctx context.Context, rawKey string) (string, error) {
	if rawKey == "" {
		return "", &apperr.TenantNotFoundError{}
	}
	siteID, err := r.sites.FindSiteIDByAPIKeyHash(ctx, HashAPIKey(rawKey))
	if err != nil {
		if repository.IsNotFound(err) {
			return "", &apperr.TenantNotFoundError{}
		}
		return "", &apperr.PersistenceError{Op: "find api key", Err: err}
	}
	return siteID, nil
}

// HashAPIKey is the form in which keys are stored in site_api_keys.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
