// Package storage selects the booking store named by STORAGE_DRIVER.
package storage

import (
	"context"
	"fmt"

	"github.com/hackgods/medbook/internal/booking"
	"github.com/hackgods/medbook/internal/config"
	"github.com/hackgods/medbook/internal/storage/mongo"
	"github.com/hackgods/medbook/internal/storage/postgres"
	"github.com/hackgods/medbook/internal/storage/sqlite"
)

type Store interface {
	booking.Repository

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*mongo.Store)(nil)
)

func Open(ctx context.Context, cfg config.Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		store, err = openPostgres(ctx, cfg.PostgresDSN)
	case config.DriverSQLite:
		store, err = openSQLite(cfg.SQLitePath)
	case config.DriverMongo:
		store, err = openMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	return store, nil
}

// The wrappers keep a failed open from returning a typed nil inside Store.

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	s, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openSQLite(path string) (Store, error) {
	s, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openMongo(ctx context.Context, uri, database string) (Store, error) {
	s, err := mongo.Open(ctx, uri, database)
	if err != nil {
		return nil, err
	}
	return s, nil
}
