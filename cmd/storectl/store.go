package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/config"
	"github.com/guarzo/storefront/modules/kvstore"
)

// openStore builds the configured KV backend. The returned func releases
// its connections.
func openStore(ctx context.Context, cfg config.StoreConfig, logger common.Logger) (common.KVStore, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendMemory:
		return kvstore.NewMemoryStore(), noop, nil

	case config.BackendFile:
		logger.Debugf("storectl: session file %s", cfg.Path)
		return kvstore.NewFileStore(cfg.Path), noop, nil

	case config.BackendRedis:
		rdb, err := kvstore.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return kvstore.NewRedisStore(rdb, cfg.Redis.Prefix), func() {
			if err := rdb.Close(); err != nil {
				logger.Warnf("storectl: closing redis: %v", err)
			}
		}, nil

	case config.BackendPostgres:
		db, err := kvstore.OpenPostgres(cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgresStore(db)
	}
	return nil, nil, fmt.Errorf("unknown token store backend %q", cfg.Backend)
}

// postgresStore migrates the table and closes the pool if that fails.
func postgresStore(db *gorm.DB) (common.KVStore, func(), error) {
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	kv, err := kvstore.NewPostgresStore(db)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return kv, closeDB, nil
}
