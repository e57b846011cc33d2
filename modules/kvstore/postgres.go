package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/guarzo/storefront/common"
)

// Entry is one row of the session_kv table.
type Entry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (Entry) TableName() string { return "session_kv" }

var _ common.KVStore = (*postgresStore)(nil)

type postgresStore struct {
	db *gorm.DB
}

// NewPostgresStore returns a KVStore backed by the session_kv table,
// migrating it if needed.
func NewPostgresStore(db *gorm.DB) (common.KVStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session_kv: %w", err)
	}
	return &postgresStore{db: db}, nil
}

// OpenPostgres opens a gorm connection with a small pool; a token store
// needs few connections.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to configure database pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func (p *postgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e Entry
	err := p.db.WithContext(ctx).Where("key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres get %q: %w", key, err)
	}
	return e.Value, true, nil
}

// GetMulti reads every key with one statement.
func (p *postgresStore) GetMulti(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []Entry
	if err := p.db.WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	for _, e := range rows {
		out[e.Key] = e.Value
	}
	return out, nil
}

// SetMulti upserts all entries in one transaction.
func (p *postgresStore) SetMulti(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	// Fixed key order keeps concurrent upserts from deadlocking on row locks.
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]Entry, 0, len(entries))
	for _, k := range keys {
		rows = append(rows, Entry{Key: k, Value: entries[k]})
	}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

func (p *postgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := p.db.WithContext(ctx).Where("key IN ?", keys).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("postgres del: %w", err)
	}
	return nil
}
