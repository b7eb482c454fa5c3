package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// backend persists encoded records. Implementations need no locking of
// their own beyond what a single statement gives; Store serialises every
// read-modify-write per id.
type backend interface {
	load(ctx context.Context, id string) ([]byte, error)
	// insert fails with domain.ErrRecordExists when id is live or tombstoned.
	insert(ctx context.Context, id string, payload []byte, now time.Time) error
	save(ctx context.Context, id string, payload []byte, now time.Time) error
	remove(ctx context.Context, id string, now time.Time) error
	close() error
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS local_records (
		id TEXT PRIMARY KEY,
		schema_version INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS local_tombstones (
		id TEXT PRIMARY KEY,
		deleted_at DATETIME NOT NULL
	)`,
}

type sqliteBackend struct {
	db *gorm.DB
}

func openSQLite(ctx context.Context, dir, name string) (*sqliteBackend, error) {
	if dir == "" {
		return nil, errors.New("local store directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dsn := filepath.Join(dir, name+".db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			_ = closeGorm(db)
			return nil, fmt.Errorf("create local schema: %w", err)
		}
	}
	return &sqliteBackend{db: db}, nil
}

type row struct {
	ID      string
	Payload string
}

func (b *sqliteBackend) load(ctx context.Context, id string) ([]byte, error) {
	var r row
	err := b.db.WithContext(ctx).Raw(
		`SELECT id, payload FROM local_records WHERE id = ?`, id,
	).Scan(&r).Error
	if err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, nil
	}
	return []byte(r.Payload), nil
}

func (b *sqliteBackend) insert(ctx context.Context, id string, payload []byte, now time.Time) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tombstones int64
		if err := tx.Raw(`SELECT COUNT(1) FROM local_tombstones WHERE id = ?`, id).Scan(&tombstones).Error; err != nil {
			return err
		}
		if tombstones > 0 {
			return domain.ErrRecordExists
		}
		res := tx.Exec(
			`INSERT INTO local_records (id, schema_version, payload, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			id, domain.CurrentSchemaVersion, string(payload), now, now,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrRecordExists
		}
		return nil
	})
}

func (b *sqliteBackend) save(ctx context.Context, id string, payload []byte, now time.Time) error {
	return b.db.WithContext(ctx).Exec(
		`INSERT INTO local_records (id, schema_version, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		id, domain.CurrentSchemaVersion, string(payload), now, now,
	).Error
}

func (b *sqliteBackend) remove(ctx context.Context, id string, now time.Time) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM local_records WHERE id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(
			`INSERT INTO local_tombstones (id, deleted_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
			id, now,
		).Error
	})
}

func (b *sqliteBackend) close() error {
	return closeGorm(b.db)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
