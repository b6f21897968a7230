package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type gormRepository struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite rule store at the given DSN and runs
// schema migration. A plain file path is treated as a sqlite database file.
func Open(dsn string) (Repository, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" && !isMemoryDSN(dsn) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&rules.Rule{}, &Session{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &gormRepository{db: db}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || len(dsn) > 5 && dsn[:5] == "file:"
}

func (r *gormRepository) Active(ctx context.Context) ([]rules.Rule, error) {
	var out []rules.Rule
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	return out, nil
}

func (r *gormRepository) ActiveMatching(ctx context.Context, license *string, steamID *int64, ip string) ([]rules.Rule, error) {
	now := time.Now().UTC()
	q := r.db.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", now)

	match := r.db.Where("ip_address = ?", ip)
	if license != nil {
		match = match.Or("license = ?", *license)
	}
	if steamID != nil {
		match = match.Or("steam_id = ?", *steamID)
	}

	var out []rules.Rule
	err := q.Where(match).Order("expires_at ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query matching rules: %w", err)
	}
	return out, nil
}

func (r *gormRepository) Create(ctx context.Context, rule *rules.Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rule).Error; err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
		return nil
	})
}

func (r *gormRepository) SoftDelete(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("subject_user_id = ?", subjectID).Delete(&rules.Rule{})
		if res.Error != nil {
			return fmt.Errorf("soft-delete rules for %s: %w", subjectID, res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

func (r *gormRepository) RecordDisconnect(ctx context.Context, sessionID uuid.UUID, reason string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"disconnect_reason": reason,
			"disconnected":      at,
		}).Error
	if err != nil {
		return fmt.Errorf("record disconnect for session %s: %w", sessionID, err)
	}
	return nil
}

func (r *gormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *gormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
