package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// storageObject 是 storage_objects 表的行
type storageObject struct {
	Path      string    `gorm:"primaryKey;size:512"`
	Data      []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (storageObject) TableName() string { return "storage_objects" }

// TxRunner 执行一次写事务；实现可以对瞬时冲突重放 fn
type TxRunner interface {
	Tx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SQLStore 基于 GORM 的存储，postgres / mysql / sqlite 通用
type SQLStore struct {
	db *gorm.DB
	tx TxRunner
}

// NewSQLStore wraps db. With autoMigrate the table is created when missing.
// A nil runner runs each write in a plain transaction.
func NewSQLStore(db *gorm.DB, autoMigrate bool, runner TxRunner) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db cannot be nil", ErrInvalidInput)
	}
	if autoMigrate {
		if err := db.AutoMigrate(&storageObject{}); err != nil {
			return nil, fmt.Errorf("failed to migrate storage_objects: %w", err)
		}
	}
	return &SQLStore{db: db, tx: runner}, nil
}

func (s *SQLStore) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.tx != nil {
		return s.tx.Tx(ctx, fn)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *SQLStore) Read(ctx context.Context, p string) ([]byte, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	var obj storageObject
	err = s.db.WithContext(ctx).Where("path = ?", key).Take(&obj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// Write upserts the row for path.
func (s *SQLStore) Write(ctx context.Context, p string, data []byte) error {
	key, err := CleanPath(p)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	return s.write(ctx, func(tx *gorm.DB) error {
		obj := storageObject{Path: key, Data: data, UpdatedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&obj).Error
	})
}

func (s *SQLStore) Delete(ctx context.Context, p string) error {
	key, err := CleanPath(p)
	if err != nil {
		return err
	}
	return s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Where("path = ?", key).Delete(&storageObject{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil
	})
}

func (s *SQLStore) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	q := s.db.WithContext(ctx).Model(&storageObject{})
	if prefix != "" {
		q = q.Where("path LIKE ? ESCAPE '!'", escapeLike(prefix)+"%")
	}
	if err := q.Order("path").Pluck("path", &paths).Error; err != nil {
		return nil, err
	}

	// sqlite 的 LIKE 对 ASCII 不区分大小写
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Close 由连接池管理器负责关闭连接
func (s *SQLStore) Close() error { return nil }

// Ping checks the underlying connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
