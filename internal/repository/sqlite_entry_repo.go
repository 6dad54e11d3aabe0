package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ricirt/adpromo/internal/domain"
)

// entryRow is the gorm model for the entries table. Seq carries insertion
// order; AutoMigrate adds tags/promoted to tables created before they
// existed, with their defaults applied to old rows.
type entryRow struct {
	Seq           uint   `gorm:"primaryKey;autoIncrement"`
	Title         string `gorm:"uniqueIndex;not null"`
	Category      string `gorm:"not null;default:''"`
	PromotionText string `gorm:"not null"`
	Payload       string `gorm:"not null"`
	MediaURL      string `gorm:"not null;default:''"`
	Tags          string `gorm:"not null;default:''"`
	Promoted      bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
}

func (entryRow) TableName() string { return "entries" }

func (r *entryRow) toDomain() *domain.Entry {
	return &domain.Entry{
		Title:         r.Title,
		Category:      r.Category,
		PromotionText: r.PromotionText,
		Payload:       r.Payload,
		MediaURL:      r.MediaURL,
		Tags:          domain.ParseTags(r.Tags),
		Promoted:      r.Promoted,
		CreatedAt:     r.CreatedAt,
	}
}

type sqliteEntryRepository struct {
	db    *gorm.DB
	path  string
	locks memLocks
}

// NewSQLiteEntryRepository returns an EntryRepository on an embedded gorm
// database and migrates its schema. path is the database file; scope locks
// are flocks next to it, or in-process only for an in-memory database.
func NewSQLiteEntryRepository(db *gorm.DB, path string) (EntryRepository, error) {
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return nil, fmt.Errorf("migrate entries table: %w", err)
	}
	return &sqliteEntryRepository{db: db, path: path}, nil
}

func (r *sqliteEntryRepository) Lock(ctx context.Context, scope LockScope) (func(), error) {
	if r.path == "" || strings.Contains(r.path, ":memory:") {
		return r.locks.lock(ctx, scope)
	}
	return lockFileContext(ctx, scopeLockPath(r.path, scope))
}

func (r *sqliteEntryRepository) Load(ctx context.Context) ([]*domain.Entry, error) {
	var rows []entryRow
	if err := r.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	entries := make([]*domain.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}

func (r *sqliteEntryRepository) FindByTitle(ctx context.Context, title string) (*domain.Entry, error) {
	var row entryRow
	err := r.db.WithContext(ctx).Where("title = ?", title).Order("seq").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	return row.toDomain(), nil
}

func (r *sqliteEntryRepository) Append(ctx context.Context, e *domain.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entryRow{}).Where("title = ?", e.Title).Count(&count).Error; err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if count > 0 {
			return domain.ErrDuplicateEntry
		}

		row := entryRow{
			Title:         e.Title,
			Category:      e.Category,
			PromotionText: e.PromotionText,
			Payload:       e.Payload,
			MediaURL:      e.MediaURL,
			Tags:          domain.JoinTags(e.Tags),
			Promoted:      e.Promoted,
			CreatedAt:     e.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return nil
	})
}

func (r *sqliteEntryRepository) UpdatePromoted(ctx context.Context, title string, promoted bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row entryRow
		err := tx.Where("title = ?", title).Order("seq").First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find entry: %w", err)
		}
		if row.Promoted && !promoted {
			return domain.ErrPromotedMonotonic
		}
		if err := tx.Model(&row).Update("promoted", promoted).Error; err != nil {
			return fmt.Errorf("update promoted: %w", err)
		}
		return nil
	})
}

func (r *sqliteEntryRepository) RemoveHead(ctx context.Context, expectedTitle string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head entryRow
		err := tx.Order("seq").First(&head).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find head: %w", err)
		}
		if head.Title != expectedTitle {
			return domain.ErrStaleHead
		}
		if err := tx.Delete(&head).Error; err != nil {
			return fmt.Errorf("delete head: %w", err)
		}
		return nil
	})
}
