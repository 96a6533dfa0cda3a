package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheRepository stores the most recent successful outcome per canonical
// item. Only successes are ever written; a verification error never produces a
// cache row.
type CacheRepository interface {
	GetFresh(ctx context.Context, item string, since time.Time) (*domain.CacheEntry, error)
	GetManyFresh(ctx context.Context, items []string, since time.Time) ([]domain.CacheEntry, error)
	Upsert(ctx context.Context, entry *domain.CacheEntry) error
}

type GormCacheRepo struct {
	db *gorm.DB
}

func NewGormCacheRepo(db *gorm.DB) *GormCacheRepo {
	return &GormCacheRepo{db: db}
}

func (r *GormCacheRepo) GetFresh(ctx context.Context, item string, since time.Time) (*domain.CacheEntry, error) {
	var model CacheEntryModel
	err := r.db.WithContext(ctx).
		Where("item = ? AND checked_at >= ?", item, since).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.CacheEntry{Item: model.Item, Outcome: model.Outcome, CheckedAt: model.CheckedAt}, nil
}

func (r *GormCacheRepo) GetManyFresh(ctx context.Context, items []string, since time.Time) ([]domain.CacheEntry, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var models []CacheEntryModel
	err := r.db.WithContext(ctx).
		Where("item IN ? AND checked_at >= ?", items, since).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.CacheEntry, 0, len(models))
	for i := range models {
		entries = append(entries, domain.CacheEntry{
			Item:      models[i].Item,
			Outcome:   models[i].Outcome,
			CheckedAt: models[i].CheckedAt,
		})
	}
	return entries, nil
}

func (r *GormCacheRepo) Upsert(ctx context.Context, entry *domain.CacheEntry) error {
	model := &CacheEntryModel{
		Item:      entry.Item,
		Outcome:   entry.Outcome,
		CheckedAt: entry.CheckedAt,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item"}},
			DoUpdates: clause.AssignmentColumns([]string{"outcome", "checked_at"}),
		}).
		Create(model).Error
}
