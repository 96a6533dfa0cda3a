package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WindowLabels carries the current day/ISO-week/month labels so the repository
// can lazily reset stale counters while holding the row lock.
type WindowLabels struct {
	Day   string
	Week  string
	Month string
}

// QuotaRepository stores per-user, per-category ceilings and rolling usage.
type QuotaRepository interface {
	// Get loads the counters row. ErrNotFound means no limits are configured
	// for the pair, which callers treat as unlimited with zero usage.
	Get(ctx context.Context, userID string, category domain.Category) (*domain.QuotaCounters, error)

	// ApplyUsage atomically resets any counter whose marker no longer matches
	// the given labels and then increments all three windows by count,
	// persisting the new markers. The row is created on first use.
	ApplyUsage(ctx context.Context, userID string, category domain.Category, count int, labels WindowLabels) error

	SetLimits(ctx context.Context, userID string, category domain.Category, daily, weekly, monthly, batch *int) error
}

type GormQuotaRepo struct {
	db *gorm.DB
}

func NewGormQuotaRepo(db *gorm.DB) *GormQuotaRepo {
	return &GormQuotaRepo{db: db}
}

func (r *GormQuotaRepo) Get(ctx context.Context, userID string, category domain.Category) (*domain.QuotaCounters, error) {
	var model QuotaCountersModel
	err := r.db.WithContext(ctx).
		First(&model, "user_id = ? AND category = ?", userID, category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return quotaModelToDomain(&model), nil
}

func (r *GormQuotaRepo) ApplyUsage(ctx context.Context, userID string, category domain.Category, count int, labels WindowLabels) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model QuotaCountersModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "user_id = ? AND category = ?", userID, category).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model = QuotaCountersModel{UserID: userID, Category: category}
		} else if err != nil {
			return err
		}

		if model.DailyMarker != labels.Day {
			model.DailyUsed = 0
		}
		if model.WeeklyMarker != labels.Week {
			model.WeeklyUsed = 0
		}
		if model.MonthlyMarker != labels.Month {
			model.MonthlyUsed = 0
		}

		model.DailyUsed += count
		model.WeeklyUsed += count
		model.MonthlyUsed += count
		model.DailyMarker = labels.Day
		model.WeeklyMarker = labels.Week
		model.MonthlyMarker = labels.Month
		model.UpdatedAt = time.Now().UTC()

		return tx.
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "category"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"daily_used", "weekly_used", "monthly_used",
					"daily_marker", "weekly_marker", "monthly_marker",
					"updated_at",
				}),
			}).
			Create(&model).Error
	})
}

func (r *GormQuotaRepo) SetLimits(ctx context.Context, userID string, category domain.Category, daily, weekly, monthly, batch *int) error {
	model := QuotaCountersModel{
		UserID:       userID,
		Category:     category,
		DailyLimit:   daily,
		WeeklyLimit:  weekly,
		MonthlyLimit: monthly,
		BatchLimit:   batch,
		UpdatedAt:    time.Now().UTC(),
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "category"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"daily_limit", "weekly_limit", "monthly_limit", "batch_limit", "updated_at",
			}),
		}).
		Create(&model).Error
}
