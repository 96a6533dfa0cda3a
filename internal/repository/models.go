package repository

import (
	"time"

	"github.com/cembakir/veriflow/internal/domain"
)

// BatchModel is the persistence model for the batches table.
type BatchModel struct {
	ID               string             `gorm:"type:uuid;primaryKey"`
	OwnerID          string             `gorm:"type:varchar(64);not null;index"`
	Category         domain.Category    `gorm:"type:varchar(16);not null"`
	DeclaredItems    []string           `gorm:"type:jsonb;serializer:json;not null"`
	TotalNumbers     int                `gorm:"not null"`
	ProcessedNumbers int                `gorm:"not null;default:0"`
	ValidNumbers     int                `gorm:"not null;default:0"`
	InvalidNumbers   int                `gorm:"not null;default:0"`
	Status           domain.BatchStatus `gorm:"type:varchar(20);not null"`
	CompletedAt      *time.Time         `gorm:"type:timestamptz"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// ResultModel is the persistence model for verification_results. The unique
// (batch_id, item) index is what makes concurrent resume idempotent.
type ResultModel struct {
	ID           string              `gorm:"type:uuid;primaryKey"`
	BatchID      string              `gorm:"type:uuid;not null;uniqueIndex:idx_results_batch_item"`
	Item         string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_results_batch_item"`
	Status       domain.ResultStatus `gorm:"type:varchar(10);not null"`
	Outcome      *domain.Outcome     `gorm:"type:jsonb;serializer:json"`
	ErrorMessage *string             `gorm:"type:text"`
	Valid        bool                `gorm:"not null;default:false"`
	AttemptCount int                 `gorm:"not null;default:0"`
	CreatedAt    time.Time
}

func (ResultModel) TableName() string {
	return "verification_results"
}

// CacheEntryModel is the persistence model for verification_cache. One row per
// canonical item; a re-verification supersedes the previous outcome.
type CacheEntryModel struct {
	Item      string         `gorm:"type:varchar(255);primaryKey"`
	Outcome   domain.Outcome `gorm:"type:jsonb;serializer:json;not null"`
	CheckedAt time.Time      `gorm:"type:timestamptz;not null;index"`
}

func (CacheEntryModel) TableName() string {
	return "verification_cache"
}

// QuotaCountersModel is the persistence model for quota_counters, one row per
// (user, category).
type QuotaCountersModel struct {
	UserID   string          `gorm:"type:varchar(64);primaryKey"`
	Category domain.Category `gorm:"type:varchar(16);primaryKey"`

	DailyLimit   *int
	WeeklyLimit  *int
	MonthlyLimit *int
	BatchLimit   *int

	DailyUsed   int `gorm:"not null;default:0"`
	WeeklyUsed  int `gorm:"not null;default:0"`
	MonthlyUsed int `gorm:"not null;default:0"`

	DailyMarker   string `gorm:"type:varchar(10);not null;default:''"`
	WeeklyMarker  string `gorm:"type:varchar(10);not null;default:''"`
	MonthlyMarker string `gorm:"type:varchar(7);not null;default:''"`

	UpdatedAt time.Time
}

func (QuotaCountersModel) TableName() string {
	return "quota_counters"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:               b.ID,
		OwnerID:          b.OwnerID,
		Category:         b.Category,
		DeclaredItems:    b.DeclaredItems,
		TotalNumbers:     b.TotalNumbers,
		ProcessedNumbers: b.ProcessedNumbers,
		ValidNumbers:     b.ValidNumbers,
		InvalidNumbers:   b.InvalidNumbers,
		Status:           b.Status,
		CompletedAt:      b.CompletedAt,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Category:         m.Category,
		DeclaredItems:    m.DeclaredItems,
		TotalNumbers:     m.TotalNumbers,
		ProcessedNumbers: m.ProcessedNumbers,
		ValidNumbers:     m.ValidNumbers,
		InvalidNumbers:   m.InvalidNumbers,
		Status:           m.Status,
		CompletedAt:      m.CompletedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func resultModelFromDomain(r *domain.Result) *ResultModel {
	if r == nil {
		return nil
	}

	return &ResultModel{
		ID:           r.ID,
		BatchID:      r.BatchID,
		Item:         r.Item,
		Status:       r.Status,
		Outcome:      r.Outcome,
		ErrorMessage: r.ErrorMessage,
		Valid:        r.Valid,
		AttemptCount: r.AttemptCount,
		CreatedAt:    r.CreatedAt,
	}
}

func resultModelToDomain(m *ResultModel) *domain.Result {
	if m == nil {
		return nil
	}

	return &domain.Result{
		ID:           m.ID,
		BatchID:      m.BatchID,
		Item:         m.Item,
		Status:       m.Status,
		Outcome:      m.Outcome,
		ErrorMessage: m.ErrorMessage,
		Valid:        m.Valid,
		AttemptCount: m.AttemptCount,
		CreatedAt:    m.CreatedAt,
	}
}

func quotaModelToDomain(m *QuotaCountersModel) *domain.QuotaCounters {
	if m == nil {
		return nil
	}

	return &domain.QuotaCounters{
		UserID:        m.UserID,
		Category:      m.Category,
		DailyLimit:    m.DailyLimit,
		WeeklyLimit:   m.WeeklyLimit,
		MonthlyLimit:  m.MonthlyLimit,
		BatchLimit:    m.BatchLimit,
		DailyUsed:     m.DailyUsed,
		WeeklyUsed:    m.WeeklyUsed,
		MonthlyUsed:   m.MonthlyUsed,
		DailyMarker:   m.DailyMarker,
		WeeklyMarker:  m.WeeklyMarker,
		MonthlyMarker: m.MonthlyMarker,
		UpdatedAt:     m.UpdatedAt,
	}
}
