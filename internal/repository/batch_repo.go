package repository

import (
	"context"
	"errors"

	"github.com/cembakir/veriflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const resultInsertChunk = 100

// BatchRepository is the durable store for batches and their per-item results.
type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	Update(ctx context.Context, id string, fields map[string]any) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Batch, error)
	IncompleteByOwner(ctx context.Context, ownerID string) ([]domain.Batch, error)
	ListIncomplete(ctx context.Context) ([]domain.Batch, error)

	// AppendResult persists one result. It reports false when a result row for
	// the same (batch, item) already exists, in which case nothing is written.
	AppendResult(ctx context.Context, r *domain.Result) (bool, error)
	AppendResults(ctx context.Context, results []*domain.Result) error
	ResultsFor(ctx context.Context, batchID string, page, pageSize int) ([]domain.Result, int64, error)
	CheckedItemsFor(ctx context.Context, batchID string) (map[string]struct{}, error)
	HasResult(ctx context.Context, batchID, item string) (bool, error)
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Batch, error) {
	return r.listBatches(ctx, r.db.WithContext(ctx).Where("owner_id = ?", ownerID))
}

func (r *GormBatchRepo) IncompleteByOwner(ctx context.Context, ownerID string) ([]domain.Batch, error) {
	return r.listBatches(ctx, r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, domain.BatchStatusProcessing))
}

func (r *GormBatchRepo) ListIncomplete(ctx context.Context) ([]domain.Batch, error) {
	return r.listBatches(ctx, r.db.WithContext(ctx).
		Where("status = ?", domain.BatchStatusProcessing))
}

func (r *GormBatchRepo) listBatches(ctx context.Context, query *gorm.DB) ([]domain.Batch, error) {
	var models []BatchModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, nil
}

func (r *GormBatchRepo) AppendResult(ctx context.Context, res *domain.Result) (bool, error) {
	model := resultModelFromDomain(res)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "item"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormBatchRepo) AppendResults(ctx context.Context, results []*domain.Result) error {
	models := make([]ResultModel, 0, len(results))
	for _, res := range results {
		if model := resultModelFromDomain(res); model != nil {
			models = append(models, *model)
		}
	}
	if len(models) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "item"}},
			DoNothing: true,
		}).
		CreateInBatches(&models, resultInsertChunk).Error
}

func (r *GormBatchRepo) ResultsFor(ctx context.Context, batchID string, page, pageSize int) ([]domain.Result, int64, error) {
	query := r.db.WithContext(ctx).Model(&ResultModel{}).Where("batch_id = ?", batchID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = max(page, 1)
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 500)

	var models []ResultModel
	err := query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	results := make([]domain.Result, 0, len(models))
	for i := range models {
		results = append(results, *resultModelToDomain(&models[i]))
	}
	return results, total, nil
}

func (r *GormBatchRepo) CheckedItemsFor(ctx context.Context, batchID string) (map[string]struct{}, error) {
	var items []string
	err := r.db.WithContext(ctx).
		Model(&ResultModel{}).
		Where("batch_id = ?", batchID).
		Pluck("item", &items).Error
	if err != nil {
		return nil, err
	}

	checked := make(map[string]struct{}, len(items))
	for _, item := range items {
		checked[item] = struct{}{}
	}
	return checked, nil
}

func (r *GormBatchRepo) HasResult(ctx context.Context, batchID, item string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ResultModel{}).
		Where("batch_id = ? AND item = ?", batchID, item).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
