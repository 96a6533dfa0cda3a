package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
	"github.com/cembakir/veriflow/internal/normalize"
	"github.com/cembakir/veriflow/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 100
	maxPageSize     = 500

	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	roleAdmin      = "admin"
)

// BatchService is the handler's view of the verification engine.
type BatchService interface {
	StartBatch(ctx context.Context, ownerID string, rawItems []string, category domain.Category) (*service.StartResult, error)
	ResumeBatch(ctx context.Context, batchID, callerID string, admin bool) (*service.ResumeResult, error)
	GetBatch(ctx context.Context, batchID, callerID string, admin bool) (*domain.Batch, error)
	ListBatches(ctx context.Context, callerID string) ([]domain.Batch, error)
	Results(ctx context.Context, batchID, callerID string, admin bool, page, pageSize int) ([]domain.Result, int64, error)
	Analyze(category domain.Category, items []string) normalize.Analysis
}

type BatchHandler struct {
	service BatchService
}

func NewBatchHandler(service BatchService) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	return &BatchHandler{service: service}, nil
}

func RegisterBatchRoutes(router fiber.Router, service BatchService) error {
	h, err := NewBatchHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.StartBatch)
	v1.Post("/analyze", h.AnalyzeBatch)
	v1.Post("/batches/:id/resume", h.ResumeBatch)
	v1.Get("/batches", h.ListBatches)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Get("/batches/:id/results", h.ListResults)

	return nil
}

type startBatchRequest struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

type startBatchResponse struct {
	BatchID           string `json:"batchId"`
	Total             int    `json:"total"`
	Cached            int    `json:"cached"`
	Called            int    `json:"called"`
	Processed         int    `json:"processed"`
	Valid             int    `json:"valid"`
	Invalid           int    `json:"invalid"`
	SkippedInvalid    int    `json:"skippedInvalid"`
	SkippedDuplicates int    `json:"skippedDuplicates"`
	Status            string `json:"status"`
}

type resumeBatchResponse struct {
	BatchID   string `json:"batchId"`
	Remaining int    `json:"remaining"`
	Processed int    `json:"processed"`
	Valid     int    `json:"valid"`
	Invalid   int    `json:"invalid"`
	Status    string `json:"status"`
}

type batchResponse struct {
	ID          string     `json:"id"`
	Category    string     `json:"category"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Valid       int        `json:"valid"`
	Invalid     int        `json:"invalid"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type resultResponse struct {
	Item         string          `json:"item"`
	Status       string          `json:"status"`
	Valid        bool            `json:"valid"`
	Outcome      *domain.Outcome `json:"outcome,omitempty"`
	HealthScore  *int            `json:"healthScore,omitempty"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	AttemptCount int             `json:"attemptCount"`
	CheckedAt    time.Time       `json:"checkedAt"`
}

type listResultsResponse struct {
	Data []resultResponse `json:"data"`
	Meta listMeta         `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *BatchHandler) StartBatch(c *fiber.Ctx) error {
	caller, _, err := callerIdentity(c)
	if err != nil {
		return err
	}

	var req startBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return err
	}

	result, err := h.service.StartBatch(c.Context(), caller, req.Items, category)
	if err != nil {
		return err
	}

	status := domain.BatchStatusCompleted
	if result.Interrupted {
		status = domain.BatchStatusProcessing
	}

	return c.Status(fiber.StatusCreated).JSON(startBatchResponse{
		BatchID:           result.BatchID,
		Total:             result.Total,
		Cached:            result.Cached,
		Called:            result.ToCall,
		Processed:         result.Processed,
		Valid:             result.Valid,
		Invalid:           result.Invalid,
		SkippedInvalid:    result.SkippedInvalid,
		SkippedDuplicates: result.SkippedDuplicates,
		Status:            status.String(),
	})
}

func (h *BatchHandler) AnalyzeBatch(c *fiber.Ctx) error {
	if _, _, err := callerIdentity(c); err != nil {
		return err
	}

	var req startBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return err
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: items is required", domain.ErrValidation)
	}

	return c.Status(fiber.StatusOK).JSON(h.service.Analyze(category, req.Items))
}

func (h *BatchHandler) ResumeBatch(c *fiber.Ctx) error {
	caller, admin, err := callerIdentity(c)
	if err != nil {
		return err
	}

	batchID := strings.TrimSpace(c.Params("id"))
	result, err := h.service.ResumeBatch(c.Context(), batchID, caller, admin)
	if err != nil {
		return err
	}

	status := domain.BatchStatusCompleted
	if result.Interrupted {
		status = domain.BatchStatusProcessing
	}

	return c.Status(fiber.StatusOK).JSON(resumeBatchResponse{
		BatchID:   result.BatchID,
		Remaining: result.Remaining,
		Processed: result.Processed,
		Valid:     result.Valid,
		Invalid:   result.Invalid,
		Status:    status.String(),
	})
}

func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	caller, _, err := callerIdentity(c)
	if err != nil {
		return err
	}

	batches, err := h.service.ListBatches(c.Context(), caller)
	if err != nil {
		return err
	}

	responses := make([]batchResponse, 0, len(batches))
	for i := range batches {
		responses = append(responses, toBatchResponse(&batches[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	caller, admin, err := callerIdentity(c)
	if err != nil {
		return err
	}

	batchID := strings.TrimSpace(c.Params("id"))
	batch, err := h.service.GetBatch(c.Context(), batchID, caller, admin)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) ListResults(c *fiber.Ctx) error {
	caller, admin, err := callerIdentity(c)
	if err != nil {
		return err
	}

	page := c.QueryInt("page", defaultPage)
	pageSize := c.QueryInt("pageSize", defaultPageSize)
	if page < 1 {
		return fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	batchID := strings.TrimSpace(c.Params("id"))
	results, total, err := h.service.Results(c.Context(), batchID, caller, admin, page, pageSize)
	if err != nil {
		return err
	}

	responses := make([]resultResponse, 0, len(results))
	for i := range results {
		responses = append(responses, toResultResponse(&results[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listResultsResponse{
		Data: responses,
		Meta: listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

// callerIdentity resolves the acting user from gateway headers. Authentication
// itself happens upstream of this service.
func callerIdentity(c *fiber.Ctx) (string, bool, error) {
	userID := strings.TrimSpace(c.Get(headerUserID))
	if userID == "" {
		return "", false, fmt.Errorf("%w: %s header is required", domain.ErrValidation, headerUserID)
	}

	admin := strings.EqualFold(strings.TrimSpace(c.Get(headerUserRole)), roleAdmin)
	return userID, admin, nil
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	return batchResponse{
		ID:          b.ID,
		Category:    b.Category.String(),
		Total:       b.TotalNumbers,
		Processed:   b.ProcessedNumbers,
		Valid:       b.ValidNumbers,
		Invalid:     b.InvalidNumbers,
		Status:      b.Status.String(),
		CreatedAt:   b.CreatedAt,
		CompletedAt: b.CompletedAt,
	}
}

func toResultResponse(r *domain.Result) resultResponse {
	if r == nil {
		return resultResponse{}
	}

	resp := resultResponse{
		Item:         r.Item,
		Status:       r.Status.String(),
		Valid:        r.Valid,
		Outcome:      r.Outcome,
		ErrorMessage: r.ErrorMessage,
		AttemptCount: r.AttemptCount,
		CheckedAt:    r.CreatedAt,
	}
	if r.Outcome != nil && r.Outcome.ValidNumber != "" {
		score := domain.HealthScore(r.Outcome)
		resp.HealthScore = &score
	}
	return resp
}
