package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cembakir/veriflow/internal/domain"
	"github.com/cembakir/veriflow/internal/normalize"
	"github.com/cembakir/veriflow/internal/service"
	"github.com/cembakir/veriflow/internal/transport"
	"github.com/gofiber/fiber/v2"
)

type stubBatchService struct {
	startFn   func(ctx context.Context, ownerID string, rawItems []string, category domain.Category) (*service.StartResult, error)
	resumeFn  func(ctx context.Context, batchID, callerID string, admin bool) (*service.ResumeResult, error)
	getFn     func(ctx context.Context, batchID, callerID string, admin bool) (*domain.Batch, error)
	listFn    func(ctx context.Context, callerID string) ([]domain.Batch, error)
	resultsFn func(ctx context.Context, batchID, callerID string, admin bool, page, pageSize int) ([]domain.Result, int64, error)
	analyzeFn func(category domain.Category, items []string) normalize.Analysis
}

func (s *stubBatchService) StartBatch(ctx context.Context, ownerID string, rawItems []string, category domain.Category) (*service.StartResult, error) {
	if s.startFn != nil {
		return s.startFn(ctx, ownerID, rawItems, category)
	}
	return &service.StartResult{}, nil
}

func (s *stubBatchService) ResumeBatch(ctx context.Context, batchID, callerID string, admin bool) (*service.ResumeResult, error) {
	if s.resumeFn != nil {
		return s.resumeFn(ctx, batchID, callerID, admin)
	}
	return &service.ResumeResult{}, nil
}

func (s *stubBatchService) GetBatch(ctx context.Context, batchID, callerID string, admin bool) (*domain.Batch, error) {
	if s.getFn != nil {
		return s.getFn(ctx, batchID, callerID, admin)
	}
	return nil, domain.ErrNotFound
}

func (s *stubBatchService) ListBatches(ctx context.Context, callerID string) ([]domain.Batch, error) {
	if s.listFn != nil {
		return s.listFn(ctx, callerID)
	}
	return nil, nil
}

func (s *stubBatchService) Results(ctx context.Context, batchID, callerID string, admin bool, page, pageSize int) ([]domain.Result, int64, error) {
	if s.resultsFn != nil {
		return s.resultsFn(ctx, batchID, callerID, admin, page, pageSize)
	}
	return nil, 0, nil
}

func (s *stubBatchService) Analyze(category domain.Category, items []string) normalize.Analysis {
	if s.analyzeFn != nil {
		return s.analyzeFn(category, items)
	}
	return normalize.Analysis{}
}

func newBatchTestApp(t *testing.T, svc BatchService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(nil),
	})
	if err := RegisterBatchRoutes(app, svc); err != nil {
		t.Fatalf("RegisterBatchRoutes() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method, target, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reqBody)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, payload
}

func asUser(id string) map[string]string {
	return map[string]string{headerUserID: id}
}

func TestStartBatchEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		startFn: func(_ context.Context, ownerID string, rawItems []string, category domain.Category) (*service.StartResult, error) {
			if ownerID != "u1" {
				t.Errorf("ownerID = %q, want u1", ownerID)
			}
			if category != domain.CategoryNumbers {
				t.Errorf("category = %s, want numbers", category)
			}
			if len(rawItems) != 2 {
				t.Errorf("items = %v", rawItems)
			}
			return &service.StartResult{
				BatchID: "b-1", Total: 2, Cached: 1, ToCall: 1,
				Processed: 2, Valid: 2,
			}, nil
		},
	}
	app := newBatchTestApp(t, svc)

	body := `{"category":"numbers","items":["+4915123456789","+4915123456780"]}`
	resp, payload := performRequest(t, app, http.MethodPost, "/v1/batches", body, asUser("u1"))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, payload)
	}

	var got startBatchResponse
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if got.BatchID != "b-1" || got.Status != "completed" {
		t.Errorf("response = %+v", got)
	}
	if got.Cached != 1 || got.Called != 1 {
		t.Errorf("response = %+v, want cached 1 called 1", got)
	}
}

func TestStartBatchEndpointInterruptedStatus(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		startFn: func(context.Context, string, []string, domain.Category) (*service.StartResult, error) {
			return &service.StartResult{BatchID: "b-1", Total: 100, Processed: 40, Interrupted: true}, nil
		},
	}
	app := newBatchTestApp(t, svc)

	body := `{"category":"numbers","items":["+4915123456789"]}`
	resp, payload := performRequest(t, app, http.MethodPost, "/v1/batches", body, asUser("u1"))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var got startBatchResponse
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if got.Status != "processing" {
		t.Errorf("status = %q, want processing for interrupted batch", got.Status)
	}
}

func TestStartBatchEndpointRequiresUserHeader(t *testing.T) {
	t.Parallel()

	app := newBatchTestApp(t, &stubBatchService{})

	body := `{"category":"numbers","items":["+4915123456789"]}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/batches", body, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without %s", resp.StatusCode, headerUserID)
	}
}

func TestStartBatchEndpointErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: fmt.Errorf("%w: no valid items in batch", domain.ErrValidation), wantStatus: 400},
		{name: "quota denied", err: fmt.Errorf("%w: daily limit exceeded", domain.ErrAdmissionDenied), wantStatus: 429},
		{name: "shutting down", err: fmt.Errorf("%w: not accepting new batches", domain.ErrShuttingDown), wantStatus: 503},
		{name: "conflict", err: fmt.Errorf("%w: batch is already being processed", domain.ErrConflict), wantStatus: 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &stubBatchService{
				startFn: func(context.Context, string, []string, domain.Category) (*service.StartResult, error) {
					return nil, tt.err
				},
			}
			app := newBatchTestApp(t, svc)

			body := `{"category":"numbers","items":["+4915123456789"]}`
			resp, _ := performRequest(t, app, http.MethodPost, "/v1/batches", body, asUser("u1"))
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		analyzeFn: func(category domain.Category, items []string) normalize.Analysis {
			return normalize.Analysis{
				TotalOriginal:      4,
				UniqueCount:        2,
				DuplicateCount:     2,
				EstimatedCostSaved: 0.02,
			}
		},
	}
	app := newBatchTestApp(t, svc)

	body := `{"category":"numbers","items":["a","b","c","d"]}`
	resp, payload := performRequest(t, app, http.MethodPost, "/v1/analyze", body, asUser("u1"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got normalize.Analysis
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if got.UniqueCount != 2 || got.DuplicateCount != 2 {
		t.Errorf("analysis = %+v", got)
	}
}

func TestResumeEndpointPassesAdminRole(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		resumeFn: func(_ context.Context, batchID, callerID string, admin bool) (*service.ResumeResult, error) {
			if batchID != "b-1" || callerID != "ops" || !admin {
				t.Errorf("resume args = %s %s admin=%v", batchID, callerID, admin)
			}
			return &service.ResumeResult{BatchID: batchID, Resumed: true, Processed: 10}, nil
		},
	}
	app := newBatchTestApp(t, svc)

	headers := map[string]string{headerUserID: "ops", headerUserRole: "Admin"}
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/batches/b-1/resume", "", headers)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGetBatchEndpointNotFound(t *testing.T) {
	t.Parallel()

	app := newBatchTestApp(t, &stubBatchService{})

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/batches/missing", "", asUser("u1"))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListResultsEndpointPaginationValidation(t *testing.T) {
	t.Parallel()

	app := newBatchTestApp(t, &stubBatchService{})

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/batches/b-1/results?page=0", "", asUser("u1"))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for page=0", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/batches/b-1/results?pageSize=9999", "", asUser("u1"))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized pageSize", resp.StatusCode)
	}
}

func TestListResultsEndpointIncludesHealthScore(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		resultsFn: func(_ context.Context, batchID, callerID string, admin bool, page, pageSize int) ([]domain.Result, int64, error) {
			return []domain.Result{
				{
					Item:   "+4915123456789",
					Status: domain.ResultStatusSuccess,
					Valid:  true,
					Outcome: &domain.Outcome{
						ValidNumber:        "valid",
						Reachable:          "reachable",
						Ported:             "not_ported",
						Roaming:            "not_roaming",
						CurrentNetworkType: "mobile",
					},
				},
			}, 1, nil
		},
	}
	app := newBatchTestApp(t, svc)

	resp, payload := performRequest(t, app, http.MethodGet, "/v1/batches/b-1/results", "", asUser("u1"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got listResultsResponse
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(got.Data) != 1 {
		t.Fatalf("len(Data) = %d, want 1", len(got.Data))
	}
	if got.Data[0].HealthScore == nil || *got.Data[0].HealthScore != 100 {
		t.Errorf("health score = %v, want 100", got.Data[0].HealthScore)
	}
	if got.Meta.Total != 1 {
		t.Errorf("meta total = %d, want 1", got.Meta.Total)
	}
}
