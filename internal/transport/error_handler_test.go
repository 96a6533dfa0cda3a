package transport

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/cembakir/veriflow/internal/domain"
	"github.com/gofiber/fiber/v2"
)

func TestErrorHandlerStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: fmt.Errorf("%w: bad input", domain.ErrValidation), wantStatus: 400},
		{name: "not found", err: domain.ErrNotFound, wantStatus: 404},
		{name: "forbidden", err: domain.ErrForbidden, wantStatus: 403},
		{name: "conflict", err: domain.ErrConflict, wantStatus: 409},
		{name: "admission denied", err: domain.ErrAdmissionDenied, wantStatus: 429},
		{name: "shutting down", err: domain.ErrShuttingDown, wantStatus: 503},
		{name: "fiber error passthrough", err: fiber.NewError(fiber.StatusTeapot, "teapot"), wantStatus: 418},
		{name: "unknown error", err: fmt.Errorf("boom"), wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
			app.Get("/fail", func(c *fiber.Ctx) error {
				return tt.err
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
