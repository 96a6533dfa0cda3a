package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
)

func TestRegistryRejectsDoubleRegistration(t *testing.T) {
	t.Parallel()

	r := NewRunRegistry()

	if err := r.Register("batch-1", "u1", 10); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("batch-1", "u1", 10); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Register() error = %v, want ErrConflict", err)
	}

	r.Unregister("batch-1")
	if err := r.Register("batch-1", "u1", 10); err != nil {
		t.Fatalf("Register() after Unregister error = %v", err)
	}
}

func TestRegistryTracksProgress(t *testing.T) {
	t.Parallel()

	r := NewRunRegistry()
	if err := r.Register("batch-1", "u1", 100); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	r.Update("batch-1", 42)

	active := r.Active()
	if len(active) != 1 {
		t.Fatalf("len(Active()) = %d, want 1", len(active))
	}
	if active[0].Processed != 42 || active[0].Total != 100 || active[0].OwnerID != "u1" {
		t.Errorf("run info = %+v", active[0])
	}

	// Update for an unknown id must not panic or create an entry.
	r.Update("ghost", 1)
	if r.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", r.ActiveCount())
	}
}

func TestRegistryShutdownFlag(t *testing.T) {
	t.Parallel()

	r := NewRunRegistry()
	if r.IsShuttingDown() {
		t.Fatal("fresh registry should not be shutting down")
	}

	r.BeginShutdown()
	if !r.IsShuttingDown() {
		t.Fatal("flag should stick after BeginShutdown")
	}
}

func TestWaitIdleReturnsOnceEmpty(t *testing.T) {
	t.Parallel()

	r := NewRunRegistry()
	if err := r.Register("batch-1", "u1", 5); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		r.Unregister("batch-1")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
}

func TestWaitIdleHonorsContext(t *testing.T) {
	t.Parallel()

	r := NewRunRegistry()
	if err := r.Register("batch-1", "u1", 5); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := r.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitIdle() error = %v, want DeadlineExceeded", err)
	}
}
