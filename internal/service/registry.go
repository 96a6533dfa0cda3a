package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
)

// RunInfo is a live snapshot of one actively driven batch loop. It exists to
// report and interrupt, never to reconstruct truth; the Batch row and its
// Result rows are the durable record.
type RunInfo struct {
	BatchID   string
	OwnerID   string
	Processed int
	Total     int
	StartedAt time.Time
}

// RunRegistry tracks batches actively driven by this process and carries the
// process-wide shutdown flag. Registration doubles as the per-batch
// single-writer guard: a second Start/Resume for an active id is rejected.
type RunRegistry struct {
	mu           sync.Mutex
	active       map[string]*RunInfo
	shuttingDown atomic.Bool
	now          func() time.Time
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{
		active: make(map[string]*RunInfo),
		now:    time.Now,
	}
}

// BeginShutdown raises the cooperative shutdown flag. Active loops observe it
// before dispatching their next item and checkpoint out.
func (r *RunRegistry) BeginShutdown() {
	r.shuttingDown.Store(true)
}

func (r *RunRegistry) IsShuttingDown() bool {
	return r.shuttingDown.Load()
}

// Register claims the batch id for this process. ErrConflict means another
// loop is already driving it.
func (r *RunRegistry) Register(batchID, ownerID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[batchID]; ok {
		return domain.ErrConflict
	}

	r.active[batchID] = &RunInfo{
		BatchID:   batchID,
		OwnerID:   ownerID,
		Total:     total,
		StartedAt: r.now(),
	}
	return nil
}

func (r *RunRegistry) Update(batchID string, processed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.active[batchID]; ok {
		info.Processed = processed
	}
}

func (r *RunRegistry) Unregister(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, batchID)
}

// Active returns snapshots of all currently driven batches.
func (r *RunRegistry) Active() []RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]RunInfo, 0, len(r.active))
	for _, info := range r.active {
		infos = append(infos, *info)
	}
	return infos
}

func (r *RunRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// WaitIdle blocks until every active loop has unregistered or the context
// expires.
func (r *RunRegistry) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if r.ActiveCount() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
