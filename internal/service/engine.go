package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cembakir/veriflow/internal/broadcast"
	"github.com/cembakir/veriflow/internal/domain"
	"github.com/cembakir/veriflow/internal/events"
	"github.com/cembakir/veriflow/internal/normalize"
	"github.com/cembakir/veriflow/internal/observability"
	"github.com/cembakir/veriflow/internal/quota"
	"github.com/cembakir/veriflow/internal/ratelimit"
	"github.com/cembakir/veriflow/internal/repository"
	"github.com/cembakir/veriflow/internal/upstream"
	"go.uber.org/zap"
)

const (
	defaultInterCallDelay  = 150 * time.Millisecond
	defaultCheckpointEvery = 10
	defaultCachedFlush     = 50
	defaultUnitCost        = 0.01

	pacingScope = "verify"
)

// VerificationCache is the engine's view of the outcome cache.
type VerificationCache interface {
	GetMany(ctx context.Context, items []string) map[string]domain.Outcome
	Put(ctx context.Context, item string, outcome domain.Outcome)
}

// QuotaLedger is the engine's view of admission control.
type QuotaLedger interface {
	CheckAdmission(ctx context.Context, userID string, category domain.Category, requested int) (quota.Admission, error)
	RecordUsage(ctx context.Context, userID string, category domain.Category, count int) error
}

// EngineDeps wires the orchestrator's collaborators. Batches, Cache, Quota and
// Verifier are required; the rest degrade to no-ops when nil.
type EngineDeps struct {
	Batches     repository.BatchRepository
	Cache       VerificationCache
	Quota       QuotaLedger
	Verifier    upstream.Verifier
	Classifier  upstream.Classifier
	Limiter     ratelimit.RateLimiter
	Broadcaster *broadcast.Broadcaster
	Events      events.Publisher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Engine drives batches through the verification loop: admission, cache,
// upstream calls, per-item persistence, checkpoints and progress fan-out. One
// Engine instance owns the run registry and shutdown flag for the process.
type Engine struct {
	batches     repository.BatchRepository
	cache       VerificationCache
	quota       QuotaLedger
	verifier    upstream.Verifier
	classifier  upstream.Classifier
	limiter     ratelimit.RateLimiter
	broadcaster *broadcast.Broadcaster
	events      events.Publisher
	metrics     *observability.Metrics
	registry    *RunRegistry
	logger      *zap.Logger

	interCallDelay  time.Duration
	checkpointEvery int
	cachedFlush     int
	unitCost        float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("verification cache is required")
	}
	if deps.Quota == nil {
		return nil, fmt.Errorf("quota ledger is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("upstream verifier is required")
	}
	if deps.Classifier == nil {
		deps.Classifier = upstream.NewDefaultClassifier()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = broadcast.NewBroadcaster()
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Engine{
		batches:         deps.Batches,
		cache:           deps.Cache,
		quota:           deps.Quota,
		verifier:        deps.Verifier,
		classifier:      deps.Classifier,
		limiter:         deps.Limiter,
		broadcaster:     deps.Broadcaster,
		events:          deps.Events,
		metrics:         deps.Metrics,
		registry:        NewRunRegistry(),
		logger:          deps.Logger,
		interCallDelay:  defaultInterCallDelay,
		checkpointEvery: defaultCheckpointEvery,
		cachedFlush:     defaultCachedFlush,
		unitCost:        defaultUnitCost,
		now:             time.Now,
		sleep:           sleepWithContext,
	}, nil
}

// SetInterCallDelay overrides the fixed pacing delay between upstream calls.
func (e *Engine) SetInterCallDelay(d time.Duration) {
	if d >= 0 {
		e.interCallDelay = d
	}
}

// Broadcaster exposes the progress fan-out for transport handlers.
func (e *Engine) Broadcaster() *broadcast.Broadcaster {
	return e.broadcaster
}

// BeginShutdown raises the process-wide shutdown flag.
func (e *Engine) BeginShutdown() {
	e.registry.BeginShutdown()
}

// WaitIdle blocks until all active loops have checkpointed out.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.registry.WaitIdle(ctx)
}

// ActiveRuns reports the batches currently driven by this process.
func (e *Engine) ActiveRuns() []RunInfo {
	return e.registry.Active()
}

// GetBatch loads a batch, enforcing ownership unless admin.
func (e *Engine) GetBatch(ctx context.Context, batchID, callerID string, admin bool) (*domain.Batch, error) {
	batch, err := e.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.OwnerID != callerID && !admin {
		return nil, fmt.Errorf("%w: batch belongs to another user", domain.ErrForbidden)
	}
	return batch, nil
}

// ListBatches returns the caller's batches, newest first.
func (e *Engine) ListBatches(ctx context.Context, callerID string) ([]domain.Batch, error) {
	return e.batches.ListByOwner(ctx, callerID)
}

// Results pages through a batch's persisted results.
func (e *Engine) Results(ctx context.Context, batchID, callerID string, admin bool, page, pageSize int) ([]domain.Result, int64, error) {
	if _, err := e.GetBatch(ctx, batchID, callerID, admin); err != nil {
		return nil, 0, err
	}
	return e.batches.ResultsFor(ctx, batchID, page, pageSize)
}

// Analyze previews validity, duplicates and estimated cost savings without
// persisting anything.
func (e *Engine) Analyze(category domain.Category, items []string) normalize.Analysis {
	return normalize.AnalyzeBatch(category, items, e.unitCost)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
