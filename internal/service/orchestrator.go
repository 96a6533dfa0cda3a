package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
	"github.com/cembakir/veriflow/internal/events"
	"github.com/cembakir/veriflow/internal/normalize"
	"github.com/cembakir/veriflow/internal/upstream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartResult summarizes a StartBatch call. Interrupted means the loop
// checkpointed out cleanly on shutdown and the batch can be resumed.
type StartResult struct {
	BatchID           string
	Total             int
	Cached            int
	ToCall            int
	Processed         int
	Valid             int
	Invalid           int
	SkippedInvalid    int
	SkippedDuplicates int
	Interrupted       bool
}

// ResumeResult summarizes a ResumeBatch call.
type ResumeResult struct {
	BatchID     string
	Resumed     bool
	Remaining   int
	Processed   int
	Valid       int
	Invalid     int
	Interrupted bool
}

// sessionOutcome carries the absolute batch counters at the end of one
// processing session plus how many upstream calls it spent.
type sessionOutcome struct {
	processed   int
	valid       int
	invalid     int
	callsMade   int
	interrupted bool
}

// StartBatch normalizes and dedups the input, checks quota admission for the
// cache-miss portion, persists the batch, then drains it item by item. It
// returns once the batch completes, is interrupted by shutdown, or hits an
// infrastructure failure.
func (e *Engine) StartBatch(ctx context.Context, ownerID string, rawItems []string, category domain.Category) (*StartResult, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, category)
	}
	if len(rawItems) == 0 {
		return nil, fmt.Errorf("%w: item list is empty", domain.ErrValidation)
	}

	analysis := normalize.AnalyzeBatch(category, rawItems, e.unitCost)

	canonical := make([]string, 0, len(analysis.ValidItems))
	for _, item := range analysis.ValidItems {
		canonical = append(canonical, item.Normalized)
	}
	if len(canonical) == 0 {
		return nil, fmt.Errorf("%w: no valid items in batch", domain.ErrValidation)
	}

	hits := e.cache.GetMany(ctx, canonical)
	toCall := len(canonical) - len(hits)

	admission, err := e.quota.CheckAdmission(ctx, ownerID, category, toCall)
	if err != nil {
		return nil, err
	}
	if !admission.Allowed {
		e.markQuotaDenied(category)
		return nil, fmt.Errorf("%w: %s", domain.ErrAdmissionDenied, admission.Reason)
	}

	if e.registry.IsShuttingDown() {
		return nil, fmt.Errorf("%w: not accepting new batches", domain.ErrShuttingDown)
	}

	batch := &domain.Batch{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Category:      category,
		DeclaredItems: canonical,
		TotalNumbers:  len(canonical),
		Status:        domain.BatchStatusProcessing,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	if err := e.registry.Register(batch.ID, ownerID, batch.TotalNumbers); err != nil {
		return nil, err
	}
	defer e.registry.Unregister(batch.ID)

	e.markBatchStarted(category)
	e.publishLifecycle(ctx, batch, events.KindStarted, 0)

	outcome, err := e.runSession(ctx, batch, canonical, hits)
	if err != nil {
		return nil, err
	}

	return &StartResult{
		BatchID:           batch.ID,
		Total:             batch.TotalNumbers,
		Cached:            len(hits),
		ToCall:            toCall,
		Processed:         outcome.processed,
		Valid:             outcome.valid,
		Invalid:           outcome.invalid,
		SkippedInvalid:    analysis.InvalidCount,
		SkippedDuplicates: analysis.DuplicateCount,
		Interrupted:       outcome.interrupted,
	}, nil
}

// ResumeBatch continues an interrupted batch. The remaining set is the
// declared item list minus the items that already have a Result row; counters
// accumulate onto the batch's existing values.
func (e *Engine) ResumeBatch(ctx context.Context, batchID, callerID string, admin bool) (*ResumeResult, error) {
	batch, err := e.GetBatch(ctx, batchID, callerID, admin)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.BatchStatusProcessing {
		return nil, fmt.Errorf("%w: batch is %s, not resumable", domain.ErrConflict, batch.Status)
	}

	checked, err := e.batches.CheckedItemsFor(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checked items: %w", err)
	}

	remaining := make([]string, 0, len(batch.DeclaredItems))
	for _, item := range batch.DeclaredItems {
		if _, done := checked[item]; !done {
			remaining = append(remaining, item)
		}
	}

	// Self-healing: the batch only looks unfinished because the completion
	// write was interrupted.
	if len(remaining) == 0 {
		if err := e.finalizeBatch(ctx, batch, batch.ProcessedNumbers, batch.ValidNumbers, batch.InvalidNumbers); err != nil {
			return nil, err
		}
		return &ResumeResult{
			BatchID:   batchID,
			Resumed:   true,
			Remaining: 0,
			Processed: batch.ProcessedNumbers,
			Valid:     batch.ValidNumbers,
			Invalid:   batch.InvalidNumbers,
		}, nil
	}

	admission, err := e.quota.CheckAdmission(ctx, batch.OwnerID, batch.Category, len(remaining))
	if err != nil {
		return nil, err
	}
	if !admission.Allowed {
		e.markQuotaDenied(batch.Category)
		return nil, fmt.Errorf("%w: %s", domain.ErrAdmissionDenied, admission.Reason)
	}

	if e.registry.IsShuttingDown() {
		return nil, fmt.Errorf("%w: not resuming batches", domain.ErrShuttingDown)
	}

	if err := e.registry.Register(batch.ID, batch.OwnerID, batch.TotalNumbers); err != nil {
		return nil, fmt.Errorf("%w: batch is already being processed", domain.ErrConflict)
	}
	defer e.registry.Unregister(batch.ID)

	hits := e.cache.GetMany(ctx, remaining)

	outcome, err := e.runSession(ctx, batch, remaining, hits)
	if err != nil {
		return nil, err
	}

	return &ResumeResult{
		BatchID:     batchID,
		Resumed:     true,
		Remaining:   len(remaining),
		Processed:   outcome.processed,
		Valid:       outcome.valid,
		Invalid:     outcome.invalid,
		Interrupted: outcome.interrupted,
	}, nil
}

// runSession drains pending items for a batch: cached outcomes are flushed
// first, then cache misses are verified upstream one at a time. Counters are
// absolute (they continue from the batch row) so checkpoints and progress
// events always reflect batch-level totals.
func (e *Engine) runSession(ctx context.Context, batch *domain.Batch, pending []string, hits map[string]domain.Outcome) (*sessionOutcome, error) {
	processed := batch.ProcessedNumbers
	valid := batch.ValidNumbers
	invalid := batch.InvalidNumbers
	callsMade := 0

	if e.metrics != nil {
		e.metrics.IncBatchInFlight(batch.Category.String())
		defer e.metrics.DecBatchInFlight(batch.Category.String())
	}

	finishInterrupted := func() (*sessionOutcome, error) {
		if err := e.checkpoint(ctx, batch.ID, processed, valid, invalid); err != nil {
			return nil, err
		}
		e.recordUsage(ctx, batch, callsMade)
		e.publishProgress(batch, processed, valid, invalid, domain.ProgressStatusInterrupted, "")
		e.publishLifecycle(ctx, batch, events.KindInterrupted, processed)
		e.markBatchInterrupted(batch.Category)
		e.logger.Info("batch interrupted by shutdown",
			zap.String("batchId", batch.ID),
			zap.Int("processed", processed),
			zap.Int("total", batch.TotalNumbers),
		)
		return &sessionOutcome{
			processed: processed, valid: valid, invalid: invalid,
			callsMade: callsMade, interrupted: true,
		}, nil
	}

	// Cached outcomes first: no upstream spend, no pacing, flush in bulk with
	// periodic checkpoints.
	cachedWrites := 0
	for _, item := range pending {
		outcome, ok := hits[item]
		if !ok {
			continue
		}

		result := e.buildSuccessResult(batch, item, outcome, 0)
		inserted, err := e.batches.AppendResult(ctx, result)
		if err != nil {
			_ = e.checkpoint(ctx, batch.ID, processed, valid, invalid)
			return nil, fmt.Errorf("failed to persist cached result: %w", err)
		}
		if !inserted {
			continue
		}

		processed++
		if result.Valid {
			valid++
		} else {
			invalid++
		}
		cachedWrites++
		e.markCacheHit(batch.Category)
		e.registry.Update(batch.ID, processed)

		if cachedWrites%e.cachedFlush == 0 {
			if err := e.checkpoint(ctx, batch.ID, processed, valid, invalid); err != nil {
				return nil, err
			}
			e.publishProgress(batch, processed, valid, invalid, domain.ProgressStatusProcessing, "")
		}
	}

	toCall := make([]string, 0, len(pending)-cachedWrites)
	for _, item := range pending {
		if _, ok := hits[item]; !ok {
			toCall = append(toCall, item)
		}
	}

	for i, item := range toCall {
		if e.registry.IsShuttingDown() {
			return finishInterrupted()
		}

		// Another writer may have raced this item in; the check is re-read
		// here, immediately before dispatch, never cached across the session.
		exists, err := e.batches.HasResult(ctx, batch.ID, item)
		if err != nil {
			_ = e.checkpoint(ctx, batch.ID, processed, valid, invalid)
			return nil, fmt.Errorf("failed to check item state: %w", err)
		}
		if exists {
			continue
		}

		if callsMade > 0 {
			if err := e.pace(ctx); err != nil {
				_ = e.checkpoint(ctx, batch.ID, processed, valid, invalid)
				return nil, err
			}
		}

		result, err := e.verifyOne(ctx, batch, item)
		if err != nil {
			_ = e.checkpoint(ctx, batch.ID, processed, valid, invalid)
			return nil, err
		}
		callsMade++

		inserted, err := e.batches.AppendResult(ctx, result)
		if err != nil {
			_ = e.checkpoint(ctx, batch.ID, processed, valid, invalid)
			return nil, fmt.Errorf("failed to persist result: %w", err)
		}
		if !inserted {
			continue
		}

		processed++
		if result.Valid {
			valid++
		} else {
			invalid++
		}
		e.registry.Update(batch.ID, processed)
		e.markItemVerified(batch.Category, result.Status)

		last := i == len(toCall)-1
		if (i+1)%e.checkpointEvery == 0 || last {
			if err := e.checkpoint(ctx, batch.ID, processed, valid, invalid); err != nil {
				return nil, err
			}
			e.publishProgress(batch, processed, valid, invalid, domain.ProgressStatusProcessing, item)
		}
	}

	if err := e.finalizeBatch(ctx, batch, processed, valid, invalid); err != nil {
		return nil, err
	}
	e.recordUsage(ctx, batch, callsMade)

	return &sessionOutcome{
		processed: processed, valid: valid, invalid: invalid,
		callsMade: callsMade,
	}, nil
}

// verifyOne calls upstream for a single item and always produces a Result:
// upstream failures are swallowed into an error row, never propagated. Only a
// nil result with error means the context died.
func (e *Engine) verifyOne(ctx context.Context, batch *domain.Batch, item string) (*domain.Result, error) {
	start := e.now()
	outcome, err := e.verifier.Verify(ctx, item, batch.Category)
	e.observeVerifyDuration(batch.Category, e.now().Sub(start))

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		attempts := 1
		var upstreamErr *upstream.Error
		if errors.As(err, &upstreamErr) && upstreamErr.Attempts > 0 {
			attempts = upstreamErr.Attempts
		}

		message := err.Error()
		e.logger.Warn("item verification failed",
			zap.String("batchId", batch.ID),
			zap.String("item", item),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)

		return &domain.Result{
			ID:           uuid.NewString(),
			BatchID:      batch.ID,
			Item:         item,
			Status:       domain.ResultStatusError,
			ErrorMessage: &message,
			AttemptCount: attempts,
			CreatedAt:    e.now().UTC(),
		}, nil
	}

	e.cache.Put(ctx, item, *outcome)
	return e.buildSuccessResult(batch, item, *outcome, 1), nil
}

func (e *Engine) buildSuccessResult(batch *domain.Batch, item string, outcome domain.Outcome, attempts int) *domain.Result {
	isValid := outcome.IsValid(batch.Category) && !e.classifier.ForceInvalid(&outcome)

	return &domain.Result{
		ID:           uuid.NewString(),
		BatchID:      batch.ID,
		Item:         item,
		Status:       domain.ResultStatusSuccess,
		Outcome:      &outcome,
		Valid:        isValid,
		AttemptCount: attempts,
		CreatedAt:    e.now().UTC(),
	}
}

// pace enforces the fleet-wide per-second ceiling and the fixed inter-call
// delay between successive verifications in this loop.
func (e *Engine) pace(ctx context.Context) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, pacingScope); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}
	return e.sleep(ctx, e.interCallDelay)
}

func (e *Engine) checkpoint(ctx context.Context, batchID string, processed, valid, invalid int) error {
	err := e.batches.Update(ctx, batchID, map[string]any{
		"processed_numbers": processed,
		"valid_numbers":     valid,
		"invalid_numbers":   invalid,
	})
	if err != nil {
		return fmt.Errorf("failed to checkpoint batch: %w", err)
	}
	return nil
}

func (e *Engine) finalizeBatch(ctx context.Context, batch *domain.Batch, processed, valid, invalid int) error {
	completedAt := e.now().UTC()
	err := e.batches.Update(ctx, batch.ID, map[string]any{
		"status":            domain.BatchStatusCompleted,
		"processed_numbers": processed,
		"valid_numbers":     valid,
		"invalid_numbers":   invalid,
		"completed_at":      completedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to complete batch: %w", err)
	}

	e.publishProgress(batch, processed, valid, invalid, domain.ProgressStatusCompleted, "")
	e.publishLifecycle(ctx, batch, events.KindCompleted, processed)
	e.markBatchCompleted(batch.Category)
	e.logger.Info("batch completed",
		zap.String("batchId", batch.ID),
		zap.Int("processed", processed),
		zap.Int("valid", valid),
		zap.Int("invalid", invalid),
	)
	return nil
}

// recordUsage spends quota for the upstream calls made this session. Cache
// hits never reach here. Failure to record is logged, not propagated: the
// results are already durable.
func (e *Engine) recordUsage(ctx context.Context, batch *domain.Batch, callsMade int) {
	if callsMade == 0 {
		return
	}
	if err := e.quota.RecordUsage(ctx, batch.OwnerID, batch.Category, callsMade); err != nil {
		e.logger.Error("failed to record quota usage",
			zap.String("batchId", batch.ID),
			zap.String("userId", batch.OwnerID),
			zap.Int("count", callsMade),
			zap.Error(err),
		)
	}
}

func (e *Engine) publishProgress(batch *domain.Batch, processed, valid, invalid int, status, currentItem string) {
	e.broadcaster.Publish(batch.ID, domain.ProgressEvent{
		BatchID:     batch.ID,
		Processed:   processed,
		Total:       batch.TotalNumbers,
		Valid:       valid,
		Invalid:     invalid,
		Status:      status,
		CurrentItem: currentItem,
	})
}

func (e *Engine) publishLifecycle(ctx context.Context, batch *domain.Batch, kind string, processed int) {
	ev := events.BatchEvent{
		BatchID:   batch.ID,
		OwnerID:   batch.OwnerID,
		Kind:      kind,
		Category:  batch.Category.String(),
		Total:     batch.TotalNumbers,
		Processed: processed,
		At:        e.now().UTC(),
	}
	if err := e.events.PublishBatchEvent(ctx, ev); err != nil {
		e.logger.Warn("failed to publish batch lifecycle event",
			zap.String("batchId", batch.ID),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func (e *Engine) markBatchStarted(category domain.Category) {
	if e.metrics != nil {
		e.metrics.IncBatchStarted(category.String())
	}
}

func (e *Engine) markBatchCompleted(category domain.Category) {
	if e.metrics != nil {
		e.metrics.IncBatchCompleted(category.String())
	}
}

func (e *Engine) markBatchInterrupted(category domain.Category) {
	if e.metrics != nil {
		e.metrics.IncBatchInterrupted(category.String())
	}
}

func (e *Engine) markItemVerified(category domain.Category, status domain.ResultStatus) {
	if e.metrics != nil {
		e.metrics.IncItemVerified(category.String(), status.String())
	}
}

func (e *Engine) markCacheHit(category domain.Category) {
	if e.metrics != nil {
		e.metrics.IncCacheHit(category.String())
	}
}

func (e *Engine) markQuotaDenied(category domain.Category) {
	if e.metrics != nil {
		e.metrics.IncQuotaDenied(category.String())
	}
}

func (e *Engine) observeVerifyDuration(category domain.Category, d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveVerifyDuration(category.String(), d)
	}
}
