package service

import (
	"context"
	"errors"

	"github.com/cembakir/veriflow/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultResumeConcurrency = 4

// ResumeIncomplete picks up every batch left in processing state, typically
// after a restart, and drives each to completion. Batches run as independent
// loops with bounded concurrency; one failing resume does not stop the others.
func (e *Engine) ResumeIncomplete(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = defaultResumeConcurrency
	}

	batches, err := e.batches.ListIncomplete(ctx)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return nil
	}

	e.logger.Info("resuming incomplete batches", zap.Int("count", len(batches)))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range batches {
		batch := batches[i]
		g.Go(func() error {
			result, err := e.ResumeBatch(groupCtx, batch.ID, batch.OwnerID, false)
			if err != nil {
				// Quota or a concurrent writer can legitimately block a
				// resume; the batch stays resumable either way.
				if errors.Is(err, domain.ErrAdmissionDenied) || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrShuttingDown) {
					e.logger.Warn("batch resume deferred",
						zap.String("batchId", batch.ID),
						zap.Error(err),
					)
					return nil
				}
				e.logger.Error("batch resume failed",
					zap.String("batchId", batch.ID),
					zap.Error(err),
				)
				return nil
			}

			e.logger.Info("batch resumed",
				zap.String("batchId", batch.ID),
				zap.Int("remaining", result.Remaining),
				zap.Bool("interrupted", result.Interrupted),
			)
			return nil
		})
	}

	return g.Wait()
}
