// Package quota implements per-user, per-category admission control over
// day/ISO-week/month rolling windows plus a per-batch ceiling.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
	"github.com/cembakir/veriflow/internal/repository"
	"go.uber.org/zap"
)

// Admission is the outcome of a quota pre-check. Reason is human-readable and
// names the violated ceiling and current usage.
type Admission struct {
	Allowed bool
	Reason  string
	Usage   domain.UsageSnapshot
}

type Ledger struct {
	repo   repository.QuotaRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(repo repository.QuotaRepository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CheckAdmission decides whether requested upstream calls may proceed. It is
// read-only: stale counters are treated as zero for the check but no reset is
// written, so the check stays cheap enough to run before any upstream spend.
//
// Ceilings are evaluated in a fixed order and the first violation wins:
// per-batch, daily, weekly, monthly. A nil ceiling is unlimited and skipped.
func (l *Ledger) CheckAdmission(ctx context.Context, userID string, category domain.Category, requested int) (Admission, error) {
	counters, err := l.repo.Get(ctx, userID, category)
	if errors.Is(err, domain.ErrNotFound) {
		// No row configured: unlimited, nothing used.
		return Admission{Allowed: true}, nil
	}
	if err != nil {
		return Admission{}, fmt.Errorf("failed to load quota counters: %w", err)
	}

	labels := labelsFor(l.now())

	dailyUsed := counters.DailyUsed
	if counters.DailyMarker != labels.Day {
		dailyUsed = 0
	}
	weeklyUsed := counters.WeeklyUsed
	if counters.WeeklyMarker != labels.Week {
		weeklyUsed = 0
	}
	monthlyUsed := counters.MonthlyUsed
	if counters.MonthlyMarker != labels.Month {
		monthlyUsed = 0
	}

	usage := domain.UsageSnapshot{
		DailyUsed:    dailyUsed,
		WeeklyUsed:   weeklyUsed,
		MonthlyUsed:  monthlyUsed,
		DailyLimit:   counters.DailyLimit,
		WeeklyLimit:  counters.WeeklyLimit,
		MonthlyLimit: counters.MonthlyLimit,
		BatchLimit:   counters.BatchLimit,
	}

	if counters.BatchLimit != nil && requested > *counters.BatchLimit {
		return Admission{
			Reason: fmt.Sprintf("batch limit exceeded: requested %d, limit %d per batch", requested, *counters.BatchLimit),
			Usage:  usage,
		}, nil
	}
	if counters.DailyLimit != nil && dailyUsed+requested > *counters.DailyLimit {
		return Admission{
			Reason: fmt.Sprintf("daily limit exceeded: used %d of %d, requested %d", dailyUsed, *counters.DailyLimit, requested),
			Usage:  usage,
		}, nil
	}
	if counters.WeeklyLimit != nil && weeklyUsed+requested > *counters.WeeklyLimit {
		return Admission{
			Reason: fmt.Sprintf("weekly limit exceeded: used %d of %d, requested %d", weeklyUsed, *counters.WeeklyLimit, requested),
			Usage:  usage,
		}, nil
	}
	if counters.MonthlyLimit != nil && monthlyUsed+requested > *counters.MonthlyLimit {
		return Admission{
			Reason: fmt.Sprintf("monthly limit exceeded: used %d of %d, requested %d", monthlyUsed, *counters.MonthlyLimit, requested),
			Usage:  usage,
		}, nil
	}

	return Admission{Allowed: true, Usage: usage}, nil
}

// RecordUsage spends count units across all three windows. Lazy reset and
// increment happen atomically under the counters row lock.
func (l *Ledger) RecordUsage(ctx context.Context, userID string, category domain.Category, count int) error {
	if count <= 0 {
		return nil
	}

	if err := l.repo.ApplyUsage(ctx, userID, category, count, labelsFor(l.now())); err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}

	l.logger.Debug("quota usage recorded",
		zap.String("userId", userID),
		zap.String("category", category.String()),
		zap.Int("count", count),
	)
	return nil
}

// labelsFor derives the day, ISO-8601 week (Thursday rule) and month labels
// for the given instant.
func labelsFor(t time.Time) repository.WindowLabels {
	year, week := t.ISOWeek()
	return repository.WindowLabels{
		Day:   t.Format("2006-01-02"),
		Week:  fmt.Sprintf("%04d-W%02d", year, week),
		Month: t.Format("2006-01"),
	}
}
