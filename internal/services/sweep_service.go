package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulsekeep/internal/metrics"
	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
)

// postponeOnError is how far a check's deadline is pushed when its
// schedule cannot be evaluated, so one broken check cannot wedge the
// sweep loop.
const postponeOnError = time.Hour

// SweepService detects missed deadlines. It runs periodically, moves
// overdue checks through grace into down, and emits the flips that drive
// notifications. All transitions are guarded updates, so several sweepers
// can run concurrently without duplicating flips.
type SweepService struct {
	checks    storage.CheckStore
	flips     storage.FlipStore
	queue     storage.Queue
	metrics   *metrics.Metrics
	log       *slog.Logger
	batchSize int
	now       func() time.Time
}

func NewSweepService(checks storage.CheckStore, flips storage.FlipStore, queue storage.Queue,
	m *metrics.Metrics, log *slog.Logger, batchSize int) *SweepService {
	return &SweepService{
		checks:    checks,
		flips:     flips,
		queue:     queue,
		metrics:   m,
		log:       log,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Sweep runs one full pass: grace entries first, then down transitions.
func (s *SweepService) Sweep(ctx context.Context) error {
	started := s.now()

	if err := s.sweepGrace(ctx); err != nil {
		return err
	}
	if err := s.sweepDown(ctx); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}
	return nil
}

func (s *SweepService) sweepGrace(ctx context.Context) error {
	due, err := s.checks.DueForGrace(ctx, s.now(), s.batchSize)
	if err != nil {
		return fmt.Errorf("query grace-due checks: %w", err)
	}

	for _, check := range due {
		current, err := check.CurrentStatus(s.now())
		if err != nil {
			s.postpone(ctx, check, err)
			continue
		}
		if current != models.StatusGrace && current != models.StatusDown {
			continue
		}

		ok, err := s.checks.UpdateStatusIf(ctx, check.Code, models.StatusUp, models.StatusGrace, check.AlertAfter)
		if err != nil {
			s.log.Error("grace transition failed", "check", check.Code, "error", err)
			continue
		}
		if !ok {
			// A ping or another sweeper moved the check first.
			continue
		}
		s.emitFlip(ctx, check.Code, models.StatusUp, models.StatusGrace, models.ReasonLate)
	}
	return nil
}

func (s *SweepService) sweepDown(ctx context.Context) error {
	due, err := s.checks.Due(ctx, s.now(), s.batchSize)
	if err != nil {
		return fmt.Errorf("query due checks: %w", err)
	}

	for _, check := range due {
		current, err := check.CurrentStatus(s.now())
		if err != nil {
			s.postpone(ctx, check, err)
			continue
		}
		if current != models.StatusDown {
			continue
		}

		ok, err := s.checks.UpdateStatusIf(ctx, check.Code, check.Status, models.StatusDown, nil)
		if err != nil {
			s.log.Error("down transition failed", "check", check.Code, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.emitFlip(ctx, check.Code, check.Status, models.StatusDown, models.ReasonTimeout)
	}
	return nil
}

func (s *SweepService) postpone(ctx context.Context, check *models.Check, cause error) {
	s.log.Error("cannot evaluate check schedule, postponing",
		"check", check.Code, "error", cause)
	if err := s.checks.PostponeAlert(ctx, check.Code, s.now().Add(postponeOnError)); err != nil {
		s.log.Error("postpone failed", "check", check.Code, "error", err)
	}
}

func (s *SweepService) emitFlip(ctx context.Context, checkCode string, from, to models.CheckStatus, reason string) {
	flip := &models.Flip{
		CheckCode: checkCode,
		CreatedAt: s.now(),
		OldStatus: from,
		NewStatus: to,
		Reason:    reason,
	}
	if err := s.flips.Create(ctx, flip); err != nil {
		s.log.Error("failed to create flip", "check", checkCode, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.FlipsTotal.WithLabelValues(string(to)).Inc()
	}
	if err := s.queue.PushFlip(ctx, flip.ID); err != nil {
		// Dispatch picks it up through the unprocessed-flip scan.
		s.log.Error("failed to queue flip", "flip", flip.ID, "error", err)
	}
}

// Prune deletes pings and flips older than the retention windows.
func (s *SweepService) Prune(ctx context.Context, pings storage.PingStore, pingRetention, flipRetention time.Duration) {
	now := s.now()
	if pingRetention > 0 {
		if n, err := pings.DeleteOlderThan(ctx, now.Add(-pingRetention)); err != nil {
			s.log.Error("ping pruning failed", "error", err)
		} else if n > 0 {
			s.log.Info("pruned old pings", "count", n)
		}
	}
	if flipRetention > 0 {
		if n, err := s.flips.DeleteOlderThan(ctx, now.Add(-flipRetention)); err != nil {
			s.log.Error("flip pruning failed", "error", err)
		} else if n > 0 {
			s.log.Info("pruned old flips", "count", n)
		}
	}
}
