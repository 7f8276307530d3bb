package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulsekeep/internal/metrics"
	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
)

// ErrCheckNotFound is returned for pings addressed to unknown check codes.
var ErrCheckNotFound = errors.New("check not found")

// PingRequest carries the request metadata recorded with each ping.
type PingRequest struct {
	Action     models.PingAction
	Scheme     string
	RemoteAddr string
	Method     string
	UserAgent  string
	Body       string
	ExitStatus *int
}

// PingService applies inbound pings to checks. Status changes produce
// flips, which the dispatcher turns into notifications.
type PingService struct {
	checks  storage.CheckStore
	pings   storage.PingStore
	flips   storage.FlipStore
	queue   storage.Queue
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewPingService(checks storage.CheckStore, pings storage.PingStore, flips storage.FlipStore,
	queue storage.Queue, m *metrics.Metrics, log *slog.Logger) *PingService {
	return &PingService{
		checks:  checks,
		pings:   pings,
		flips:   flips,
		queue:   queue,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// OnPing records the ping and applies its effect on the check's status.
// Concurrent updates are resolved by re-reading and retrying; the losing
// request never overwrites the winner's transition.
func (s *PingService) OnPing(ctx context.Context, code string, req PingRequest) (*models.Check, error) {
	var check *models.Check

	for attempt := 0; attempt < 3; attempt++ {
		var err error
		check, err = s.checks.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("load check: %w", err)
		}
		if check == nil {
			return nil, ErrCheckNotFound
		}

		n, ok, err := s.applyOnce(ctx, check, req)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		ping := &models.Ping{
			CheckCode:  check.Code,
			N:          n,
			CreatedAt:  s.now(),
			Action:     req.Action,
			Scheme:     req.Scheme,
			RemoteAddr: req.RemoteAddr,
			Method:     req.Method,
			UserAgent:  req.UserAgent,
			Body:       req.Body,
			ExitStatus: req.ExitStatus,
		}
		if err := s.pings.Create(ctx, ping); err != nil {
			return nil, fmt.Errorf("record ping: %w", err)
		}
		if s.metrics != nil {
			s.metrics.PingsTotal.WithLabelValues(actionLabel(req.Action)).Inc()
		}
		return check, nil
	}
	return nil, fmt.Errorf("check %s: too much contention", code)
}

func actionLabel(a models.PingAction) string {
	if a == models.ActionSuccess {
		return "success"
	}
	return string(a)
}

// applyOnce computes and writes the new check state. The second return is
// false when the guarded update lost a race and the caller should retry.
func (s *PingService) applyOnce(ctx context.Context, check *models.Check, req PingRequest) (int, bool, error) {
	now := s.now()
	oldStatus := check.Status
	action := req.Action

	// A paused check with manual resume stays paused; the ping is recorded
	// but ignored.
	if check.Status == models.StatusPaused && check.ManualResume {
		action = models.ActionIgn
	}

	var newStatus models.CheckStatus
	var reason string

	switch action {
	case models.ActionIgn:
		newStatus = oldStatus

	case models.ActionStart:
		start := now
		check.LastStart = &start
		newStatus = oldStatus

	case models.ActionFail:
		check.LastPing = &now
		s.settleDuration(check, now)
		newStatus = models.StatusDown
		reason = models.ReasonFail

	default:
		check.LastPing = &now
		s.settleDuration(check, now)
		newStatus = models.StatusUp
		reason = models.ReasonPing
	}

	check.Status = newStatus
	switch {
	case newStatus == models.StatusDown:
		check.AlertAfter = nil
	case action == models.ActionIgn:
		// Ignored pings leave the deadline untouched.
	default:
		if err := check.RefreshAlertAfter(); err != nil {
			return 0, false, fmt.Errorf("compute deadline: %w", err)
		}
	}

	n, ok, err := s.checks.ApplyPing(ctx, check, oldStatus)
	if err != nil || !ok {
		return 0, ok, err
	}

	if newStatus != oldStatus {
		if err := s.emitFlip(ctx, check, oldStatus, newStatus, reason); err != nil {
			// The status change is already durable; dispatch falls back to
			// the unprocessed-flip scan if the queue push failed.
			s.log.Error("failed to emit flip", "check", check.Code, "error", err)
		}
	}
	return n, true, nil
}

// settleDuration pairs a completion ping with an earlier start signal.
func (s *PingService) settleDuration(check *models.Check, now time.Time) {
	if check.LastStart == nil {
		return
	}
	delta := now.Sub(*check.LastStart)
	if delta >= 0 && delta < models.MaxStartDelta {
		check.LastDuration = &delta
	}
	check.LastStart = nil
}

func (s *PingService) emitFlip(ctx context.Context, check *models.Check, from, to models.CheckStatus, reason string) error {
	flip := &models.Flip{
		CheckCode: check.Code,
		CreatedAt: s.now(),
		OldStatus: from,
		NewStatus: to,
		Reason:    reason,
	}
	if err := s.flips.Create(ctx, flip); err != nil {
		return fmt.Errorf("create flip: %w", err)
	}
	if s.metrics != nil {
		s.metrics.FlipsTotal.WithLabelValues(string(to)).Inc()
	}
	if err := s.queue.PushFlip(ctx, flip.ID); err != nil {
		return fmt.Errorf("queue flip %d: %w", flip.ID, err)
	}
	return nil
}
