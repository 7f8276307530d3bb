package services

import (
	"context"
	"log/slog"
	"time"

	"pulsekeep/internal/metrics"
	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
	"pulsekeep/internal/transports"
)

// disableAfterFailures is how many consecutive permanent delivery
// failures a channel survives before being disabled.
const disableAfterFailures = 3

// DispatchService consumes flips and fans them out to the subscribed
// channels. Each flip is claimed exactly once; a claimed flip is never
// retried as a whole, only individual HTTP calls retry inside the
// transports.
type DispatchService struct {
	checks        storage.CheckStore
	channels      storage.ChannelStore
	flips         storage.FlipStore
	notifications storage.NotificationStore
	queue         storage.Queue
	registry      *transports.Registry
	metrics       *metrics.Metrics
	log           *slog.Logger
}

func NewDispatchService(checks storage.CheckStore, channels storage.ChannelStore,
	flips storage.FlipStore, notifications storage.NotificationStore,
	queue storage.Queue, registry *transports.Registry,
	m *metrics.Metrics, log *slog.Logger) *DispatchService {
	return &DispatchService{
		checks:        checks,
		channels:      channels,
		flips:         flips,
		notifications: notifications,
		queue:         queue,
		registry:      registry,
		metrics:       m,
		log:           log,
	}
}

// Run consumes the flip queue until the context is cancelled. Call it
// from several goroutines to dispatch in parallel.
func (s *DispatchService) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		id, ok, err := s.queue.PopFlip(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("queue pop failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}
		s.ProcessFlip(ctx, id)
	}
}

// DrainBacklog processes flips whose queue message was lost, oldest
// first. Returns the number of flips handled.
func (s *DispatchService) DrainBacklog(ctx context.Context) int {
	var handled int
	for {
		flip, err := s.flips.NextUnprocessed(ctx)
		if err != nil {
			s.log.Error("backlog scan failed", "error", err)
			return handled
		}
		if flip == nil {
			return handled
		}
		if !s.processOne(ctx, flip) {
			// Claimed elsewhere; loop to find the next one.
			continue
		}
		handled++
	}
}

// ProcessFlip loads and handles one flip by id.
func (s *DispatchService) ProcessFlip(ctx context.Context, id int64) {
	flip, err := s.flips.GetByID(ctx, id)
	if err != nil {
		s.log.Error("cannot load flip", "flip", id, "error", err)
		return
	}
	if flip == nil {
		return
	}
	s.processOne(ctx, flip)
}

// processOne claims the flip and, if actionable, notifies the subscribed
// channels. Reports whether this worker won the claim.
func (s *DispatchService) processOne(ctx context.Context, flip *models.Flip) bool {
	claimed, err := s.flips.Claim(ctx, flip.ID)
	if err != nil {
		s.log.Error("cannot claim flip", "flip", flip.ID, "error", err)
		return false
	}
	if !claimed {
		return false
	}

	if !flip.Actionable() {
		return true
	}

	check, err := s.checks.GetByCode(ctx, flip.CheckCode)
	if err != nil || check == nil {
		if err != nil {
			s.log.Error("cannot load check for flip", "flip", flip.ID, "error", err)
		}
		return true
	}

	channels, err := s.channels.ListForCheck(ctx, check.Code)
	if err != nil {
		s.log.Error("cannot load channels", "check", check.Code, "error", err)
		return true
	}

	for _, channel := range channels {
		s.notifyChannel(ctx, flip, check, channel)
	}
	return true
}

func (s *DispatchService) notifyChannel(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) {
	if channel.Disabled {
		return
	}

	transport, err := s.registry.For(channel.Kind)
	if err != nil {
		s.log.Warn("unknown channel kind", "channel", channel.Code, "kind", channel.Kind)
		return
	}
	if transport.IsNoop(channel, flip.NewStatus) {
		return
	}

	n := &models.Notification{
		CheckCode:   &check.Code,
		ChannelCode: channel.Code,
		CheckStatus: flip.NewStatus,
		Error:       models.NotificationSending,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		s.log.Error("cannot record notification", "channel", channel.Code, "error", err)
		return
	}

	err = transport.Notify(ctx, flip, check, channel)
	s.settle(ctx, n, channel, err)
}

// settle records the delivery outcome and handles the bookkeeping that
// disables persistently broken channels.
func (s *DispatchService) settle(ctx context.Context, n *models.Notification, channel *models.Channel, deliveryErr error) {
	outcome := "success"
	defer func() {
		if s.metrics != nil {
			s.metrics.NotificationsTotal.WithLabelValues(string(channel.Kind), outcome).Inc()
		}
	}()

	if deliveryErr == nil {
		s.notifications.UpdateError(ctx, n.Code, models.NotificationDelivered)
		s.channels.RecordSuccess(ctx, channel.Code)
		return
	}

	msg := deliveryErr.Error()
	s.notifications.UpdateError(ctx, n.Code, msg)
	s.channels.UpdateLastError(ctx, channel.Code, msg)

	if !transports.IsPermanent(deliveryErr) {
		outcome = "error"
		s.log.Warn("delivery failed", "channel", channel.Code, "error", deliveryErr)
		return
	}

	outcome = "permanent_error"
	failures, err := s.channels.RecordPermanentFailure(ctx, channel.Code)
	if err != nil {
		s.log.Error("cannot record failure", "channel", channel.Code, "error", err)
		return
	}
	if failures >= disableAfterFailures {
		s.log.Warn("disabling channel after repeated permanent failures",
			"channel", channel.Code, "failures", failures)
		s.channels.Disable(ctx, channel.Code, msg)
	}
}
