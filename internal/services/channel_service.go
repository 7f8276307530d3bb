package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
	"pulsekeep/internal/transports"
)

// ErrChannelNotFound is returned for operations on unknown channel codes.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelService manages notification channels and test deliveries.
type ChannelService struct {
	channels      storage.ChannelStore
	notifications storage.NotificationStore
	registry      *transports.Registry
	logger        *slog.Logger
}

func NewChannelService(channels storage.ChannelStore, notifications storage.NotificationStore,
	registry *transports.Registry, logger *slog.Logger) *ChannelService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelService{
		channels:      channels,
		notifications: notifications,
		registry:      registry,
		logger:        logger,
	}
}

func (s *ChannelService) CreateChannel(ctx context.Context, projectID, name string, kind models.ChannelKind, value string) (*models.Channel, error) {
	if _, err := s.registry.For(kind); err != nil {
		s.logger.Warn("rejected channel with unknown kind", "kind", kind)
		return nil, fmt.Errorf("unknown channel kind: %s", kind)
	}

	channel := &models.Channel{
		ProjectID: projectID,
		Name:      name,
		Kind:      kind,
		Value:     value,
	}
	if err := s.channels.Create(ctx, channel); err != nil {
		s.logger.Error("failed to create channel", "error", err)
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	s.logger.Info("channel created", "channel", channel.Code, "kind", kind)
	return channel, nil
}

func (s *ChannelService) GetChannel(ctx context.Context, code string) (*models.Channel, error) {
	channel, err := s.channels.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return channel, nil
}

func (s *ChannelService) ListChannels(ctx context.Context, projectID string) ([]*models.Channel, error) {
	channels, err := s.channels.ListForProject(ctx, projectID)
	if err != nil {
		s.logger.Error("failed to list channels", "error", err)
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

func (s *ChannelService) DeleteChannel(ctx context.Context, code string) error {
	channel, err := s.channels.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	if channel == nil {
		return ErrChannelNotFound
	}

	if err := s.channels.Delete(ctx, code); err != nil {
		s.logger.Error("failed to delete channel", "channel", code, "error", err)
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	s.logger.Info("channel deleted", "channel", code)
	return nil
}

// SendTest delivers a synthetic down notification so users can verify a
// channel's configuration.
func (s *ChannelService) SendTest(ctx context.Context, code string) error {
	channel, err := s.channels.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	if channel == nil {
		return ErrChannelNotFound
	}

	transport, err := s.registry.For(channel.Kind)
	if err != nil {
		return fmt.Errorf("unknown channel kind: %s", channel.Kind)
	}

	now := time.Now()
	check := &models.Check{
		Code:     "test",
		Name:     "Test Check",
		Kind:     models.KindSimple,
		Timeout:  models.DefaultTimeout,
		Grace:    models.DefaultGrace,
		Tz:       "UTC",
		Status:   models.StatusDown,
		LastPing: &now,
	}
	flip := &models.Flip{
		CheckCode: check.Code,
		CreatedAt: now,
		OldStatus: models.StatusUp,
		NewStatus: models.StatusDown,
		Reason:    models.ReasonManual,
	}

	n := &models.Notification{
		ChannelCode: channel.Code,
		CheckStatus: flip.NewStatus,
		Error:       models.NotificationSending,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	if err := transport.Notify(ctx, flip, check, channel); err != nil {
		s.notifications.UpdateError(ctx, n.Code, err.Error())
		return fmt.Errorf("test delivery failed: %w", err)
	}
	return s.notifications.UpdateError(ctx, n.Code, models.NotificationDelivered)
}
