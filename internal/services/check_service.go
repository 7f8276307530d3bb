package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
	"pulsekeep/pkg/validator"
)

// CheckService implements check management: create, update, pause,
// resume, delete and the read operations the API exposes.
type CheckService struct {
	checks   storage.CheckStore
	pings    storage.PingStore
	flips    storage.FlipStore
	channels storage.ChannelStore
	logger   *slog.Logger
}

func NewCheckService(checks storage.CheckStore, pings storage.PingStore, flips storage.FlipStore,
	channels storage.ChannelStore, logger *slog.Logger) *CheckService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckService{
		checks:   checks,
		pings:    pings,
		flips:    flips,
		channels: channels,
		logger:   logger,
	}
}

// CheckParams carries the writable configuration of a check. Nil fields
// in UpdateCheck mean "leave unchanged".
type CheckParams struct {
	Name         *string
	Tags         *string
	Kind         *models.CheckKind
	Timeout      *time.Duration
	Grace        *time.Duration
	Schedule     *string
	Tz           *string
	ManualResume *bool
	Channels     []string
}

func (s *CheckService) CreateCheck(ctx context.Context, projectID string, params CheckParams) (*models.Check, error) {
	check := &models.Check{
		ProjectID: projectID,
		Kind:      models.KindSimple,
		Timeout:   models.DefaultTimeout,
		Grace:     models.DefaultGrace,
		Schedule:  "* * * * *",
		Tz:        "UTC",
		Status:    models.StatusNew,
	}

	if err := s.applyParams(check, params); err != nil {
		s.logger.Warn("invalid check parameters", "error", err)
		return nil, err
	}

	if err := s.checks.Create(ctx, check); err != nil {
		s.logger.Error("failed to create check in storage", "error", err)
		return nil, fmt.Errorf("failed to create check: %w", err)
	}

	if params.Channels != nil {
		if err := s.assignChannels(ctx, check, params.Channels); err != nil {
			return nil, err
		}
	}

	s.logger.Info("check created", "check", check.Code, "kind", check.Kind)
	return check, nil
}

func (s *CheckService) GetCheck(ctx context.Context, code string) (*models.Check, error) {
	check, err := s.checks.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}
	return check, nil
}

func (s *CheckService) ListChecks(ctx context.Context, projectID string, limit, offset int) ([]*models.Check, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	checks, err := s.checks.List(ctx, projectID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list checks", "error", err)
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	return checks, nil
}

// UpdateCheck applies partial configuration changes and recomputes the
// derived deadline.
func (s *CheckService) UpdateCheck(ctx context.Context, code string, params CheckParams) (*models.Check, error) {
	check, err := s.checks.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}
	if check == nil {
		return nil, ErrCheckNotFound
	}

	if err := s.applyParams(check, params); err != nil {
		s.logger.Warn("invalid check parameters", "check", code, "error", err)
		return nil, err
	}

	// Timing changes move the deadline.
	if check.Status == models.StatusUp || check.Status == models.StatusGrace {
		if err := check.RefreshAlertAfter(); err != nil {
			return nil, fmt.Errorf("compute deadline: %w", err)
		}
	}

	if err := s.checks.Update(ctx, check); err != nil {
		s.logger.Error("failed to update check", "check", code, "error", err)
		return nil, fmt.Errorf("failed to update check: %w", err)
	}

	if params.Channels != nil {
		if err := s.assignChannels(ctx, check, params.Channels); err != nil {
			return nil, err
		}
	}

	s.logger.Info("check updated", "check", code)
	return check, nil
}

func (s *CheckService) applyParams(check *models.Check, params CheckParams) error {
	if params.Name != nil {
		check.Name = *params.Name
	}
	if params.Tags != nil {
		check.Tags = *params.Tags
	}
	if params.Kind != nil {
		if !validator.ValidateKind(string(*params.Kind)) {
			return fmt.Errorf("invalid check kind: %s", *params.Kind)
		}
		check.Kind = *params.Kind
	}
	if params.Timeout != nil {
		if !validator.ValidateDuration(*params.Timeout) {
			return fmt.Errorf("timeout out of range: %s", *params.Timeout)
		}
		check.Timeout = *params.Timeout
	}
	if params.Grace != nil {
		if !validator.ValidateDuration(*params.Grace) {
			return fmt.Errorf("grace out of range: %s", *params.Grace)
		}
		check.Grace = *params.Grace
	}
	if params.Tz != nil {
		if !validator.ValidateTz(*params.Tz) {
			return fmt.Errorf("invalid timezone: %s", *params.Tz)
		}
		check.Tz = *params.Tz
	}
	if params.Schedule != nil {
		check.Schedule = *params.Schedule
	}
	if params.ManualResume != nil {
		check.ManualResume = *params.ManualResume
	}

	if check.Kind != models.KindSimple && !validator.ValidateSchedule(check.Kind, check.Schedule) {
		return fmt.Errorf("invalid schedule: %s", check.Schedule)
	}
	return nil
}

func (s *CheckService) assignChannels(ctx context.Context, check *models.Check, codes []string) error {
	for _, code := range codes {
		channel, err := s.channels.GetByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to verify channel: %w", err)
		}
		if channel == nil || channel.ProjectID != check.ProjectID {
			return fmt.Errorf("unknown channel: %s", code)
		}
	}
	if err := s.channels.SetSubscriptions(ctx, check.Code, codes); err != nil {
		return fmt.Errorf("failed to assign channels: %w", err)
	}
	return nil
}

// PauseCheck stops monitoring without losing the check's history. Paused
// checks never go down and their deadline is cleared.
func (s *CheckService) PauseCheck(ctx context.Context, code string) (*models.Check, error) {
	check, err := s.checks.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}
	if check == nil {
		return nil, ErrCheckNotFound
	}

	ok, err := s.checks.UpdateStatusIf(ctx, code, check.Status, models.StatusPaused, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to pause check: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("check %s: state changed concurrently", code)
	}

	check.Status = models.StatusPaused
	check.AlertAfter = nil
	s.logger.Info("check paused", "check", code)
	return check, nil
}

// ResumeCheck returns a paused check to the new state. The next ping
// starts monitoring again.
func (s *CheckService) ResumeCheck(ctx context.Context, code string) (*models.Check, error) {
	check, err := s.checks.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}
	if check == nil {
		return nil, ErrCheckNotFound
	}
	if check.Status != models.StatusPaused {
		return nil, fmt.Errorf("check %s is not paused", code)
	}

	ok, err := s.checks.UpdateStatusIf(ctx, code, models.StatusPaused, models.StatusNew, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resume check: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("check %s: state changed concurrently", code)
	}

	check.Status = models.StatusNew
	check.AlertAfter = nil
	s.logger.Info("check resumed", "check", code)
	return check, nil
}

func (s *CheckService) DeleteCheck(ctx context.Context, code string) error {
	check, err := s.checks.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to get check: %w", err)
	}
	if check == nil {
		return ErrCheckNotFound
	}

	if err := s.checks.Delete(ctx, code); err != nil {
		s.logger.Error("failed to delete check", "check", code, "error", err)
		return fmt.Errorf("failed to delete check: %w", err)
	}
	s.logger.Info("check deleted", "check", code)
	return nil
}

func (s *CheckService) ListPings(ctx context.Context, code string, limit int) ([]*models.Ping, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	pings, err := s.pings.List(ctx, code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pings: %w", err)
	}
	return pings, nil
}

func (s *CheckService) ListFlips(ctx context.Context, code string, since time.Time) ([]*models.Flip, error) {
	flips, err := s.flips.ListForCheck(ctx, code, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list flips: %w", err)
	}
	return flips, nil
}

// Downtime sums the time the check spent down within [since, until],
// derived from its flip history.
func (s *CheckService) Downtime(ctx context.Context, check *models.Check, since, until time.Time) (time.Duration, error) {
	flips, err := s.flips.ListForCheck(ctx, check.Code, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list flips: %w", err)
	}

	var total time.Duration
	var downSince *time.Time

	// Walk transitions in order; an open down interval at the end counts
	// up to the until bound.
	for _, flip := range flips {
		if flip.CreatedAt.After(until) {
			break
		}
		if flip.NewStatus == models.StatusDown && downSince == nil {
			t := flip.CreatedAt
			downSince = &t
		}
		if flip.NewStatus != models.StatusDown && downSince != nil {
			total += flip.CreatedAt.Sub(*downSince)
			downSince = nil
		}
	}
	if downSince == nil && check.Status == models.StatusDown && len(flips) == 0 {
		// Down for the whole window.
		total = until.Sub(since)
	}
	if downSince != nil {
		total += until.Sub(*downSince)
	}
	return total, nil
}
