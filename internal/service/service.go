package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"margin-alerts/internal/alerting"
	"margin-alerts/internal/config"
	"margin-alerts/internal/engine"
	"margin-alerts/internal/fetcher"
	"margin-alerts/internal/metrics"
	"margin-alerts/internal/storage"
)

// Check names one of the three entry points.
type Check string

const (
	CheckMorning   Check = "morning"
	CheckAfternoon Check = "afternoon"
	CheckRecurring Check = "recurring"
)

// ParseCheck accepts the canonical names and the legacy route aliases.
func ParseCheck(name string) (Check, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "morning", "10":
		return CheckMorning, nil
	case "afternoon", "14":
		return CheckAfternoon, nil
	case "recurring", "5m":
		return CheckRecurring, nil
	default:
		return "", fmt.Errorf("unknown check %q (want morning, afternoon or recurring)", name)
	}
}

// RecurringController is the scheduler binding for the recurring job.
type RecurringController interface {
	Start() bool
	Stop() bool
	Running() bool
}

// Result summarises one check run.
type Result struct {
	RunID         uuid.UUID        `json:"run_id"`
	Check         Check            `json:"check"`
	Percentage    *decimal.Decimal `json:"percentage,omitempty"`
	ObservedAt    *time.Time       `json:"observed_at,omitempty"`
	Notifications []string         `json:"notifications"`
	Delivered     int              `json:"delivered"`
	Action        string           `json:"action"`
	Skipped       bool             `json:"skipped"`
	Reason        string           `json:"reason,omitempty"`
	State         storage.State    `json:"state"`
}

// Service runs checks: load state, fetch, decide, persist, notify, control.
type Service struct {
	mu        sync.Mutex
	engine    *engine.Engine
	source    fetcher.Source
	store     storage.StateStore
	notifier  alerting.Notifier
	recurring RecurringController
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger

	morningLabel   string
	afternoonLabel string
	checkTimeout   time.Duration
	lockKey        int64
}

// New constructs the check service.
func New(cfg *config.Config, eng *engine.Engine, source fetcher.Source, store storage.StateStore, notifier alerting.Notifier, recurring RecurringController, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	timeout := cfg.Schedule.CheckTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Service{
		engine:         eng,
		source:         source,
		store:          store,
		notifier:       notifier,
		recurring:      recurring,
		locker:         locker,
		logger:         logger.With().Str("component", "service").Logger(),
		morningLabel:   clockLabel(cfg.Schedule.MorningAt),
		afternoonLabel: clockLabel(cfg.Schedule.AfternoonAt),
		checkTimeout:   timeout,
		lockKey:        cfg.Database.AdvisoryLockKey,
	}
}

func clockLabel(value string) string {
	h, m, err := config.ParseClock(value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Run dispatches to the named check.
func (s *Service) Run(ctx context.Context, check Check) (Result, error) {
	switch check {
	case CheckMorning:
		return s.MorningCheck(ctx)
	case CheckAfternoon:
		return s.AfternoonCheck(ctx)
	case CheckRecurring:
		return s.RecurringCheck(ctx)
	default:
		return Result{}, fmt.Errorf("unknown check %q", check)
	}
}

// MorningCheck reports status and warns above the low band.
func (s *Service) MorningCheck(ctx context.Context) (Result, error) {
	return s.runCheck(ctx, CheckMorning, false, func(sample fetcher.Sample, prior storage.State) engine.Decision {
		return s.engine.Morning(s.morningLabel, sample, prior)
	})
}

// AfternoonCheck reports status and moves the high-alert mode.
func (s *Service) AfternoonCheck(ctx context.Context) (Result, error) {
	return s.runCheck(ctx, CheckAfternoon, false, func(sample fetcher.Sample, prior storage.State) engine.Decision {
		return s.engine.Afternoon(s.afternoonLabel, sample, prior)
	})
}

// RecurringCheck runs only while the high-alert mode is engaged.
func (s *Service) RecurringCheck(ctx context.Context) (Result, error) {
	return s.runCheck(ctx, CheckRecurring, true, s.engine.Recurring)
}

type decideFunc func(sample fetcher.Sample, prior storage.State) engine.Decision

func (s *Service) runCheck(ctx context.Context, check Check, requireActive bool, decide decideFunc) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	res := Result{RunID: uuid.New(), Check: check, Action: engine.ActionNone.String(), Notifications: []string{}}
	logger := s.logger.With().Str("run_id", res.RunID.String()).Str("check", string(check)).Logger()

	if err := ctx.Err(); err != nil {
		// a stopped recurring loop may still be queued behind another check
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		metrics.ObserveCheck(string(check), "lock_error", started)
		return res, err
	}
	if !proceed {
		logger.Debug().Msg("skip check because advisory lock held elsewhere")
		res.Skipped, res.Reason = true, "advisory lock held elsewhere"
		metrics.ObserveCheck(string(check), "locked", started)
		return res, nil
	}
	if unlock != nil {
		defer unlock()
	}

	prior, err := s.loadState(ctx, logger)
	if err != nil {
		metrics.ObserveCheck(string(check), "store_error", started)
		return res, err
	}
	res.State = prior

	if requireActive && !prior.HighAlertActive {
		res.Skipped, res.Reason = true, "high alert mode inactive"
		if s.recurring != nil && s.recurring.Stop() {
			logger.Info().Msg("stopped recurring job left running while inactive")
		}
		s.syncGauges(prior)
		metrics.ObserveCheck(string(check), "skipped", started)
		return res, nil
	}

	sample, err := s.source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, fetcher.ErrRetrieval) {
			err = fmt.Errorf("%w: %v", fetcher.ErrRetrieval, err)
		}
		metrics.RetrievalErrorsTotal.Inc()
		metrics.ObserveCheck(string(check), "retrieval_error", started)
		logger.Warn().Err(err).Msg("check aborted, percentage unavailable")
		return res, err
	}
	res.Percentage = &sample.Percentage
	res.ObservedAt = &sample.ObservedAt

	decision := decide(sample, prior)
	if decision.Skipped {
		res.Skipped, res.Reason = true, "nothing to do"
		metrics.ObserveCheck(string(check), "skipped", started)
		return res, nil
	}
	res.State = decision.State
	res.Action = decision.Action.String()

	// a failed write does not suppress notifications
	saveErr := s.store.Save(ctx, decision.State)
	if saveErr != nil {
		logger.Error().Err(saveErr).Msg("failed to persist state")
	}

	for _, note := range decision.Notifications {
		res.Notifications = append(res.Notifications, alerting.Plain(note))
		if err := s.notifier.Notify(ctx, note); err != nil {
			metrics.DeliveryErrorsTotal.WithLabelValues(string(note.Kind)).Inc()
			logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to deliver notification")
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(string(note.Kind)).Inc()
		res.Delivered++
	}

	s.apply(decision.Action, logger)
	s.syncGauges(decision.State)
	metrics.LastPercentage.Set(sample.Percentage.InexactFloat64())

	logger.Info().
		Str("percentage", sample.Percentage.StringFixed(2)).
		Bool("high_alert_active", decision.State.HighAlertActive).
		Str("action", res.Action).
		Int("notifications", len(decision.Notifications)).
		Int("delivered", res.Delivered).
		Msg("check complete")

	if saveErr != nil {
		metrics.ObserveCheck(string(check), "store_error", started)
		return res, fmt.Errorf("save state: %w", saveErr)
	}
	metrics.ObserveCheck(string(check), "ok", started)
	return res, nil
}

func (s *Service) apply(action engine.Action, logger zerolog.Logger) {
	if s.recurring == nil {
		return
	}
	switch action {
	case engine.ActionStartRecurring:
		if !s.recurring.Start() {
			logger.Debug().Msg("recurring job already running")
		}
	case engine.ActionStopRecurring:
		if !s.recurring.Stop() {
			logger.Debug().Msg("recurring job already stopped")
		}
	}
}

func (s *Service) loadState(ctx context.Context, logger zerolog.Logger) (storage.State, error) {
	state, err := s.store.Load(ctx)
	if errors.Is(err, storage.ErrStateCorrupt) {
		logger.Warn().Err(err).Msg("state unreadable, continuing with defaults")
		return storage.DefaultState(), nil
	}
	if err != nil {
		return storage.State{}, fmt.Errorf("load state: %w", err)
	}
	return state, nil
}

func (s *Service) syncGauges(state storage.State) {
	metrics.SetBool(metrics.HighAlertActive, state.HighAlertActive)
	metrics.SetBool(metrics.RecurringRunning, s.RecurringRunning())
}

// Reset runs at process start: the recurring job is stopped and the
// high-alert mode is forced off, so an episode never resumes across a restart.
func (s *Service) Reset(ctx context.Context) (storage.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recurring != nil {
		s.recurring.Stop()
	}

	state, err := s.loadState(ctx, s.logger)
	if err != nil {
		return state, err
	}
	if state.HighAlertActive {
		s.logger.Warn().Msg("high alert mode was active before restart, deactivating")
	}
	state.HighAlertActive = false

	if err := s.store.Save(ctx, state); err != nil {
		return state, fmt.Errorf("save state: %w", err)
	}
	s.syncGauges(state)
	return state, nil
}

// ClearState overwrites the record with defaults and stops the recurring job.
func (s *Service) ClearState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recurring != nil {
		s.recurring.Stop()
	}
	if err := s.store.Save(ctx, storage.DefaultState()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	s.syncGauges(storage.DefaultState())
	return nil
}

// State returns the persisted record as a check would see it.
func (s *Service) State(ctx context.Context) (storage.State, error) {
	return s.loadState(ctx, s.logger)
}

// SendTest pushes free text through the notifier.
func (s *Service) SendTest(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		text = "✅ marginwatch test message"
	}
	if err := s.notifier.SendText(ctx, text); err != nil {
		metrics.DeliveryErrorsTotal.WithLabelValues("test").Inc()
		return fmt.Errorf("send test message: %w", err)
	}
	return nil
}

// RecurringRunning reports whether the recurring job is scheduled.
func (s *Service) RecurringRunning() bool {
	return s.recurring != nil && s.recurring.Running()
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
