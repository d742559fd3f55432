// Package scheduler runs automation cycles on a fixed interval and holds the
// quota cooldown between them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/cycle"
)

var (
	ErrAlreadyRunning = errors.New("scheduler: automation already running")
	ErrInCooldown     = errors.New("scheduler: quota cooldown active")
	ErrCycleInFlight  = errors.New("scheduler: a cycle is already in progress")
)

// CooldownError rejects an operation while the quota cooldown is active.
// It matches ErrInCooldown with errors.Is.
type CooldownError struct {
	RemainingSeconds int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("scheduler: quota cooldown active, %ds remaining", e.RemainingSeconds)
}

func (e *CooldownError) Is(target error) bool { return target == ErrInCooldown }

// IntervalFor returns the cycle interval for an environment name.
func IntervalFor(env string) time.Duration {
	if env == "production" {
		return time.Hour
	}
	return 5 * time.Minute
}

// CycleRunner executes one cycle.
type CycleRunner interface {
	Run(ctx context.Context, onLog cycle.Observer) *cycle.Result
}

// Status is the scheduler state shown to the operator.
type Status struct {
	IsRunning                bool      `json:"isRunning"`
	IntervalMinutes          int       `json:"intervalMinutes"`
	IsInCooldown             bool      `json:"isInCooldown"`
	RemainingCooldownSeconds int       `json:"remainingCooldownSeconds"`
	CycleInFlight            bool      `json:"cycleInFlight"`
	AIDisabled               bool      `json:"aiDisabled"`
	LastRunAt                time.Time `json:"lastRunAt,omitempty"`
	LastOutcome              string    `json:"lastOutcome,omitempty"`
}

// Scheduler owns the automation state. All fields behind mu.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	base     context.Context
	logger   *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool

	mu            sync.Mutex
	running       bool
	gen           uint64 // bumped by every successful Start
	cron          *cron.Cron
	cooldownUntil time.Time
	last          *cycle.Result
}

// New creates a stopped scheduler. Cycles run with ctx, which should live as
// long as the process.
func New(ctx context.Context, runner CycleRunner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = IntervalFor("")
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		base:     ctx,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Start runs one cycle right away and then one per interval.
// It fails with ErrAlreadyRunning or a *CooldownError without changing state.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if rem := s.remainingLocked(); rem > 0 {
		s.mu.Unlock()
		return &CooldownError{RemainingSeconds: rem}
	}
	s.running = true
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.logger.Info("automation started", "interval", s.interval)
	if _, err := s.runGuarded(s.base, nil); err != nil {
		s.logger.Warn("initial cycle skipped", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A Stop, or a Stop followed by another Start, happened during the
	// initial cycle: the timer belongs to the newer call.
	if !s.running || s.gen != gen {
		return nil
	}
	if s.cron != nil {
		s.cron.Stop()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	c.Start()
	s.cron = c
	return nil
}

// Stop cancels future cycles. An in-flight cycle finishes normally.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	s.logger.Info("automation stopped")
}

// RunCycleNow runs one cycle outside the timer and returns its log.
func (s *Scheduler) RunCycleNow(ctx context.Context, onLog cycle.Observer) ([]cycle.LogEntry, error) {
	s.mu.Lock()
	rem := s.remainingLocked()
	s.mu.Unlock()
	if rem > 0 {
		return nil, &CooldownError{RemainingSeconds: rem}
	}
	res, err := s.runGuarded(ctx, onLog)
	if err != nil {
		return nil, err
	}
	return res.Logs, nil
}

// SetQuotaCooldown blocks cycles for the given number of seconds.
func (s *Scheduler) SetQuotaCooldown(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seconds <= 0 {
		s.cooldownUntil = time.Time{}
		return
	}
	s.cooldownUntil = s.now().Add(time.Duration(seconds) * time.Second)
	s.logger.Warn("quota cooldown set", "seconds", seconds, "until", s.cooldownUntil)
}

// ClearQuotaCooldown lifts the cooldown immediately.
func (s *Scheduler) ClearQuotaCooldown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldownUntil = time.Time{}
	s.logger.Info("quota cooldown cleared")
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem := s.remainingLocked()
	st := Status{
		IsRunning:                s.running,
		IntervalMinutes:          int(s.interval / time.Minute),
		IsInCooldown:             rem > 0,
		RemainingCooldownSeconds: rem,
		CycleInFlight:            s.inFlight.Load(),
	}
	if d, ok := s.runner.(interface{ AIDisabled() bool }); ok {
		st.AIDisabled = d.AIDisabled()
	}
	if s.last != nil {
		st.LastRunAt = s.last.FinishedAt
		st.LastOutcome = string(s.last.Outcome)
	}
	return st
}

// LastLogs returns the log of the most recent cycle.
func (s *Scheduler) LastLogs() []cycle.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return append([]cycle.LogEntry(nil), s.last.Logs...)
}

// tick is the timer callback.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.cooldownUntil.IsZero() {
		if rem := s.remainingLocked(); rem > 0 {
			s.mu.Unlock()
			s.logger.Info("tick skipped, quota cooldown active", "remaining_seconds", rem)
			return
		}
		s.cooldownUntil = time.Time{}
		s.mu.Unlock()
		s.logger.Info("quota cooldown elapsed, resuming automation")
	} else {
		s.mu.Unlock()
	}

	if _, err := s.runGuarded(s.base, nil); err != nil {
		s.logger.Warn("tick skipped", "error", err)
	}
}

// runGuarded runs a cycle unless one is already in progress, and records
// the quota cooldown it reports.
func (s *Scheduler) runGuarded(ctx context.Context, onLog cycle.Observer) (*cycle.Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer s.inFlight.Store(false)

	res := s.runner.Run(ctx, onLog)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = res
	if res.Quota != nil {
		s.cooldownUntil = s.now().Add(time.Duration(res.Quota.WaitSeconds) * time.Second)
		s.logger.Warn("quota exceeded, entering cooldown",
			"wait_seconds", res.Quota.WaitSeconds, "until", s.cooldownUntil)
	}
	return res, nil
}

func (s *Scheduler) remainingLocked() int {
	if s.cooldownUntil.IsZero() {
		return 0
	}
	d := s.cooldownUntil.Sub(s.now())
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
