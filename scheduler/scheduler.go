// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

// Package scheduler decides when the sync engine runs: it reacts to
// connectivity transitions with a settle delay, retries failed cycles with
// exponential backoff, exposes a manual trigger and publishes sync status
// to subscribers so presentation layers never poll.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kamwaro-001/panacea/syncer"
)

// ErrOffline is returned by TriggerSync when the device has no
// connectivity; manual triggers fail fast instead of queueing silently.
var ErrOffline = errors.New("no network connection")

// Runner abstracts the sync engine for the scheduler.
type Runner interface {
	SyncWithServer(ctx context.Context, wardID string) (syncer.SyncResult, error)
}

// PendingCounter reports the queue depth shown in the status.
type PendingCounter interface {
	Count(ctx context.Context) (int, error)
}

// Status is pushed to subscribers on every state change.
type Status struct {
	IsSyncing    bool
	LastSyncTime time.Time // zero until the first successful cycle
	PendingCount int
	Err          string
}

// Config tunes scheduling behavior.
type Config struct {
	WardID      string        // ward scope passed to every cycle
	SettleDelay time.Duration // wait after a reachability event before syncing
	BackoffMin  time.Duration // initial retry delay
	BackoffMax  time.Duration // retry delay ceiling
}

// DefaultConfig returns the production timings: a short settle delay to
// avoid thrash on flapping connections, and 5s..5min exponential backoff.
func DefaultConfig() Config {
	return Config{
		SettleDelay: 2 * time.Second,
		BackoffMin:  5 * time.Second,
		BackoffMax:  5 * time.Minute,
	}
}

// Scheduler owns the sync timing policy. A single cycle is in flight at a
// time; triggers arriving while one runs are dropped, not queued.
type Scheduler struct {
	runner  Runner
	pending PendingCounter
	monitor Monitor
	cfg     Config
	logger  *slog.Logger

	syncing atomic.Bool

	mu        sync.Mutex
	status    Status
	backoff   time.Duration
	timer     *time.Timer
	nextID    int
	listeners map[int]func(Status)
	cancelMon func()
	closed    bool
}

// New creates a scheduler. Call Start to arm it.
func New(runner Runner, pending PendingCounter, monitor Monitor, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultConfig().SettleDelay
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = DefaultConfig().BackoffMin
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}
	return &Scheduler{
		runner:    runner,
		pending:   pending,
		monitor:   monitor,
		cfg:       cfg,
		logger:    logger,
		backoff:   cfg.BackoffMin,
		listeners: make(map[int]func(Status)),
	}
}

// Start subscribes to reachability transitions and, when already online,
// schedules the first cycle after the settle delay. ctx bounds every cycle
// the scheduler launches.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancelMon = s.monitor.Subscribe(func(online bool) {
		if online {
			s.logger.Info("network reachable, scheduling sync")
			s.scheduleAfter(ctx, s.cfg.SettleDelay)
		} else {
			s.logger.Info("network unreachable")
		}
	})
	s.mu.Unlock()

	if s.monitor.Online() {
		s.scheduleAfter(ctx, s.cfg.SettleDelay)
	}
}

// Close stops timers and the monitor subscription. In-flight cycles finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancelMon != nil {
		s.cancelMon()
		s.cancelMon = nil
	}
}

// scheduleAfter arms (or re-arms) the single pending sync timer.
func (s *Scheduler) scheduleAfter(ctx context.Context, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.runCycle(ctx); err != nil {
			s.logger.Debug("scheduled sync cycle failed", "error", err)
		}
	})
	s.logger.Debug("sync scheduled", "delay", d)
}

// TriggerSync runs a cycle immediately on user request. It fails fast when
// offline and is a no-op when a cycle is already in flight.
func (s *Scheduler) TriggerSync(ctx context.Context) error {
	if !s.monitor.Online() {
		return ErrOffline
	}
	return s.runCycle(ctx)
}

// runCycle executes one sync cycle, enforcing single-flight and the backoff
// policy. Concurrent attempts are dropped.
func (s *Scheduler) runCycle(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("sync already in progress, skipping")
		return nil
	}
	defer s.syncing.Store(false)

	if !s.monitor.Online() {
		return ErrOffline
	}

	s.setStatus(func(st *Status) {
		st.IsSyncing = true
		st.Err = ""
		st.PendingCount = s.pendingCount(ctx)
	})

	result, err := s.runner.SyncWithServer(ctx, s.cfg.WardID)
	if err != nil {
		s.mu.Lock()
		s.backoff *= 2
		if s.backoff > s.cfg.BackoffMax {
			s.backoff = s.cfg.BackoffMax
		}
		retry := s.backoff
		s.mu.Unlock()

		s.setStatus(func(st *Status) {
			st.IsSyncing = false
			st.Err = err.Error()
			st.PendingCount = s.pendingCount(ctx)
		})
		s.logger.Warn("sync failed", "error", err, "retry_in", retry)
		if s.monitor.Online() {
			s.scheduleAfter(ctx, retry)
		}
		return err
	}

	s.mu.Lock()
	s.backoff = s.cfg.BackoffMin
	s.mu.Unlock()

	now := time.Now()
	s.setStatus(func(st *Status) {
		st.IsSyncing = false
		st.LastSyncTime = now
		st.Err = ""
		st.PendingCount = s.pendingCount(ctx)
	})
	if result.ConflictCount > 0 {
		s.logger.Warn("sync completed with conflicts", "conflicts", result.ConflictCount)
	} else {
		s.logger.Info("sync completed")
	}
	return nil
}

func (s *Scheduler) pendingCount(ctx context.Context) int {
	if s.pending == nil {
		return 0
	}
	n, err := s.pending.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count pending operations", "error", err)
		return 0
	}
	return n
}

// Status returns a snapshot of the current sync status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe registers a status listener. The current status is delivered
// immediately; subsequent changes are pushed. Returns a cancel function.
func (s *Scheduler) Subscribe(fn func(Status)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := s.status
	s.mu.Unlock()

	fn(current)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Scheduler) setStatus(update func(*Status)) {
	s.mu.Lock()
	update(&s.status)
	st := s.status
	fns := make([]func(Status), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
