// Package jobs holds background jobs started by cmd/server.
//
// invitation_sweeper.go implements the InvitationSweeper, which periodically deletes
// invitations that expired unaccepted more than a retention period ago. Expiry itself is
// evaluated lazily when an invitation is read or accepted, so the sweeper only keeps the
// table small; disabling it never changes what the API returns.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/collabspace/collab-api/internal/config"
	"github.com/collabspace/collab-api/internal/telemetry"
)

// ExpiredInvitationDeleter is implemented by the invitation repository
type ExpiredInvitationDeleter interface {
	DeleteExpiredInvitations(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// InvitationSweeper deletes long-expired invitations on a cron schedule
type InvitationSweeper struct {
	store     ExpiredInvitationDeleter
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time

	// running serializes sweeps when a run outlasts the schedule interval
	running sync.Mutex
}

// NewInvitationSweeper creates a sweeper from cfg. The schedule is a six-field cron
// expression with a leading seconds field, evaluated in UTC.
func NewInvitationSweeper(store ExpiredInvitationDeleter, cfg config.SweepConfig) (*InvitationSweeper, error) {
	s := &InvitationSweeper{
		store:     store,
		retention: cfg.Retention,
		cron:      cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		now:       time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid invitation sweep schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running sweeps on the schedule. It returns immediately.
func (s *InvitationSweeper) Start() {
	s.cron.Start()
	slog.Info("invitation sweeper started", "retention", s.retention)
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *InvitationSweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("invitation sweeper stopped")
}

func (s *InvitationSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		slog.Error("invitation sweep failed", "error", err)
	}
}

// Sweep deletes every unaccepted invitation that expired before now minus the retention
// period and returns how many were removed.
func (s *InvitationSweeper) Sweep(ctx context.Context) (int64, error) {
	s.running.Lock()
	defer s.running.Unlock()

	cutoff := s.now().UTC().Add(-s.retention)
	deleted, err := s.store.DeleteExpiredInvitations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	telemetry.InvitationsSweptTotal.Add(float64(deleted))
	if deleted > 0 {
		slog.Info("swept expired invitations", "deleted", deleted, "expired_before", cutoff)
	}
	return deleted, nil
}
