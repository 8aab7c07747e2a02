package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tallyspace/tallyspace/pkg/observability"
)

const (
	invitationCleanupSchedule = "@hourly"
	sessionCleanupSchedule    = "@daily"

	// jobTimeout bounds each run so a stuck database cannot pile up
	// overlapping invocations.
	jobTimeout = 5 * time.Minute
)

// SessionJanitor removes expired sessions.
type SessionJanitor interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// InvitationJanitor removes expired, unaccepted workspace invitations.
type InvitationJanitor interface {
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}

// Scheduler runs the standing maintenance jobs on a cron schedule.
type Scheduler struct {
	cron        *cron.Cron
	sessions    SessionJanitor
	invitations InvitationJanitor
	logger      *observability.Logger
}

// NewScheduler builds a scheduler with the invitation and session cleanup
// jobs registered. Call Start to begin execution.
func NewScheduler(sessions SessionJanitor, invitations InvitationJanitor, logger *observability.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(cron.WithLogger(cron.PrintfLogger(logrus.StandardLogger()))),
		sessions:    sessions,
		invitations: invitations,
		logger:      logger,
	}

	if _, err := s.cron.AddFunc(invitationCleanupSchedule, s.runInvitationCleanup); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(sessionCleanupSchedule, s.runSessionCleanup); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins executing scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("Starting job scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Job scheduler stopped")
}

func (s *Scheduler) runInvitationCleanup() {
	defer observability.RecoverPanic(s.logger, "invitation cleanup job")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := s.invitations.CleanupExpiredInvitations(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Invitation cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Expired invitations cleaned up")
	}
}

func (s *Scheduler) runSessionCleanup() {
	defer observability.RecoverPanic(s.logger, "session cleanup job")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := s.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Session cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Expired sessions cleaned up")
	}
}
