// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"gamification-ledger/logger"

	"github.com/go-co-op/gocron/v2"
)

type SchedulerOptions struct {
	StreakSweepCron string
	ExpiryInterval  time.Duration
	ArchiveCron     string // empty disables the archive job
}

// LedgerScheduler runs the periodic sweeps: missed-day settlement, mission expiry and archive export.
type LedgerScheduler struct {
	sched    gocron.Scheduler
	log      *logger.Logger
	streaks  *StreakService
	missions *MissionService
	archive  *ArchiveService
}

func NewLedgerScheduler(log *logger.Logger, loc *time.Location, streaks *StreakService, missions *MissionService, archive *ArchiveService) (*LedgerScheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &LedgerScheduler{
		sched:    sched,
		log:      log.With("component", "scheduler"),
		streaks:  streaks,
		missions: missions,
		archive:  archive,
	}, nil
}

func (s *LedgerScheduler) Start(ctx context.Context, opts SchedulerOptions) error {
	if _, err := s.sched.NewJob(
		gocron.CronJob(opts.StreakSweepCron, false),
		gocron.NewTask(func() {
			if _, err := s.streaks.SweepMissedDays(ctx); err != nil {
				s.log.Error("missed-day sweep failed", "error", err)
			}
		}),
		gocron.WithName("streak-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("schedule streak sweep: %w", err)
	}

	if _, err := s.sched.NewJob(
		gocron.DurationJob(opts.ExpiryInterval),
		gocron.NewTask(func() {
			if _, err := s.missions.ExpireStaleProgress(ctx); err != nil {
				s.log.Error("mission expiry failed", "error", err)
			}
		}),
		gocron.WithName("mission-expiry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("schedule mission expiry: %w", err)
	}

	if s.archive != nil && opts.ArchiveCron != "" {
		if _, err := s.sched.NewJob(
			gocron.CronJob(opts.ArchiveCron, false),
			gocron.NewTask(func() {
				if _, err := s.archive.ArchiveYesterday(ctx); err != nil {
					s.log.Error("ledger archive failed", "error", err)
				}
			}),
			gocron.WithName("ledger-archive"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("schedule archive: %w", err)
		}
	}

	s.sched.Start()
	s.log.Info("scheduler started", "jobs", len(s.sched.Jobs()))
	return nil
}

func (s *LedgerScheduler) Shutdown() error {
	return s.sched.Shutdown()
}
