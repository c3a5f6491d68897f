// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// JobConfig sets the cadence of the periodic engine jobs.
type JobConfig struct {
	RotationInterval    time.Duration
	LeaderboardInterval time.Duration
	ReminderHour        uint // UTC
}

// JobRunner drives rotation, leaderboard refresh and streak reminders on gocron.
// A job never overlaps itself; a tick that lands on a running job is rescheduled.
type JobRunner struct {
	sched       gocron.Scheduler
	ctx         context.Context
	Rotation    *RotationService
	Leaderboard *LeaderboardService
	Reminders   *ReminderService
}

func NewJobRunner(cfg JobConfig, rotation *RotationService, leaderboard *LeaderboardService, reminders *ReminderService) (*JobRunner, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithGlobalJobOptions(gocron.WithSingletonMode(gocron.LimitModeReschedule)),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	r := &JobRunner{sched: sched, ctx: context.Background(), Rotation: rotation, Leaderboard: leaderboard, Reminders: reminders}

	if rotation != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.RotationInterval),
			gocron.NewTask(func() { r.runRotation(r.ctx) }),
			gocron.WithName("hourly_rotation"),
		); err != nil {
			return nil, fmt.Errorf("register rotation job: %w", err)
		}
	}
	if leaderboard != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.LeaderboardInterval),
			gocron.NewTask(func() { r.runLeaderboard(r.ctx) }),
			gocron.WithName("leaderboard_refresh"),
		); err != nil {
			return nil, fmt.Errorf("register leaderboard job: %w", err)
		}
	}
	if reminders != nil {
		if _, err := sched.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(cfg.ReminderHour, 0, 0))),
			gocron.NewTask(func() { r.runReminders(r.ctx) }),
			gocron.WithName("streak_reminders"),
		); err != nil {
			return nil, fmt.Errorf("register reminder job: %w", err)
		}
	}
	return r, nil
}

// Start begins scheduling. Job runs use ctx.
func (r *JobRunner) Start(ctx context.Context) {
	r.ctx = ctx
	r.sched.Start()
	log.Printf("[Scheduler] started %d jobs", len(r.sched.Jobs()))
}

// Shutdown waits for running jobs and stops the scheduler.
func (r *JobRunner) Shutdown() error {
	return r.sched.Shutdown()
}

// Jobs lists the registered job names.
func (r *JobRunner) Jobs() []string {
	jobs := r.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (r *JobRunner) runRotation(ctx context.Context) {
	if _, err := r.Rotation.RunHourlyRotation(ctx); err != nil {
		log.Printf("[Scheduler] rotation run failed: %v", err)
	}
}

func (r *JobRunner) runLeaderboard(ctx context.Context) {
	if _, err := r.Leaderboard.RunLeaderboardRefresh(ctx); err != nil {
		log.Printf("[Scheduler] leaderboard run failed: %v", err)
	}
}

func (r *JobRunner) runReminders(ctx context.Context) {
	if _, err := r.Reminders.SendStreakReminders(ctx); err != nil {
		log.Printf("[Scheduler] reminder run failed: %v", err)
	}
}
