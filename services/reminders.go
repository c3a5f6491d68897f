package services

import (
	"context"
	"fmt"
	"log"

	"civic-task-engine/models"
	"civic-task-engine/notifications"

	"gorm.io/gorm"
)

// ReminderService warns users whose streak ends unless they act today.
type ReminderService struct {
	DB     *gorm.DB
	Clock  Clock
	Notify notifications.Sink
}

func NewReminderService(db *gorm.DB, clock Clock, notify notifications.Sink) *ReminderService {
	if clock == nil {
		clock = SystemClock{}
	}
	if notify == nil {
		notify = notifications.NopSink{}
	}
	return &ReminderService{DB: db, Clock: clock, Notify: notify}
}

// SendStreakReminders notifies every active user with a running streak whose
// last activity was yesterday (UTC). It returns the number of users notified.
func (s *ReminderService) SendStreakReminders(ctx context.Context) (int, error) {
	today := startOfDay(s.Clock.Now())
	yesterday := today.AddDate(0, 0, -1)

	var users []models.User
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND streak > 0 AND last_activity_date >= ? AND last_activity_date < ?", true, yesterday, today).
		Find(&users).Error
	recordJobRun("streak_reminders", err)
	if err != nil {
		return 0, fmt.Errorf("load users at risk: %w", err)
	}

	sent := 0
	for _, u := range users {
		ev := notifications.Event{
			Kind:   notifications.KindStreakAtRisk,
			UserID: u.ID,
			Title:  fmt.Sprintf("Keep your %d-day streak", u.Streak),
			Body:   "Complete a task today to keep it going",
			Data:   map[string]string{"streak": fmt.Sprint(u.Streak)},
		}
		if err := s.Notify.Notify(ctx, ev); err != nil {
			log.Printf("[Scheduler] streak reminder for %s failed: %v", u.ID, err)
			continue
		}
		sent++
	}
	log.Printf("[Scheduler] streak reminders sent: %d/%d", sent, len(users))
	return sent, nil
}
