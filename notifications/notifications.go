// Package notifications delivers fire-and-forget engine events (badge grants,
// level ups, new assignments, streak reminders) to users.
package notifications

import (
	"context"
	"log"
)

type Kind string

const (
	KindBadgeGranted Kind = "badge_granted"
	KindLevelUp      Kind = "level_up"
	KindTaskAssigned Kind = "task_assigned"
	KindStreakAtRisk Kind = "streak_at_risk"
)

// Event is one notification addressed to a user.
type Event struct {
	Kind   Kind              `json:"kind"`
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Sink receives events. Failures are reported to the caller but must never
// roll back engine state.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) Notify(context.Context, Event) error { return nil }

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, ev Event) error {
	log.Printf("[Notify] %s → %s: %s", ev.Kind, ev.UserID, ev.Title)
	return nil
}

// Multi fans an event out to several sinks and returns the first error.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
