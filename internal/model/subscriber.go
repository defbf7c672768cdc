package model

import "context"

// Subscriber is a configured notification recipient. Subscriber configuration
// lives outside the engine; the dispatcher only reads it.
type Subscriber struct {
	ID      string
	Name    string
	Channel string // "log", "slack" or "webhook"
	Target  string // webhook URL for slack/webhook channels

	NotifyNewJobs    bool
	NotifyChanges    bool
	NotifyStatistics bool
	MinSeverity      Severity
}

// SubscriberSource lists the currently active subscribers.
type SubscriberSource interface {
	ActiveSubscribers(ctx context.Context) ([]Subscriber, error)
}

// Notifier delivers a set of changes for one job to a single channel.
// An empty change list signals a first-observation (new job) event.
type Notifier interface {
	Notify(ctx context.Context, job Job, changes []Change) error
}

// DeliveryLog makes dispatch idempotent per (delivery key, subscriber).
// A key is a change ID, or a synthetic key for non-change events.
type DeliveryLog interface {
	Delivered(ctx context.Context, key, subscriberID string) (bool, error)
	MarkDelivered(ctx context.Context, key, subscriberID string) error
}
