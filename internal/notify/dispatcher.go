// Package notify fans detected changes out to configured subscribers.
// Delivery is idempotent per (delivery key, subscriber): the delivery log is
// checked before every send, so retries never double-notify.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobwatch/jobwatch/internal/model"
)

// SenderFactory builds the channel notifier for a subscriber. Unknown
// channels return an error.
type SenderFactory func(sub model.Subscriber) (model.Notifier, error)

// Dispatcher routes changes to subscribers by interest and severity.
type Dispatcher struct {
	subs    model.SubscriberSource
	log     model.DeliveryLog
	senders SenderFactory
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher wired with all its dependencies.
func NewDispatcher(subs model.SubscriberSource, log model.DeliveryLog, senders SenderFactory, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		subs:    subs,
		log:     log,
		senders: senders,
		logger:  logger,
	}
}

// DispatchChanges delivers the job's changes to every interested subscriber.
// Delivery failures are logged and swallowed: change persistence and
// notification are decoupled, a failed send never surfaces as a change loss.
// The returned error covers only subscriber-source failures.
func (d *Dispatcher) DispatchChanges(ctx context.Context, job model.Job, changes []model.Change) error {
	if len(changes) == 0 {
		return nil
	}

	subs, err := d.subs.ActiveSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("loading subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.NotifyChanges {
			continue
		}

		pending := d.pendingChanges(ctx, sub, changes)
		if len(pending) == 0 {
			continue
		}

		d.send(ctx, sub, job, pending)
	}
	return nil
}

// DispatchBaseline notifies subscribers interested in newly tracked jobs
// about a first observation. The baseline snapshot id keys the delivery log.
func (d *Dispatcher) DispatchBaseline(ctx context.Context, job model.Job, snap model.Snapshot) error {
	subs, err := d.subs.ActiveSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("loading subscribers: %w", err)
	}

	key := "baseline:" + snap.ID
	for _, sub := range subs {
		if !sub.NotifyNewJobs {
			continue
		}

		done, err := d.log.Delivered(ctx, key, sub.ID)
		if err != nil {
			d.logger.Error("checking delivery log", "subscriber", sub.ID, "error", err)
			continue
		}
		if done {
			continue
		}

		sender, err := d.senders(sub)
		if err != nil {
			d.logger.Error("building notifier", "subscriber", sub.ID, "error", err)
			continue
		}
		if err := sender.Notify(ctx, job, nil); err != nil {
			d.logger.Error("baseline notification failed", "subscriber", sub.ID, "job_id", job.ID, "error", err)
			continue
		}
		if err := d.log.MarkDelivered(ctx, key, sub.ID); err != nil {
			d.logger.Error("recording delivery", "subscriber", sub.ID, "error", err)
		}
	}
	return nil
}

// pendingChanges filters the set down to changes the subscriber cares about
// and has not yet received.
func (d *Dispatcher) pendingChanges(ctx context.Context, sub model.Subscriber, changes []model.Change) []model.Change {
	var pending []model.Change
	for _, c := range changes {
		if !c.Severity.AtLeast(sub.MinSeverity) {
			continue
		}
		done, err := d.log.Delivered(ctx, c.ID, sub.ID)
		if err != nil {
			d.logger.Error("checking delivery log", "subscriber", sub.ID, "change", c.ID, "error", err)
			continue
		}
		if done {
			continue
		}
		pending = append(pending, c)
	}
	return pending
}

func (d *Dispatcher) send(ctx context.Context, sub model.Subscriber, job model.Job, changes []model.Change) {
	sender, err := d.senders(sub)
	if err != nil {
		d.logger.Error("building notifier", "subscriber", sub.ID, "error", err)
		return
	}

	if err := sender.Notify(ctx, job, changes); err != nil {
		// Not marked delivered: the next dispatch retries these changes.
		d.logger.Error("notification failed",
			"subscriber", sub.ID,
			"job_id", job.ID,
			"changes", len(changes),
			"error", err,
		)
		return
	}

	for _, c := range changes {
		if err := d.log.MarkDelivered(ctx, c.ID, sub.ID); err != nil {
			d.logger.Error("recording delivery", "subscriber", sub.ID, "change", c.ID, "error", err)
		}
	}

	d.logger.Info("notifications sent",
		"subscriber", sub.ID,
		"job_id", job.ID,
		"changes", len(changes),
	)
}
