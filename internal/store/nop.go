package store

import "context"

// NopDeliveryLog is a no-op delivery log used in dry-run mode. Nothing is
// recorded, so every change appears undelivered on each dispatch.
type NopDeliveryLog struct{}

func NewNopDeliveryLog() *NopDeliveryLog { return &NopDeliveryLog{} }

func (l *NopDeliveryLog) Delivered(ctx context.Context, key, subscriberID string) (bool, error) {
	return false, nil
}

func (l *NopDeliveryLog) MarkDelivered(ctx context.Context, key, subscriberID string) error {
	return nil
}
