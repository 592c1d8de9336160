package webhooks

import (
	"context"
)

// ThresholdNotifier delivers usage threshold alerts as webhook events.
type ThresholdNotifier struct {
	sender *Sender
}

// NewThresholdNotifier creates a notifier delivering through sender.
func NewThresholdNotifier(sender *Sender) *ThresholdNotifier {
	return &ThresholdNotifier{sender: sender}
}

// NotifyThreshold posts a usage.threshold event. An error tells the
// meter to re-fire the alert on the next crossing request.
func (n *ThresholdNotifier) NotifyThreshold(ctx context.Context, tenantID string, percent int, used, limit int64) error {
	return n.sender.Send(ctx, &Event{
		Type: EventUsageThreshold,
		Data: map[string]any{
			"tenantId": tenantID,
			"percent":  percent,
			"used":     used,
			"limit":    limit,
		},
	})
}
