package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"bloodbank/internal/audit"
)

// notifier turns order events into purchaser notifications. Delivery is a log
// line for now; the event carries everything a mail or SMS sender would need.
type notifier struct {
	log *slog.Logger
}

func (n *notifier) handle(_ context.Context, msg *sarama.ConsumerMessage) error {
	var ev audit.AuditLog
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	if ev.OrderID == "" {
		return fmt.Errorf("event %s has no order id", ev.EventID)
	}
	n.log.Info("notify purchaser",
		"event_id", ev.EventID,
		"order_id", ev.OrderID,
		"tracking_number", ev.TrackingNumber,
		"purchaser", purchaserOf(ev),
		"text", notificationText(ev),
	)
	return nil
}

func purchaserOf(ev audit.AuditLog) string {
	if ev.Action == audit.ActionCreated {
		return ev.ActorID
	}
	return ""
}

func notificationText(ev audit.AuditLog) string {
	switch ev.Action {
	case audit.ActionCreated:
		return fmt.Sprintf("Order %s received and pending review", ev.TrackingNumber)
	case audit.ActionTransition:
		return fmt.Sprintf("Order %s is now %s", ev.TrackingNumber, ev.NewStatus)
	default:
		return fmt.Sprintf("Order %s was updated", ev.TrackingNumber)
	}
}
