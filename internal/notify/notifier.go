// Package notify delivers operator notifications over one or more channels
// (Telegram, Discord webhook). Delivery is best-effort: failures are logged
// and never propagate into the trading control flow.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the bot. The configured event filter matches
// against these names.
const (
	EventSignal     = "signal"
	EventChopZone   = "chop_zone"
	EventRiskReject = "risk_reject"
	EventOpen       = "position_open"
	EventTP1        = "TP1"
	EventTP2        = "TP2"
	EventStopLoss   = "SL"
	EventError      = "error"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier for the channel (e.g. "telegram").
	Name() string
}

// Notifier fans a notification out to every registered sender, filtered by
// event type. An empty filter allows every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders. Only events whose
// type appears in events are forwarded; an empty slice allows all.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers title/message for the given event to every sender. A
// failing sender does not block delivery to the others; the combined error
// is returned for callers that care, and safely ignorable for those that
// don't.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("event filtered out", slog.String("event", event))
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("notification send failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}

	if len(failed) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
