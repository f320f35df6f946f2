// Package notify sends operator alerts about market creation to chat
// channels. Alerts carry an event name so operators can choose which ones
// they receive.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Events emitted by the creation service.
const (
	EventMarketCreated     = "market_created"
	EventReconcileRequired = "reconcile_required"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Settings selects the channels to build. Empty credentials leave a channel
// out.
type Settings struct {
	TelegramToken     string
	TelegramChatID    string
	DiscordWebhookURL string
	Events            []string
}

// Notifier fans an alert out to every Sender whose event is enabled.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New builds a Notifier with a sender for every configured channel.
func New(s Settings, logger *slog.Logger) *Notifier {
	var senders []Sender
	if s.TelegramToken != "" && s.TelegramChatID != "" {
		senders = append(senders, NewTelegramSender(s.TelegramToken, s.TelegramChatID))
	}
	if s.DiscordWebhookURL != "" {
		senders = append(senders, NewDiscordSender(s.DiscordWebhookURL))
	}
	return NewNotifier(senders, s.Events, logger)
}

// NewNotifier creates a Notifier delivering to senders. Only the listed
// events are delivered; an empty list delivers every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one channel is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify delivers an alert for event to every sender. A failing sender does
// not stop delivery to the others; all failures are returned together.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
