// Package notify pushes human-readable marketplace alerts (sales, accepted
// offers, upgrades) to chat channels such as Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// sendTimeout bounds one delivery to one channel.
const sendTimeout = 10 * time.Second

// Sender delivers one message to one chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans marketplace alerts out to every configured Sender.
type Notifier struct {
	senders  []Sender
	exact    map[string]bool
	prefixes []string
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. events restricts which event names are
// delivered; an entry ending in "*" matches by prefix ("Proposal*"). An
// empty list delivers every event that has a message template.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		senders: senders,
		exact:   make(map[string]bool, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case strings.HasSuffix(e, "*"):
			n.prefixes = append(n.prefixes, strings.TrimSuffix(e, "*"))
		default:
			n.exact[e] = true
		}
	}
	return n
}

// wants reports whether alerts for event pass the filter.
func (n *Notifier) wants(event string) bool {
	if len(n.exact) == 0 && len(n.prefixes) == 0 {
		return true
	}
	if n.exact[event] {
		return true
	}
	for _, p := range n.prefixes {
		if strings.HasPrefix(event, p) {
			return true
		}
	}
	return false
}

// Notify delivers title and message to every sender when event passes the
// filter. Every sender is tried; failures are joined into one error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.wants(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.Send(sctx, title, message)
		cancel()
		if err != nil {
			n.logger.WarnContext(ctx, "notification failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
