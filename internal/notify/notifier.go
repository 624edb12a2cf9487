// Package notify fans shop events out to chat webhooks. Operators pick which
// event kinds they receive.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Event kinds the shop emits.
const (
	EventSale        = "sale"
	EventPayout      = "payout"
	EventMarketOpen  = "market_created"
	EventMarketClose = "market_closed"
	EventClaim       = "resource_claimed"
)

// Event is one notification. Fields are rendered as "key: value" lines in
// key order.
type Event struct {
	Kind   string
	Title  string
	Fields map[string]string
}

// Message renders the body of e.
func (e Event) Message() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, e.Fields[k])
	}
	return b.String()
}

// Sender delivers a rendered notification to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches events to every Sender whose kind passes the filter.
// An empty filter lets every kind through.
type Notifier struct {
	senders []Sender
	kinds   map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			allowed[k] = true
		}
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers e. A failing sender does not stop delivery to the others;
// all failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, e Event) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.kinds) > 0 && !n.kinds[e.Kind] {
		return nil
	}

	msg := e.Message()
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, e.Title, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("kind", e.Kind),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
