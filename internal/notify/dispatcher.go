// Package notify forwards market lifecycle events to operator channels
// (Telegram, Discord). Events are filtered by name so operators receive only
// the alerts they care about, e.g. resolutions and emergency drains.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

const (
	defaultQueueSize = 256
	drainTimeout     = 5 * time.Second
)

// Sender is one operator channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Dispatcher queues market events and delivers them to every Sender from a
// single worker, so a slow chat API never holds up the ledger path.
type Dispatcher struct {
	senders []Sender
	allow   map[string]bool
	queue   chan domain.Event
	logger  *slog.Logger
}

// NewDispatcher builds a Dispatcher for the named events (every event when
// names is empty). queueSize bounds the backlog; non-positive selects the
// default.
func NewDispatcher(senders []Sender, names []string, queueSize int, logger *slog.Logger) *Dispatcher {
	allow := make(map[string]bool, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			allow[name] = true
		}
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		senders: senders,
		allow:   allow,
		queue:   make(chan domain.Event, queueSize),
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Wants reports whether ev passes the event filter and has anywhere to go.
func (d *Dispatcher) Wants(ev domain.Event) bool {
	if len(d.senders) == 0 {
		return false
	}
	return len(d.allow) == 0 || d.allow[ev.EventName()]
}

// Enqueue hands ev to the worker without blocking. It returns false only
// when the event was wanted but the queue was full.
func (d *Dispatcher) Enqueue(ev domain.Event) bool {
	if !d.Wants(ev) {
		return true
	}
	select {
	case d.queue <- ev:
		return true
	default:
		return false
	}
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// still buffered within drainTimeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.deliverLogged(ctx, ev)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliverLogged(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			d.logger.WarnContext(ctx, "notify: drain timed out", slog.Int("dropped", len(d.queue)))
			return
		}
	}
}

func (d *Dispatcher) deliverLogged(ctx context.Context, ev domain.Event) {
	if err := d.Deliver(ctx, ev); err != nil {
		d.logger.WarnContext(ctx, "notify: delivery failed",
			slog.String("event", ev.EventName()),
			slog.String("error", err.Error()),
		)
	}
}

// Deliver renders ev and sends it to every Sender now. One sender failing
// does not stop the others; all failures are joined.
func (d *Dispatcher) Deliver(ctx context.Context, ev domain.Event) error {
	if !d.Wants(ev) {
		return nil
	}
	title, message := Format(ev)

	var errs []error
	for _, s := range d.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		d.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("event", ev.EventName()),
		)
	}
	return errors.Join(errs...)
}

// Format renders an event as a notification title and body.
func Format(ev domain.Event) (title, message string) {
	switch e := ev.(type) {
	case domain.MarketCreated:
		return "Market created", fmt.Sprintf("%q\nmarket: %s\ncloses: %d",
			e.Question, short(e.Market), e.CloseTime)
	case domain.OrderPlaced:
		return "Order placed", fmt.Sprintf("%s %d on %s (minted %s, seq %d)",
			e.Side, e.Amount, short(e.Market), e.Minted, e.Sequence)
	case domain.MarketResolved:
		source := "creator override"
		if e.IsAgent {
			source = "agent"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "market: %s\noutcome: %s\nstatus: %s\nsource: %s",
			short(e.Market), e.Outcome, e.Status, source)
		if e.Reason != "" {
			fmt.Fprintf(&b, "\nreason: %s", e.Reason)
		}
		if e.EvidenceURL != "" {
			fmt.Fprintf(&b, "\nevidence: %s", e.EvidenceURL)
		}
		if e.Status == domain.StatusDisputed {
			return "Market disputed", b.String()
		}
		return "Market resolved", b.String()
	case domain.PayoutClaimed:
		return "Payout claimed", fmt.Sprintf("%d paid to %s on %s",
			e.Payout, short(e.Trader), short(e.Market))
	case domain.EmergencyWithdrawn:
		return "Emergency withdraw", fmt.Sprintf("%d drained from %s to resolver %s",
			e.Amount, short(e.Market), short(e.Resolver))
	default:
		return ev.EventName(), ""
	}
}

// short abbreviates an address for chat messages.
func short(a domain.Address) string {
	h := a.Hex()
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}
