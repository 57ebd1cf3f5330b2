package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// EventNotifier queues events for operator channels. Enqueue must not
// block; it reports false when the event had to be dropped.
type EventNotifier interface {
	Enqueue(ev domain.Event) bool
}

// EventPublisher implements domain.EventPublisher. Each event is published
// on its pub/sub channel, appended to the durable event stream, and queued
// for the notifier. Failures are logged and never surface to the caller: the
// state change has already committed.
type EventPublisher struct {
	bus      domain.SignalBus
	notifier EventNotifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher. notifier may be nil.
func NewEventPublisher(bus domain.SignalBus, notifier EventNotifier, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:      bus,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "event_publisher")),
	}
}

// Publish delivers ev on a best-effort basis.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) {
	env, err := domain.NewEnvelope(ev, p.now())
	if err != nil {
		p.logger.ErrorContext(ctx, "event_publisher: encode failed",
			slog.String("event", ev.EventName()),
			slog.String("error", err.Error()),
		)
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.ErrorContext(ctx, "event_publisher: marshal envelope failed",
			slog.String("event", ev.EventName()),
			slog.String("error", err.Error()),
		)
		return
	}

	if p.bus != nil {
		if pubErr := p.bus.Publish(ctx, ev.Channel(), payload); pubErr != nil {
			p.logger.WarnContext(ctx, "event_publisher: publish failed",
				slog.String("event", ev.EventName()),
				slog.String("channel", ev.Channel()),
				slog.String("error", pubErr.Error()),
			)
		}
		if streamErr := p.bus.StreamAppend(ctx, domain.StreamEvents, payload); streamErr != nil {
			p.logger.WarnContext(ctx, "event_publisher: stream append failed",
				slog.String("event", ev.EventName()),
				slog.String("error", streamErr.Error()),
			)
		}
	}

	if p.notifier != nil && !p.notifier.Enqueue(ev) {
		p.logger.WarnContext(ctx, "event_publisher: notify queue full, dropped",
			slog.String("event", ev.EventName()),
		)
	}
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventPublisher)(nil)
