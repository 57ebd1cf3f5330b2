package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/uint128"
)

// Event names, also used by the notifier filter.
const (
	EventMarketCreated      = "market_created"
	EventOrderPlaced        = "order_placed"
	EventMarketResolved     = "market_resolved"
	EventPayoutClaimed      = "payout_claimed"
	EventEmergencyWithdrawn = "emergency_withdrawn"
)

// Pub/sub channels and the durable event stream.
const (
	ChannelMarket     = "ch:market"
	ChannelOrder      = "ch:order"
	ChannelResolution = "ch:resolution"
	ChannelClaim      = "ch:claim"
	StreamEvents      = "stream:events"
)

// Event is a notification emitted after a committed state change.
type Event interface {
	EventName() string
	Channel() string
}

// EventPublisher delivers events. Delivery is best effort and never affects
// the already committed operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

// Envelope is the wire form of an event on the bus, the durable stream and
// websocket connections.
type Envelope struct {
	Event     string          `json:"event"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope wraps ev for transport.
func NewEnvelope(ev Event, at time.Time) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}
	return Envelope{
		Event:     ev.EventName(),
		Channel:   ev.Channel(),
		Data:      data,
		Timestamp: at.UTC(),
	}, nil
}

// MarketCreated is emitted when a market record is allocated.
type MarketCreated struct {
	Market    Address   `json:"market"`
	Creator   Address   `json:"creator"`
	Region    RegionID  `json:"region"`
	Question  string    `json:"question"`
	CloseTime int64     `json:"close_time"`
	Timestamp time.Time `json:"timestamp"`
}

func (MarketCreated) EventName() string { return EventMarketCreated }
func (MarketCreated) Channel() string   { return ChannelMarket }

// OrderPlaced is emitted after an order commits.
type OrderPlaced struct {
	Trader    Address         `json:"trader"`
	Market    Address         `json:"market"`
	Side      Outcome         `json:"side"`
	Amount    uint64          `json:"amount"`
	Minted    uint128.Uint128 `json:"minted"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
}

func (OrderPlaced) EventName() string { return EventOrderPlaced }
func (OrderPlaced) Channel() string   { return ChannelOrder }

// MarketResolved is emitted by agent attempts and creator overrides.
type MarketResolved struct {
	Market      Address      `json:"market"`
	Outcome     Outcome      `json:"outcome"`
	Status      MarketStatus `json:"status"`
	EvidenceURL string       `json:"evidence_url"`
	IsAgent     bool         `json:"is_agent"`
	Reason      string       `json:"reason"`
	Timestamp   time.Time    `json:"timestamp"`
}

func (MarketResolved) EventName() string { return EventMarketResolved }
func (MarketResolved) Channel() string   { return ChannelResolution }

// PayoutClaimed is emitted after a successful claim.
type PayoutClaimed struct {
	Market    Address   `json:"market"`
	Trader    Address   `json:"trader"`
	Payout    uint64    `json:"payout"`
	Timestamp time.Time `json:"timestamp"`
}

func (PayoutClaimed) EventName() string { return EventPayoutClaimed }
func (PayoutClaimed) Channel() string   { return ChannelClaim }

// EmergencyWithdrawn is emitted when the resolver drains an unbacked pool.
type EmergencyWithdrawn struct {
	Market    Address   `json:"market"`
	Resolver  Address   `json:"resolver"`
	Amount    uint64    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (EmergencyWithdrawn) EventName() string { return EventEmergencyWithdrawn }
func (EmergencyWithdrawn) Channel() string   { return ChannelClaim }
