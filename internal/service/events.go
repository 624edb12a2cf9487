package service

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/editionshop/internal/notify"
)

// DefaultEventsChannel is the bus channel and stream shop events go to.
const DefaultEventsChannel = "shop.events"

// Event kinds.
const (
	EventStoreCreated     = "store_created"
	EventResourceInit     = "selling_resource_created"
	EventMarketCreated    = notify.EventMarketOpen
	EventMarketChanged    = "market_changed"
	EventMarketClosed     = notify.EventMarketClose
	EventCreatorsSaved    = "primary_creators_saved"
	EventSale             = notify.EventSale
	EventPayout           = notify.EventPayout
	EventResourceClaimed  = notify.EventClaim
	EventResourceMinted   = "resource_created"
	EventAccountDeposited = "account_deposited"
)

// Event is a committed shop operation. Amounts are carried as decimal
// strings so they survive JSON number precision.
type Event struct {
	Kind   string
	At     time.Time
	Fields map[string]string
}

// Marshal encodes e as a protobuf Struct in its canonical JSON mapping.
func (e Event) Marshal() ([]byte, error) {
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	st, err := structpb.NewStruct(map[string]any{
		"event":  e.Kind,
		"at":     e.At.UTC().Format(time.RFC3339Nano),
		"fields": fields,
	})
	if err != nil {
		return nil, fmt.Errorf("service: encode event %s: %w", e.Kind, err)
	}
	return protojson.Marshal(st)
}

// DecodeEvent parses a payload produced by Event.Marshal.
func DecodeEvent(payload []byte) (Event, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal(payload, &st); err != nil {
		return Event{}, fmt.Errorf("service: decode event: %w", err)
	}
	m := st.AsMap()
	ev := Event{Fields: make(map[string]string)}
	ev.Kind, _ = m["event"].(string)
	if at, ok := m["at"].(string); ok {
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
	}
	if f, ok := m["fields"].(map[string]any); ok {
		for k, v := range f {
			if s, ok := v.(string); ok {
				ev.Fields[k] = s
			}
		}
	}
	return ev, nil
}

// Notification renders e for chat delivery.
func (e Event) Notification() notify.Event {
	return notify.Event{Kind: e.Kind, Title: eventTitles[e.Kind], Fields: e.Fields}
}

var eventTitles = map[string]string{
	EventStoreCreated:     "Store created",
	EventResourceInit:     "Selling resource registered",
	EventMarketCreated:    "Market opened",
	EventMarketChanged:    "Market changed",
	EventMarketClosed:     "Market closed",
	EventCreatorsSaved:    "Primary creators saved",
	EventSale:             "Edition sold",
	EventPayout:           "Royalty paid",
	EventResourceClaimed:  "Resource reclaimed",
	EventResourceMinted:   "Resource minted",
	EventAccountDeposited: "Account funded",
}
