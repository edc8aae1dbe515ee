// Package events implements an optional external event bus: structural
// graph changes, device open/close, and client subscription edits are
// published here for any off-process listener (a UI, a monitoring
// sidecar) to observe. When no NATS URL is configured, or the broker
// is unreachable, publication is a silent no-op — nothing in this
// module ever depends on this bus for correctness.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Kind enumerates the event types this module emits.
type Kind string

const (
	KindGraphRecompiled      Kind = "graph.recompiled"
	KindDeviceOpened         Kind = "device.opened"
	KindDeviceClosed         Kind = "device.closed"
	KindClientRegistered     Kind = "client.registered"
	KindClientUnregistered   Kind = "client.unregistered"
	KindSubscriptionsUpdated Kind = "client.subscriptions_updated"
)

// Event is the wire payload published to NATS subject "rtcore.events".
type Event struct {
	Kind      Kind      `json:"kind"`
	Subject   string    `json:"subject"` // device key, client id, etc.
	Timestamp time.Time `json:"timestamp"`
}

const subject = "rtcore.events"

// Bus publishes Events to an optional NATS connection. A Bus with a
// nil connection (natsURL was empty, or Connect failed) silently drops
// every Publish call.
type Bus struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// New connects to natsURL if non-empty. Connection failure is logged
// at Warn and the Bus degrades to a no-op rather than failing startup
// — the event bus is observability, never a dependency of the audio
// path.
func New(natsURL string, log zerolog.Logger) *Bus {
	if natsURL == "" {
		return &Bus{log: log}
	}
	conn, err := nats.Connect(natsURL, nats.Timeout(2*time.Second), nats.MaxReconnects(3))
	if err != nil {
		log.Warn().Err(err).Str("url", natsURL).Msg("event bus unreachable, publishing disabled")
		return &Bus{log: log}
	}
	return &Bus{conn: conn, log: log}
}

// Publish emits an event; a no-op if the bus has no live connection.
func (b *Bus) Publish(kind Kind, subjectID string) {
	if b.conn == nil {
		return
	}
	payload, err := json.Marshal(Event{Kind: kind, Subject: subjectID, Timestamp: stamp()})
	if err != nil {
		return
	}
	if err := b.conn.Publish(subject, payload); err != nil {
		b.log.Debug().Err(err).Msg("event publish failed")
	}
}

// Close drains and closes the underlying connection, if any.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// stamp is isolated so tests can't trip over nondeterminism in the
// rest of the package; production callers get the real wall clock.
func stamp() time.Time {
	return time.Now()
}
