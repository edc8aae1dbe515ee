// Package client implements the per-plugin-instance audio façade: a
// thin wrapper that pulls subscribed device inputs and pushes
// subscribed device outputs through the server's buffer groups (spec
// §5).
package client

import (
	"github.com/google/uuid"

	"github.com/obsrt/rtcore/internal/syncbuf"
	"github.com/obsrt/rtcore/pkg/audio/device"
	"github.com/obsrt/rtcore/pkg/audio/server"
)

// BufferSnapshot is the per-call view handed to a processor: one
// channel per subscription, already pulled from (or about to be pushed
// to) the device layer.
type BufferSnapshot struct {
	Channels [][]float32
}

// Client is one plugin instance's handle onto the server. ID is stable
// for the client's lifetime and is what the server keys subscriptions
// by.
type Client struct {
	ID      uuid.UUID
	server  *server.Server
	inputs  []device.ChannelSubscription
	outputs []device.ChannelSubscription

	// inputRings/outputRings cache each subscription's SyncBuffer,
	// resolved once per SetSubscriptions call (the control path) so
	// PullSubscribedInputs/PushSubscribedOutputs never call back into
	// the server's devicesMutex-guarded registry on the RT thread.
	// Entries stay valid for as long as the subscription does: a
	// device with an active subscriber is never closed out from under
	// it (pkg/audio/server's deferred-close logic only tears down a
	// device once it has no subscribers left).
	inputRings  []*syncbuf.Buffer
	outputRings []*syncbuf.Buffer

	// pullScratch/pushScratch are length-1 wrapper slices reused by
	// PullSubscribedInputs/PushSubscribedOutputs instead of allocating
	// a new one per subscription per block.
	pullScratch [][]float32
	pushScratch [][]float32
}

// New creates a client with a fresh ID and registers it with srv using
// an initially empty subscription set.
func New(srv *server.Server) (*Client, error) {
	c := &Client{
		ID:          uuid.New(),
		server:      srv,
		pullScratch: make([][]float32, 1),
		pushScratch: make([][]float32, 1),
	}
	if err := srv.RegisterClient(c.ID, nil, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Close unregisters the client from its server.
func (c *Client) Close() {
	c.server.UnregisterClient(c.ID)
}

// SetSubscriptions replaces the client's input/output channel
// subscriptions and re-resolves the cached SyncBuffer handles
// PullSubscribedInputs/PushSubscribedOutputs read from. Must be called
// off the RT thread.
func (c *Client) SetSubscriptions(inputs, outputs []device.ChannelSubscription) error {
	if err := c.server.UpdateClientSubscriptions(c.ID, inputs, outputs); err != nil {
		return err
	}
	c.inputs = inputs
	c.outputs = outputs
	c.inputRings = resolveRings(c.server, c.ID, inputs)
	c.outputRings = resolveRings(c.server, c.ID, outputs)
	return nil
}

// resolveRings looks up, once per subscription, the SyncBuffer backing
// it. subs is indexed the same way applySubscriptions assigned
// ChannelMapping.ClientChannel (the subscription's position within its
// own direction's slice), which is how BufferGroup.Channel expects to
// be addressed.
func resolveRings(srv *server.Server, id uuid.UUID, subs []device.ChannelSubscription) []*syncbuf.Buffer {
	rings := make([]*syncbuf.Buffer, len(subs))
	for i, sub := range subs {
		key := device.NewDeviceKey(sub.DeviceType, sub.DeviceName)
		h, ok := srv.Device(key)
		if !ok {
			continue
		}
		group := h.BindingBuffer(id)
		if group == nil {
			continue
		}
		rings[i] = group.Channel(i)
	}
	return rings
}

// Subscriptions returns the client's current subscription set.
func (c *Client) Subscriptions() (inputs, outputs []device.ChannelSubscription) {
	return c.inputs, c.outputs
}

// PullSubscribedInputs fills buf (one channel per input subscription)
// by reading each subscribed channel's SyncBuffer. Realtime-safe: no
// allocation, no locking — every ring was resolved by SetSubscriptions.
func (c *Client) PullSubscribedInputs(buf *BufferSnapshot, numSamples int) {
	for i := range c.inputs {
		if i >= len(buf.Channels) || i >= len(c.inputRings) {
			continue
		}
		ring := c.inputRings[i]
		if ring == nil {
			continue
		}
		c.pullScratch[0] = buf.Channels[i][:numSamples]
		ring.Read(c.pullScratch, 1)
	}
}

// PushSubscribedOutputs writes buf (one channel per output
// subscription) into each subscribed channel's SyncBuffer for the
// device callback to later drain. Realtime-safe: no allocation, no
// locking.
func (c *Client) PushSubscribedOutputs(buf *BufferSnapshot, numSamples int) {
	for i := range c.outputs {
		if i >= len(buf.Channels) || i >= len(c.outputRings) {
			continue
		}
		ring := c.outputRings[i]
		if ring == nil {
			continue
		}
		c.pushScratch[0] = buf.Channels[i][:numSamples]
		ring.Write(c.pushScratch, 1, numSamples)
	}
}
