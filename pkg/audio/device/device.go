// Package device implements the per-device callback handler: it owns
// one hardware (or virtual) audio device and fans its I/O out to every
// client subscribed to one of its channels, plus any direct callbacks
// registered for device-thread access (spec §5).
package device

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/obsrt/rtcore/internal/syncbuf"
	"github.com/obsrt/rtcore/pkg/dsp"
)

// Direction distinguishes an input subscription from an output one.
type Direction int

const (
	Input Direction = iota
	Output
)

// ChannelSubscription names one physical device channel a client
// wants routed to or from it. Key matches the original's
// "deviceType|deviceName:channelIndex:in|out" serialization, kept
// separately in pkg/framework/state (routing.go).
type ChannelSubscription struct {
	DeviceType   string
	DeviceName   string
	ChannelIndex int
	Direction    Direction
}

// ChannelMapping maps one subscribed device channel to a position in
// the client's own multichannel buffer.
type ChannelMapping struct {
	Channel      ChannelSubscription
	ClientChannel int
}

// DeviceKey identifies a physical device by type and name, matching
// the "type|name" composite the original used as its map key.
type DeviceKey string

func NewDeviceKey(deviceType, deviceName string) DeviceKey {
	return DeviceKey(deviceType + "|" + deviceName)
}

// BufferGroup is a contiguous set of per-channel buffers, one slice
// per subscribed channel, shared between the device callback and a
// client's pull/push calls via a SyncBuffer per channel (so client and
// device rates may drift independently).
type BufferGroup struct {
	channels []*syncbuf.Buffer
}

// NewBufferGroup allocates one SyncBuffer per channel.
func NewBufferGroup(numChannels int) *BufferGroup {
	bg := &BufferGroup{channels: make([]*syncbuf.Buffer, numChannels)}
	for i := range bg.channels {
		bg.channels[i] = syncbuf.New()
	}
	return bg
}

func (bg *BufferGroup) Channel(i int) *syncbuf.Buffer {
	if i < 0 || i >= len(bg.channels) {
		return nil
	}
	return bg.channels[i]
}

func (bg *BufferGroup) NumChannels() int { return len(bg.channels) }

// DirectCallback runs synchronously inside the device's audio thread,
// before subscribed-client routing, for hosts that need the lowest
// possible added latency (the original's "PluginHost2" direct path).
type DirectCallback func(in, out [][]float32, numSamples int)

// DeviceSnapshot is the immutable, atomically-published state a
// device's callback reads each block: the registered client buffer
// groups and any direct callback. Mutating registration
// (AddClientSubscription, RemoveClientSubscription, PrepareClientRates,
// RegisterDirectCallback) builds a new snapshot and swaps
// it in; the device callback itself never locks.
type DeviceSnapshot struct {
	ClientBuffers map[uuid.UUID]*clientBinding
	Direct        DirectCallback
}

type clientBinding struct {
	inputs  []ChannelMapping
	outputs []ChannelMapping
	group   *BufferGroup

	// inputScratch/outputScratch are pre-sized once (AddClientSubscription,
	// then resized by PrepareClientRates) and reused by Callback every
	// block instead of allocating a wrapper slice per client per call.
	inputScratch  [][]float32 // length-1 wrapper; element overwritten to alias an in[] channel
	outputScratch [][]float32 // length-1 wrapper around a reusable backing buffer for SyncBuffer.Read
}

func newClientBinding(inputs, outputs []ChannelMapping, group *BufferGroup) *clientBinding {
	return &clientBinding{
		inputs:        inputs,
		outputs:       outputs,
		group:         group,
		inputScratch:  make([][]float32, 1),
		outputScratch: [][]float32{nil},
	}
}

// Handler owns one physical device's full-duplex callback.
type Handler struct {
	key DeviceKey

	clientBuffersMutex sync.Mutex // only taken for registration, not inside the callback
	current            atomic.Pointer[DeviceSnapshot]

	numInputChannels  int
	numOutputChannels int
}

// NewHandler creates a handler for a device with the given channel
// counts. The device is not "open" in any OS sense here — spec §9
// resolves hardware I/O as out of scope; a Handler's callback is
// driven by whatever transport (network device, null device, test
// harness) calls Callback.
func NewHandler(key DeviceKey, numInputChannels, numOutputChannels int) *Handler {
	h := &Handler{key: key, numInputChannels: numInputChannels, numOutputChannels: numOutputChannels}
	h.current.Store(&DeviceSnapshot{ClientBuffers: map[uuid.UUID]*clientBinding{}})
	return h
}

func (h *Handler) Key() DeviceKey { return h.key }

// AddClientSubscription registers client as subscribed to the listed
// device channels, building a fresh buffer group for it and publishing
// a new snapshot.
func (h *Handler) AddClientSubscription(client uuid.UUID, inputs, outputs []ChannelMapping) {
	h.clientBuffersMutex.Lock()
	defer h.clientBuffersMutex.Unlock()

	old := h.current.Load()
	next := &DeviceSnapshot{ClientBuffers: make(map[uuid.UUID]*clientBinding, len(old.ClientBuffers)+1), Direct: old.Direct}
	for id, b := range old.ClientBuffers {
		next.ClientBuffers[id] = b
	}

	// Callback and the client façade address the group by
	// ChannelMapping.ClientChannel, so size it to the highest one.
	numChannels := 0
	for _, m := range inputs {
		if m.ClientChannel+1 > numChannels {
			numChannels = m.ClientChannel + 1
		}
	}
	for _, m := range outputs {
		if m.ClientChannel+1 > numChannels {
			numChannels = m.ClientChannel + 1
		}
	}
	next.ClientBuffers[client] = newClientBinding(inputs, outputs, NewBufferGroup(numChannels))
	h.current.Store(next)
}

// RemoveClientSubscription drops a client's binding, if present.
func (h *Handler) RemoveClientSubscription(client uuid.UUID) {
	h.clientBuffersMutex.Lock()
	defer h.clientBuffersMutex.Unlock()

	old := h.current.Load()
	if _, ok := old.ClientBuffers[client]; !ok {
		return
	}
	next := &DeviceSnapshot{ClientBuffers: make(map[uuid.UUID]*clientBinding, len(old.ClientBuffers)), Direct: old.Direct}
	for id, b := range old.ClientBuffers {
		if id != client {
			next.ClientBuffers[id] = b
		}
	}
	h.current.Store(next)
}

// HasActiveSubscriptions reports whether any client currently
// subscribes to this device.
func (h *Handler) HasActiveSubscriptions() bool {
	return len(h.current.Load().ClientBuffers) > 0
}

// HasDirectCallback reports whether a direct callback is installed.
func (h *Handler) HasDirectCallback() bool {
	return h.current.Load().Direct != nil
}

// RegisterDirectCallback installs (or clears, with nil) a direct
// callback invoked synchronously inside Callback before client
// routing.
func (h *Handler) RegisterDirectCallback(cb DirectCallback) {
	h.clientBuffersMutex.Lock()
	defer h.clientBuffersMutex.Unlock()
	old := h.current.Load()
	next := &DeviceSnapshot{ClientBuffers: old.ClientBuffers, Direct: cb}
	h.current.Store(next)
}

// Callback is the realtime device I/O entry point: zero the output,
// run the direct callback if any, then for each subscribed client,
// route its output subscription into out and its input subscription
// out of in, via each channel's SyncBuffer. Never allocates, never
// locks.
func (h *Handler) Callback(in, out [][]float32, numSamples int) {
	for ch := range out {
		dsp.Clear(out[ch][:numSamples])
	}

	snap := h.current.Load()
	if snap.Direct != nil {
		snap.Direct(in, out, numSamples)
	}

	for _, binding := range snap.ClientBuffers {
		for _, mapping := range binding.inputs {
			buf := binding.group.Channel(mapping.ClientChannel)
			if buf == nil || mapping.Channel.ChannelIndex >= len(in) {
				continue
			}
			binding.inputScratch[0] = in[mapping.Channel.ChannelIndex][:numSamples]
			buf.Write(binding.inputScratch, 1, numSamples)
		}
		for _, mapping := range binding.outputs {
			buf := binding.group.Channel(mapping.ClientChannel)
			scratch := binding.outputScratch
			if buf == nil || mapping.Channel.ChannelIndex >= len(out) || len(scratch[0]) < numSamples {
				continue
			}
			buf.Read(scratch, 1)
			dst := out[mapping.Channel.ChannelIndex]
			n := numSamples
			if len(dst) < n {
				n = len(dst)
			}
			dsp.Add(dst[:n], scratch[0][:n])
		}
	}
}

// PrepareClientRates configures (and reconciles) every SyncBuffer in a
// client's binding for the given writer/reader block sizes and sample
// rates, and (re)sizes that client's Callback scratch buffers to match
// — this is this handler's equivalent of the original's
// audioDeviceAboutToStart sizing hook. Must be called off the RT
// thread, typically once right after AddClientSubscription and again
// whenever the device or client format changes. Publishes a fresh
// snapshot rather than mutating the live binding in place, since
// Callback may be reading it concurrently on the device thread.
func (h *Handler) PrepareClientRates(client uuid.UUID, writerBlock, readerBlock int, writerRate, readerRate float64) {
	h.clientBuffersMutex.Lock()
	defer h.clientBuffersMutex.Unlock()

	old := h.current.Load()
	binding, ok := old.ClientBuffers[client]
	if !ok {
		return
	}

	for i := 0; i < binding.group.NumChannels(); i++ {
		buf := binding.group.Channel(i)
		buf.Prepare(1, writerBlock, readerBlock, writerRate, readerRate)
		buf.Reconcile()
	}

	resized := newClientBinding(binding.inputs, binding.outputs, binding.group)
	resized.outputScratch[0] = make([]float32, readerBlock)

	next := &DeviceSnapshot{ClientBuffers: make(map[uuid.UUID]*clientBinding, len(old.ClientBuffers)), Direct: old.Direct}
	for id, b := range old.ClientBuffers {
		next.ClientBuffers[id] = b
	}
	next.ClientBuffers[client] = resized
	h.current.Store(next)
}

// BindingBuffer returns a client's buffer group. The client façade
// resolves its per-subscription SyncBuffers from it (off the RT
// thread) and pulls/pushes against them, while Callback reads and
// writes the same buffers from the device side.
func (h *Handler) BindingBuffer(client uuid.UUID) *BufferGroup {
	snap := h.current.Load()
	b, ok := snap.ClientBuffers[client]
	if !ok {
		return nil
	}
	return b.group
}
