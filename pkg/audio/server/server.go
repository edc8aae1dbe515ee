// Package server implements the process-wide audio device broker: it
// owns every open device handler, tracks which clients subscribe to
// which device channels, and multiplexes I/O between them (spec §5).
//
// Lock ordering is fixed and must never be taken in reverse:
// clientsMutex -> devicesMutex -> a handler's own internal locking.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/obsrt/rtcore/pkg/audio/device"
)

// deferredCloseDelay matches the original's 2-second grace period
// before actually tearing down an unsubscribed device, so a client
// that briefly re-subscribes (e.g. during a routing-matrix edit)
// doesn't pay device reopen latency.
const deferredCloseDelay = 2000 * time.Millisecond

type clientState struct {
	inputs  []device.ChannelSubscription
	outputs []device.ChannelSubscription
}

type pendingClose struct {
	timer *time.Timer
}

// Server is the process-wide broker. One Server instance is normally
// shared by every plugin/client in a process (spec's AudioServer
// singleton), but nothing here enforces that — tests construct private
// instances freely.
type Server struct {
	clientsMutex sync.Mutex
	clients      map[uuid.UUID]*clientState

	devicesMutex sync.Mutex
	devices      map[device.DeviceKey]*device.Handler
	pending      map[device.DeviceKey]*pendingClose

	reopenLimiter *rate.Limiter
	log           zerolog.Logger

	openFunc func(key device.DeviceKey) (*device.Handler, error)
}

// New creates a Server. openFunc is called (at most reopenLimiter's
// rate) to actually bring a device online the first time any client
// subscribes to one of its channels; the tests pass a func that
// returns a plain device.Handler from device.NewHandler.
func New(openFunc func(device.DeviceKey) (*device.Handler, error), log zerolog.Logger) *Server {
	return &Server{
		clients:       map[uuid.UUID]*clientState{},
		devices:       map[device.DeviceKey]*device.Handler{},
		pending:       map[device.DeviceKey]*pendingClose{},
		reopenLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 4),
		log:           log,
		openFunc:      openFunc,
	}
}

// RegisterClient adds a client with its initial subscription state,
// opening (or reusing) every device it subscribes to.
func (s *Server) RegisterClient(client uuid.UUID, inputs, outputs []device.ChannelSubscription) error {
	s.clientsMutex.Lock()
	s.clients[client] = &clientState{inputs: inputs, outputs: outputs}
	s.clientsMutex.Unlock()

	return s.applySubscriptions(client, inputs, outputs)
}

// UnregisterClient removes a client and releases any device whose
// last subscriber it was (subject to the deferred-close grace period).
func (s *Server) UnregisterClient(client uuid.UUID) {
	s.clientsMutex.Lock()
	state, ok := s.clients[client]
	delete(s.clients, client)
	s.clientsMutex.Unlock()
	if !ok {
		return
	}

	touched := map[device.DeviceKey]bool{}
	for _, sub := range state.inputs {
		touched[device.NewDeviceKey(sub.DeviceType, sub.DeviceName)] = true
	}
	for _, sub := range state.outputs {
		touched[device.NewDeviceKey(sub.DeviceType, sub.DeviceName)] = true
	}

	s.devicesMutex.Lock()
	defer s.devicesMutex.Unlock()
	for key := range touched {
		if h, ok := s.devices[key]; ok {
			h.RemoveClientSubscription(client)
			if !h.HasActiveSubscriptions() {
				s.scheduleDeviceCloseLocked(key)
			}
		}
	}
}

// UpdateClientSubscriptions replaces a client's subscription set,
// releasing devices it no longer uses and opening any new ones.
func (s *Server) UpdateClientSubscriptions(client uuid.UUID, inputs, outputs []device.ChannelSubscription) error {
	s.clientsMutex.Lock()
	old, ok := s.clients[client]
	s.clients[client] = &clientState{inputs: inputs, outputs: outputs}
	s.clientsMutex.Unlock()

	if ok {
		s.releaseUnusedDevices(client, old, &clientState{inputs: inputs, outputs: outputs})
	}
	return s.applySubscriptions(client, inputs, outputs)
}

// GetClientState returns a client's current subscription set. A pure,
// cached query: never touches a device.
func (s *Server) GetClientState(client uuid.UUID) (inputs, outputs []device.ChannelSubscription, ok bool) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	st, found := s.clients[client]
	if !found {
		return nil, nil, false
	}
	return append([]device.ChannelSubscription(nil), st.inputs...), append([]device.ChannelSubscription(nil), st.outputs...), true
}

func (s *Server) applySubscriptions(client uuid.UUID, inputs, outputs []device.ChannelSubscription) error {
	byDevice := map[device.DeviceKey][]device.ChannelMapping{}
	outByDevice := map[device.DeviceKey][]device.ChannelMapping{}
	for i, sub := range inputs {
		key := device.NewDeviceKey(sub.DeviceType, sub.DeviceName)
		byDevice[key] = append(byDevice[key], device.ChannelMapping{Channel: sub, ClientChannel: i})
	}
	for i, sub := range outputs {
		key := device.NewDeviceKey(sub.DeviceType, sub.DeviceName)
		outByDevice[key] = append(outByDevice[key], device.ChannelMapping{Channel: sub, ClientChannel: i})
	}

	keys := map[device.DeviceKey]bool{}
	for k := range byDevice {
		keys[k] = true
	}
	for k := range outByDevice {
		keys[k] = true
	}

	for key := range keys {
		h, err := s.getOrCreateDevice(key)
		if err != nil {
			return err
		}
		h.AddClientSubscription(client, byDevice[key], outByDevice[key])
	}
	return nil
}

func (s *Server) releaseUnusedDevices(client uuid.UUID, old, next *clientState) {
	oldKeys := subscriptionDeviceKeys(old)
	newKeys := subscriptionDeviceKeys(next)

	s.devicesMutex.Lock()
	defer s.devicesMutex.Unlock()
	for key := range oldKeys {
		if !newKeys[key] {
			if h, ok := s.devices[key]; ok {
				h.RemoveClientSubscription(client)
				if !h.HasActiveSubscriptions() {
					s.scheduleDeviceCloseLocked(key)
				}
			}
		}
	}
}

func subscriptionDeviceKeys(st *clientState) map[device.DeviceKey]bool {
	keys := map[device.DeviceKey]bool{}
	for _, sub := range st.inputs {
		keys[device.NewDeviceKey(sub.DeviceType, sub.DeviceName)] = true
	}
	for _, sub := range st.outputs {
		keys[device.NewDeviceKey(sub.DeviceType, sub.DeviceName)] = true
	}
	return keys
}

// getOrCreateDevice returns an existing handler or opens a new one,
// rate-limited so a storm of simultaneous subscriptions can't thrash
// the underlying transport.
func (s *Server) getOrCreateDevice(key device.DeviceKey) (*device.Handler, error) {
	s.devicesMutex.Lock()
	if h, ok := s.devices[key]; ok {
		s.cancelPendingDeviceCloseLocked(key)
		s.devicesMutex.Unlock()
		return h, nil
	}
	s.devicesMutex.Unlock()

	if err := s.reopenLimiter.Wait(context.Background()); err != nil {
		s.log.Debug().Err(err).Msg("reopen limiter wait failed, proceeding unthrottled")
	}

	h, err := s.openFunc(key)
	if err != nil {
		return nil, err
	}

	s.devicesMutex.Lock()
	defer s.devicesMutex.Unlock()
	if existing, ok := s.devices[key]; ok {
		// Lost the race against a concurrent subscriber; keep the
		// existing handler and drop the one we just opened.
		return existing, nil
	}
	s.devices[key] = h
	return h, nil
}

func (s *Server) cancelPendingDeviceCloseLocked(key device.DeviceKey) {
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
}

func (s *Server) scheduleDeviceCloseLocked(key device.DeviceKey) {
	s.cancelPendingDeviceCloseLocked(key)
	timer := time.AfterFunc(deferredCloseDelay, func() {
		s.devicesMutex.Lock()
		defer s.devicesMutex.Unlock()
		if h, ok := s.devices[key]; ok && !h.HasActiveSubscriptions() {
			delete(s.devices, key)
		}
		delete(s.pending, key)
	})
	s.pending[key] = &pendingClose{timer: timer}
}

// RegisterDirectCallback installs a device-thread callback for a
// device, opening it if necessary.
func (s *Server) RegisterDirectCallback(key device.DeviceKey, cb device.DirectCallback) error {
	h, err := s.getOrCreateDevice(key)
	if err != nil {
		return err
	}
	h.RegisterDirectCallback(cb)
	return nil
}

// UnregisterDirectCallback clears a device's direct callback, if any.
func (s *Server) UnregisterDirectCallback(key device.DeviceKey) {
	s.devicesMutex.Lock()
	h, ok := s.devices[key]
	s.devicesMutex.Unlock()
	if ok {
		h.RegisterDirectCallback(nil)
	}
}

// HasDirectCallback reports whether a device currently has a direct
// callback registered.
func (s *Server) HasDirectCallback(key device.DeviceKey) bool {
	s.devicesMutex.Lock()
	h, ok := s.devices[key]
	s.devicesMutex.Unlock()
	return ok && h.HasDirectCallback()
}

// Device returns the live handler for a key, if open.
func (s *Server) Device(key device.DeviceKey) (*device.Handler, bool) {
	s.devicesMutex.Lock()
	defer s.devicesMutex.Unlock()
	h, ok := s.devices[key]
	return h, ok
}
