package server

import (
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/obsrt/rtcore/pkg/audio/device"
)

func newTestServer(opens *atomic.Int32) *Server {
	return New(func(key device.DeviceKey) (*device.Handler, error) {
		opens.Add(1)
		return device.NewHandler(key, 2, 2), nil
	}, zerolog.Nop())
}

func TestRegisterClientOpensDeviceOnce(t *testing.T) {
	var opens atomic.Int32
	s := newTestServer(&opens)
	subs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "dev", ChannelIndex: 0, Direction: device.Input}}

	a := uuid.New()
	require.NoError(t, s.RegisterClient(a, subs, nil))
	b := uuid.New()
	require.NoError(t, s.RegisterClient(b, subs, nil))

	require.Equal(t, int32(1), opens.Load())
}

func TestUnregisterLastClientSchedulesDeferredClose(t *testing.T) {
	var opens atomic.Int32
	s := newTestServer(&opens)
	subs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "dev", ChannelIndex: 0, Direction: device.Input}}
	key := device.NewDeviceKey("test", "dev")

	client := uuid.New()
	require.NoError(t, s.RegisterClient(client, subs, nil))
	_, ok := s.Device(key)
	require.True(t, ok)

	s.UnregisterClient(client)
	_, stillOpen := s.Device(key)
	require.True(t, stillOpen, "device must stay open during the grace period")
}

func TestResubscribeBeforeCloseCancelsDeferredClose(t *testing.T) {
	var opens atomic.Int32
	s := newTestServer(&opens)
	subs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "dev", ChannelIndex: 0, Direction: device.Input}}

	client := uuid.New()
	require.NoError(t, s.RegisterClient(client, subs, nil))
	s.UnregisterClient(client)

	other := uuid.New()
	require.NoError(t, s.RegisterClient(other, subs, nil))

	require.Equal(t, int32(1), opens.Load(), "must reuse, not reopen, the still-pending device")
}

func TestGetClientStateReturnsRegisteredSubscriptions(t *testing.T) {
	var opens atomic.Int32
	s := newTestServer(&opens)
	subs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "dev", ChannelIndex: 0, Direction: device.Input}}
	client := uuid.New()
	require.NoError(t, s.RegisterClient(client, subs, nil))

	in, out, ok := s.GetClientState(client)
	require.True(t, ok)
	require.Equal(t, subs, in)
	require.Empty(t, out)
}

func TestRegisterDirectCallbackOpensDeviceIfNeeded(t *testing.T) {
	var opens atomic.Int32
	s := newTestServer(&opens)
	key := device.NewDeviceKey("test", "dev")
	require.NoError(t, s.RegisterDirectCallback(key, func(in, out [][]float32, n int) {}))
	require.True(t, s.HasDirectCallback(key))

	s.UnregisterDirectCallback(key)
	require.False(t, s.HasDirectCallback(key))
}

func TestUpdateClientSubscriptionsReleasesUnusedDevice(t *testing.T) {
	var opens atomic.Int32
	s := newTestServer(&opens)
	oldSubs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "devA", ChannelIndex: 0, Direction: device.Input}}
	newSubs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "devB", ChannelIndex: 0, Direction: device.Input}}

	client := uuid.New()
	require.NoError(t, s.RegisterClient(client, oldSubs, nil))
	require.NoError(t, s.UpdateClientSubscriptions(client, newSubs, nil))

	keyA := device.NewDeviceKey("test", "devA")
	hA, ok := s.Device(keyA)
	require.True(t, ok)
	require.False(t, hA.HasActiveSubscriptions())

	keyB := device.NewDeviceKey("test", "devB")
	hB, ok := s.Device(keyB)
	require.True(t, ok)
	require.True(t, hB.HasActiveSubscriptions())
}
