package client

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/obsrt/rtcore/pkg/audio/device"
	"github.com/obsrt/rtcore/pkg/audio/server"
)

func newTestServer() *server.Server {
	return server.New(func(key device.DeviceKey) (*device.Handler, error) {
		return device.NewHandler(key, 2, 2), nil
	}, zerolog.Nop())
}

func TestNewClientRegistersWithServer(t *testing.T) {
	srv := newTestServer()
	c, err := New(srv)
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	_, _, ok := srv.GetClientState(c.ID)
	require.True(t, ok)
}

func TestPushThenPullRoundTripsThroughDeviceBuffer(t *testing.T) {
	srv := newTestServer()
	c, err := New(srv)
	require.NoError(t, err)

	subs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "dev", ChannelIndex: 0, Direction: device.Output}}
	require.NoError(t, c.SetSubscriptions(nil, subs))

	h, ok := srv.Device(device.NewDeviceKey("test", "dev"))
	require.True(t, ok)
	h.PrepareClientRates(c.ID, 4, 4, 48000, 48000)

	out := &BufferSnapshot{Channels: [][]float32{{1, 1, 1, 1}}}
	c.PushSubscribedOutputs(out, 4)

	deviceOut := [][]float32{make([]float32, 4)}
	deviceIn := [][]float32{make([]float32, 4)}
	h.Callback(deviceIn, deviceOut, 4)

	require.Equal(t, float32(1), deviceOut[0][0])
}

func TestPullSubscribedInputsReadsFromDeviceBuffer(t *testing.T) {
	srv := newTestServer()
	c, err := New(srv)
	require.NoError(t, err)

	subs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "dev", ChannelIndex: 0, Direction: device.Input}}
	require.NoError(t, c.SetSubscriptions(subs, nil))

	h, ok := srv.Device(device.NewDeviceKey("test", "dev"))
	require.True(t, ok)
	h.PrepareClientRates(c.ID, 4, 4, 48000, 48000)

	deviceOut := [][]float32{make([]float32, 4)}
	deviceIn := [][]float32{{2, 2, 2, 2}}
	h.Callback(deviceIn, deviceOut, 4)

	in := &BufferSnapshot{Channels: [][]float32{make([]float32, 4)}}
	c.PullSubscribedInputs(in, 4)

	require.Equal(t, float32(2), in.Channels[0][0])
}

func TestSetSubscriptionsReplacesCachedRings(t *testing.T) {
	srv := newTestServer()
	c, err := New(srv)
	require.NoError(t, err)

	subs := []device.ChannelSubscription{{DeviceType: "test", DeviceName: "dev", ChannelIndex: 0, Direction: device.Output}}
	require.NoError(t, c.SetSubscriptions(nil, subs))
	require.Len(t, c.outputRings, 1)
	require.NotNil(t, c.outputRings[0])

	require.NoError(t, c.SetSubscriptions(nil, nil))
	require.Empty(t, c.outputRings)
}

func TestCloseUnregistersClient(t *testing.T) {
	srv := newTestServer()
	c, err := New(srv)
	require.NoError(t, err)
	c.Close()

	_, _, ok := srv.GetClientState(c.ID)
	require.False(t, ok)
}
