package device

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCallbackZerosOutputBeforeRouting(t *testing.T) {
	h := NewHandler(NewDeviceKey("test", "dev"), 1, 1)
	out := [][]float32{{1, 1, 1, 1}}
	in := [][]float32{{0, 0, 0, 0}}
	h.Callback(in, out, 4)
	for _, s := range out[0] {
		require.Equal(t, float32(0), s)
	}
}

func TestDirectCallbackRunsBeforeClientRouting(t *testing.T) {
	h := NewHandler(NewDeviceKey("test", "dev"), 1, 1)
	ran := false
	h.RegisterDirectCallback(func(in, out [][]float32, numSamples int) {
		ran = true
		out[0][0] = 5
	})
	out := [][]float32{{0, 0}}
	in := [][]float32{{0, 0}}
	h.Callback(in, out, 2)
	require.True(t, ran)
	require.Equal(t, float32(5), out[0][0])
}

func TestAddAndRemoveClientSubscriptionTogglesActivity(t *testing.T) {
	h := NewHandler(NewDeviceKey("test", "dev"), 2, 2)
	client := uuid.New()
	require.False(t, h.HasActiveSubscriptions())

	h.AddClientSubscription(client,
		[]ChannelMapping{{Channel: ChannelSubscription{ChannelIndex: 0, Direction: Input}, ClientChannel: 0}},
		nil,
	)
	require.True(t, h.HasActiveSubscriptions())

	h.RemoveClientSubscription(client)
	require.False(t, h.HasActiveSubscriptions())
}

func TestClientOutputSubscriptionRoutesIntoDeviceOutput(t *testing.T) {
	h := NewHandler(NewDeviceKey("test", "dev"), 1, 1)
	client := uuid.New()
	h.AddClientSubscription(client, nil,
		[]ChannelMapping{{Channel: ChannelSubscription{ChannelIndex: 0, Direction: Output}, ClientChannel: 0}},
	)

	h.PrepareClientRates(client, 4, 4, 48000, 48000)

	group := h.BindingBuffer(client)
	require.NotNil(t, group)
	buf := group.Channel(0)
	buf.Write([][]float32{{1, 1, 1, 1}}, 1, 4)

	out := [][]float32{make([]float32, 4)}
	in := [][]float32{make([]float32, 4)}
	h.Callback(in, out, 4)

	require.Equal(t, float32(1), out[0][0])
}

func TestCallbackReusesScratchAcrossBlocks(t *testing.T) {
	h := NewHandler(NewDeviceKey("test", "dev"), 1, 1)
	client := uuid.New()
	h.AddClientSubscription(client,
		[]ChannelMapping{{Channel: ChannelSubscription{ChannelIndex: 0, Direction: Input}, ClientChannel: 0}},
		[]ChannelMapping{{Channel: ChannelSubscription{ChannelIndex: 0, Direction: Output}, ClientChannel: 0}},
	)
	h.PrepareClientRates(client, 4, 4, 48000, 48000)

	binding := h.current.Load().ClientBuffers[client]
	scratchBacking := binding.outputScratch[0]

	out := [][]float32{make([]float32, 4)}
	in := [][]float32{{1, 1, 1, 1}}
	for i := 0; i < 3; i++ {
		h.Callback(in, out, 4)
	}

	require.Same(t, &scratchBacking[0], &binding.outputScratch[0][0], "outputScratch backing array must not be reallocated across Callback calls")
}
