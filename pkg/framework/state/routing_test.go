package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoutingMatrixRoundTripsThroughString(t *testing.T) {
	m := NewRoutingMatrix(2, 3)
	m.Set(0, 0, true)
	m.Set(1, 2, true)

	parsed, err := ParseRoutingMatrix(m.String())
	require.NoError(t, err)
	require.True(t, parsed.Get(0, 0))
	require.True(t, parsed.Get(1, 2))
	require.False(t, parsed.Get(0, 1))
}

func TestParseSubscriptionStringNewFormat(t *testing.T) {
	sub, err := ParseSubscriptionString("ASIO|Focusrite:3:in")
	require.NoError(t, err)
	require.Equal(t, "ASIO", sub.DeviceType)
	require.Equal(t, "Focusrite", sub.DeviceName)
	require.Equal(t, 3, sub.ChannelIndex)
	require.Equal(t, "in", sub.Direction)
}

func TestParseSubscriptionStringLegacyFormat(t *testing.T) {
	sub, err := ParseSubscriptionString("BuiltInOutput:0:out")
	require.NoError(t, err)
	require.Equal(t, "", sub.DeviceType)
	require.Equal(t, "BuiltInOutput", sub.DeviceName)
	require.Equal(t, 0, sub.ChannelIndex)
	require.Equal(t, "out", sub.Direction)
}

func TestRoutingConfigXMLRoundTrip(t *testing.T) {
	cfg := &RoutingConfig{
		Version: 1,
		Subscriptions: []ChannelSubscriptionXML{
			{DeviceType: "ASIO", DeviceName: "Focusrite", ChannelIndex: 0, Direction: "in"},
		},
		InputMatrix: "10;01",
	}
	data, err := cfg.Marshal()
	require.NoError(t, err)

	parsed, err := UnmarshalRoutingConfig(data)
	require.NoError(t, err)
	require.Equal(t, 1, parsed.Version)
	require.Len(t, parsed.Subscriptions, 1)
	require.Equal(t, "Focusrite", parsed.Subscriptions[0].DeviceName)
	require.Equal(t, "10;01", parsed.InputMatrix)
}
