package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewWithEmptyURLIsNoOp(t *testing.T) {
	b := New("", zerolog.Nop())
	require.NotPanics(t, func() { b.Publish(KindGraphRecompiled, "test") })
	b.Close()
}

func TestNewWithUnreachableURLDegradesToNoOp(t *testing.T) {
	b := New("nats://127.0.0.1:1", zerolog.Nop())
	require.NotPanics(t, func() { b.Publish(KindDeviceOpened, "dev") })
	b.Close()
}
