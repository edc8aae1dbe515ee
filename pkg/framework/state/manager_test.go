package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obsrt/rtcore/pkg/framework/param"
)

func TestSaveThenLoadRestoresParameterValues(t *testing.T) {
	registry := param.NewRegistry()
	gain := param.GainParameter(1, "Gain").Default(-6).Build()
	registry.Add(gain)

	mgr := NewManager(registry)

	var buf bytes.Buffer
	require.NoError(t, mgr.Save(&buf))

	gain.SetValue(0)
	require.NotEqual(t, -6.0, gain.GetPlainValue())

	require.NoError(t, mgr.Load(&buf))
	require.InDelta(t, -6.0, gain.GetPlainValue(), 1e-6)
}

func TestLoadRejectsUnknownHeader(t *testing.T) {
	mgr := NewManager(param.NewRegistry())
	err := mgr.Load(bytes.NewReader([]byte("BOGUS!")))
	require.Error(t, err)
}
