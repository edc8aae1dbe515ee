package diag

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m.GraphProcessDuration)

	m.ActiveClients.Set(3)
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
