package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)
	require.NotNil(t, m.RunqueueDepth)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func TestObservePoolSnapshotSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)
	m.ObservePoolSnapshot("conn4k", 10, 3, 2)

	require.Equal(t, float64(10), testutil.ToFloat64(m.PoolAllocated.WithLabelValues("conn4k")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.PoolUsed.WithLabelValues("conn4k")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.PoolFailed.WithLabelValues("conn4k")))
}

func TestH1ConnModesIncrementsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)
	m.H1ConnModes.WithLabelValues("kal").Inc()
	m.H1ConnModes.WithLabelValues("kal").Inc()
	m.H1ConnModes.WithLabelValues("clo").Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(m.H1ConnModes.WithLabelValues("kal")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.H1ConnModes.WithLabelValues("clo")))
}
