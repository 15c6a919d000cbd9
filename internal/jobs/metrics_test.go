package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// sample reads one series from the registry; missing series read as zero.
func sample(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue series
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestTrackerCountsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("ledger:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:integrity").End(boom), boom)

	require.Equal(t, 1.0, sample(t, reg, "storeledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "success"}))
	require.Equal(t, 1.0, sample(t, reg, "storeledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "failure"}))
	require.Equal(t, 1.0, sample(t, reg, "storeledger_jobs_failures_total", map[string]string{"job": "ledger:integrity"}))
}

func TestGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetViolations("cash_chain", 3)
	m.SetViolations("cash_chain", 0)
	m.SetViolations("movements", 2)
	m.SetLowStock(4)

	require.Equal(t, 0.0, sample(t, reg, "storeledger_integrity_violations", map[string]string{"check": "cash_chain"}))
	require.Equal(t, 2.0, sample(t, reg, "storeledger_integrity_violations", map[string]string{"check": "movements"}))
	require.Equal(t, 4.0, sample(t, reg, "storeledger_low_stock_products", nil))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.SetViolations("x", 1)
	m.SetLowStock(1)
}
