package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/amortization"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/orchestrator"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/simulation"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/trigger"
)

var (
	_ simulation.Recorder       = (*Metrics)(nil)
	_ orchestrator.PathObserver = (*Metrics)(nil)
)

// gather returns the metric families of reg keyed by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

// value sums every sample of a counter or gauge family whose labels include want.
func value(f *dto.MetricFamily, want map[string]string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if !hasLabels(m, want) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.GetCounter().GetValue()
		case m.Gauge != nil:
			total += m.GetGauge().GetValue()
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		got[l.GetName()] = l.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMetrics_PeriodCompleted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	res := &domain.PeriodResult{
		Period: 1,
		Tranches: []domain.TrancheCashflow{
			{TrancheID: "PAC", Busted: true},
			{TrancheID: "B", InterestShortfall: decimal.NewFromInt(12)},
			{TrancheID: "A"},
		},
		Diagnostics: domain.SolverDiagnostics{Iterations: 3, Converged: false, Overridden: true},
	}
	m.PeriodCompleted("D1", res)
	m.PeriodCompleted("D1", &domain.PeriodResult{Diagnostics: domain.SolverDiagnostics{Iterations: 1, Converged: true}})

	fams := gather(t, reg)
	assert.Equal(t, 2.0, value(fams["test_simulation_periods_total"], map[string]string{"deal": "D1"}))
	assert.Equal(t, 1.0, value(fams["test_solver_non_converged_total"], nil))
	assert.Equal(t, 1.0, value(fams["test_solver_overridden_total"], nil))
	assert.Equal(t, 1.0, value(fams["test_allocation_pac_busted_total"], map[string]string{"tranche": "PAC"}))
	assert.Equal(t, 1.0, value(fams["test_allocation_interest_shortfall_periods_total"], map[string]string{"tranche": "B"}))

	hist := fams["test_solver_iterations"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.Equal(t, 4.0, hist.GetSampleSum())
}

func TestMetrics_TriggerAndPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("", reg)

	m.TriggerTransition("D1", trigger.Transition{TriggerID: "OC", From: domain.TriggerPassing, To: domain.TriggerBreached})
	m.TriggerTransition("D1", trigger.Transition{TriggerID: "OC", From: domain.TriggerBreached, To: domain.TriggerPassing})
	m.TriggerTransition("D1", trigger.Transition{TriggerID: "OC", From: domain.TriggerPassing, To: domain.TriggerBreached})

	m.PathFinished("D1", 20*time.Millisecond, nil)
	m.PathFinished("D1", 5*time.Millisecond, errors.New("boom"))

	fams := gather(t, reg)
	transitions := fams["waterfall_trigger_transitions_total"]
	assert.Equal(t, 2.0, value(transitions, map[string]string{"trigger": "OC", "to": "BREACHED"}))
	assert.Equal(t, 1.0, value(transitions, map[string]string{"trigger": "OC", "to": "PASSING"}))

	paths := fams["waterfall_paths_total"]
	assert.Equal(t, 1.0, value(paths, map[string]string{"status": domain.RunStatusCompleted}))
	assert.Equal(t, 1.0, value(paths, map[string]string{"status": domain.RunStatusFailed}))

	hist := fams["waterfall_paths_duration_seconds"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.025, hist.GetSampleSum(), 1e-9)
}

func TestMetrics_RegisterCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	cache := amortization.NewCache(2)
	m.RegisterCache(cache)

	keys := []amortization.Key{
		{NoteRate: 0.06, RemainingTerm: 360},
		{NoteRate: 0.06, RemainingTerm: 359},
		{NoteRate: 0.06, RemainingTerm: 358},
	}
	for _, k := range keys {
		cache.Get(k)
	}
	cache.Get(keys[2])

	// Gauges read the cache at scrape time.
	fams := gather(t, reg)
	assert.Equal(t, 1.0, value(fams["test_cache_hits"], nil))
	assert.Equal(t, 3.0, value(fams["test_cache_misses"], nil))
	assert.Equal(t, 1.0, value(fams["test_cache_evictions"], nil))
	assert.Equal(t, 2.0, value(fams["test_cache_size"], nil))
	assert.InDelta(t, 0.25, value(fams["test_cache_hit_ratio"], nil), 1e-12)
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.PathFinished("D1", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_paths_total{deal="D1",status="COMPLETED"} 1`))
}
