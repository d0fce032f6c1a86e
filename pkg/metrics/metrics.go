package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Metrics exposes a tiny in-memory counter set for the agent.
type Metrics struct {
	runs          atomic.Int64
	registrations atomic.Int64
	fallbacks     atomic.Int64
	alerts        atomic.Int64
	probes        atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncRuns()          { m.runs.Add(1) }
func (m *Metrics) IncRegistrations() { m.registrations.Add(1) }
func (m *Metrics) IncFallbacks()     { m.fallbacks.Add(1) }
func (m *Metrics) IncAlerts()        { m.alerts.Add(1) }
func (m *Metrics) IncProbes()        { m.probes.Add(1) }

// Handler exposes the counters via a very small JSON response so we do not
// need to pull in a heavy metrics dependency for the agent.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "runs": ` + itoa(m.runs.Load()) + `,
  "registrations": ` + itoa(m.registrations.Load()) + `,
  "fallback_reactivations": ` + itoa(m.fallbacks.Load()) + `,
  "alerts": ` + itoa(m.alerts.Load()) + `,
  "probes": ` + itoa(m.probes.Load()) + `
}`))
	})
}

func itoa(v int64) string {
	return fmt.Sprintf("%d", v)
}
