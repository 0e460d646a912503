package jsonrpc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// callMetrics records per-call counters and latencies into a metrics.Set.
// A nil *callMetrics records nothing.
type callMetrics struct {
	set *metrics.Set
}

func newCallMetrics(set *metrics.Set) *callMetrics {
	if set == nil {
		return nil
	}
	return &callMetrics{set: set}
}

// observe records one dispatched call. method is "" when the call never
// resolved to a registered method; code is 0 on success.
func (m *callMetrics) observe(path, method string, code int, start time.Time) {
	if m == nil {
		return
	}
	path, method = labelOrUnknown(path, "root"), labelOrUnknown(method, "unknown")
	m.set.GetOrCreateCounter(fmt.Sprintf(`jsonrpc_calls_total{path=%q,method=%q,code=%q}`,
		path, method, strconv.Itoa(code))).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`jsonrpc_call_duration_seconds{path=%q,method=%q}`,
		path, method)).UpdateDuration(start)
}

// observeContract records a result contract violation.
func (m *callMetrics) observeContract(path, method string) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`jsonrpc_contract_violations_total{path=%q,method=%q}`,
		labelOrUnknown(path, "root"), labelOrUnknown(method, "unknown"))).Inc()
}

func (m *callMetrics) observeBatch(size int) {
	if m == nil {
		return
	}
	m.set.GetOrCreateHistogram(`jsonrpc_batch_size`).Update(float64(size))
}

func labelOrUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
