package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted    *prometheus.CounterVec
	rebalances *prometheus.CounterVec
	fees       *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the registry tracking committed protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
			rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "rebalances_total",
				Help:      "Completed rebalances segmented by mode.",
			}, []string{"mode"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "rebalance_fees_par",
				Help:      "Rebalance fees paid out, in whole debt tokens.",
			}, []string{"mode"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.rebalances, eventRegistry.fees)
	})
	return eventRegistry
}

// RecordEvent counts one committed event.
func (m *eventMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	m.emitted.WithLabelValues(kind).Inc()
}

var wadFloat = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// RecordRebalance counts a rebalance and its fee given in wei of the debt
// token.
func (m *eventMetrics) RecordRebalance(mode string, feeWei *big.Int) {
	if m == nil {
		return
	}
	m.rebalances.WithLabelValues(mode).Inc()
	if feeWei == nil || feeWei.Sign() <= 0 {
		return
	}
	whole, _ := new(big.Float).Quo(new(big.Float).SetInt(feeWei), wadFloat).Float64()
	m.fees.WithLabelValues(mode).Add(whole)
}
