// Package telemetry exposes kernel-level Prometheus metrics. Registration
// is global and happens once at import; recording functions are safe to
// call from hot paths and from any thread, counters being atomic.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	spikesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spikekernel_spikes_emitted_total",
		Help: "Spike events written to outgoing window registers",
	})
	spikesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spikekernel_spikes_delivered_total",
		Help: "Ring-buffer writes performed while redistributing exchanged spikes",
	})
	correctionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spikekernel_corrections_issued_total",
		Help: "Correction events emitted by the axonal-delay corrector",
	})
	exchangeRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spikekernel_exchange_rounds_total",
		Help: "Completed collective spike exchanges at min-delay window boundaries",
	})
	minDelayTicks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spikekernel_min_delay_ticks",
		Help: "Cross-rank exchange cadence in simulation ticks",
	})
	connectionCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spikekernel_connections",
		Help: "Connection records in the kernel table",
	})
)

func init() {
	prometheus.MustRegister(
		spikesEmitted,
		spikesDelivered,
		correctionsIssued,
		exchangeRounds,
		minDelayTicks,
		connectionCount,
	)
}

func AddSpikesEmitted(n int)     { spikesEmitted.Add(float64(n)) }
func AddSpikesDelivered(n int)   { spikesDelivered.Add(float64(n)) }
func AddCorrectionsIssued(n int) { correctionsIssued.Add(float64(n)) }
func IncExchangeRounds()         { exchangeRounds.Inc() }
func SetMinDelayTicks(t int64)   { minDelayTicks.Set(float64(t)) }
func SetConnectionCount(n int)   { connectionCount.Set(float64(n)) }

// Serve starts a standalone /metrics endpoint on addr. Leave unused when
// the embedding process already exposes Prometheus elsewhere.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
