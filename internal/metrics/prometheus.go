package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wires the service counters into a dedicated prometheus registry.
type Registry struct {
	registry      *prometheus.Registry
	paymentsTotal *prometheus.CounterVec
	searchesTotal *prometheus.CounterVec
	pollAttempts  prometheus.Histogram
	walletBalance prometheus.Gauge
}

func NewRegistry() *Registry {
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monsearch_payments_total",
		Help: "Payment attempts by terminal status",
	}, []string{"status"})

	searches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monsearch_searches_total",
		Help: "Search requests by outcome",
	}, []string{"status"})

	poll := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "monsearch_receipt_poll_attempts",
		Help:    "Receipt lookups needed to resolve a payment",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 30},
	})

	balance := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "monsearch_wallet_balance",
		Help: "Cached wallet balance in whole native units",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(payments, searches, poll, balance)

	return &Registry{
		registry:      r,
		paymentsTotal: payments,
		searchesTotal: searches,
		pollAttempts:  poll,
		walletBalance: balance,
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) IncPayment(status string) {
	r.paymentsTotal.WithLabelValues(status).Inc()
}

func (r *Registry) IncSearch(status string) {
	r.searchesTotal.WithLabelValues(status).Inc()
}

func (r *Registry) ObservePollAttempts(attempts int) {
	r.pollAttempts.Observe(float64(attempts))
}

func (r *Registry) SetWalletBalance(balance float64) {
	r.walletBalance.Set(balance)
}
