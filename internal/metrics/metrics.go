package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EnvelopesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btclib",
		Name:      "envelopes_read_total",
		Help:      "Total network envelopes read, by command.",
	}, []string{"command"})

	EnvelopesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btclib",
		Name:      "envelopes_sent_total",
		Help:      "Total network envelopes sent, by command.",
	}, []string{"command"})

	TxCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btclib",
		Name:      "tx_cache_hits_total",
		Help:      "Transaction fetches served from the in-memory cache.",
	})

	TxCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btclib",
		Name:      "tx_cache_misses_total",
		Help:      "Transaction fetches that went to the backing store.",
	})

	TxFetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btclib",
		Name:      "tx_fetch_errors_total",
		Help:      "Transaction fetches that failed.",
	})

	HeadersStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btclib",
		Name:      "headers_stored_total",
		Help:      "Block headers accepted into the header store.",
	})

	HeadersRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btclib",
		Name:      "headers_rejected_total",
		Help:      "Block headers rejected by chain validation.",
	})
)

func init() {
	prometheus.MustRegister(
		EnvelopesRead,
		EnvelopesSent,
		TxCacheHits,
		TxCacheMisses,
		TxFetchErrors,
		HeadersStored,
		HeadersRejected,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
