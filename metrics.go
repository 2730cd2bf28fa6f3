package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	messagesHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calibration_messages_handled_total",
		Help: "Calibration requests answered, by command.",
	}, []string{"cmd"})
	messagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calibration_messages_dropped_total",
		Help: "Inbound messages dropped without a response.",
	})
)

func init() {
	prometheus.MustRegister(messagesHandled, messagesDropped)
}

// serveMetrics exposes the counters for scraping. It blocks, so callers run
// it in a goroutine; the process does not depend on it.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithFields(log.Fields{"addr": addr}).Info("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithFields(log.Fields{"error": err.Error()}).Error("metrics server stopped")
	}
}
