// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fpconsole",
		Name:      "api_request_duration_seconds",
		Help:      "Latency of backend API calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "code"})

	EnrollmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fpconsole",
		Name:      "enrollment_attempts_total",
		Help:      "Fingerprint enrollment attempts by final state.",
	}, []string{"outcome"})

	RemovalOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fpconsole",
		Name:      "removal_requests_total",
		Help:      "Fingerprint removal requests by result.",
	}, []string{"outcome"})

	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fpconsole",
		Name:      "sign_ins_total",
		Help:      "Operator sign-in attempts by result code.",
	}, []string{"result"})

	SensorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fpconsole",
		Name:      "sensor_state",
		Help:      "1 for the sensor state seen on the last refresh.",
	}, []string{"state"})

	SensorTemplates = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fpconsole",
		Name:      "sensor_templates",
		Help:      "Templates stored on the sensor at the last refresh.",
	})
)

// ObserveAPI records one backend call. code is 0 for transport failures.
func ObserveAPI(method, route string, code int, started time.Time) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(time.Since(started).Seconds())
}

// SetSensorState marks state as the current one.
func SetSensorState(state string, templates int) {
	SensorState.Reset()
	SensorState.WithLabelValues(state).Set(1)
	SensorTemplates.Set(float64(templates))
}
