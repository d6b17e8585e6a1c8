// Package metrics exposes Prometheus counters for decoding and serving.
package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bufr_decoder/internal/bufr"
)

var (
	registerOnce sync.Once

	messagesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bufr",
			Subsystem: "decoder",
			Name:      "messages_total",
			Help:      "Decoded BUFR messages.",
		},
		[]string{"origin", "edition", "category"},
	)
	subsetsDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bufr",
			Subsystem: "decoder",
			Name:      "subsets_total",
			Help:      "Decoded BUFR subsets.",
		},
		[]string{"origin"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bufr",
			Subsystem: "decoder",
			Name:      "errors_total",
			Help:      "BUFR messages that failed to decode, by error kind.",
		},
		[]string{"origin", "kind"},
	)
	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bufr",
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Decoded messages that could not be stored.",
		},
		[]string{"origin"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bufr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bufr",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Register adds the collectors to the default registry. It is safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messagesDecoded, subsetsDecoded, decodeErrors, storeErrors, httpRequests, httpDuration)
	})
}

// RecordDecode counts the outcome of one DecodeAll call. origin names the
// entry point, such as "http" or "nats".
func RecordDecode(origin string, msgs []*bufr.Message, errs []error) {
	Register()
	for _, m := range msgs {
		messagesDecoded.WithLabelValues(origin, strconv.Itoa(m.Section0.Edition), strconv.Itoa(m.Section1.DataCategory)).Inc()
		subsetsDecoded.WithLabelValues(origin).Add(float64(len(m.Subsets())))
	}
	for _, err := range errs {
		decodeErrors.WithLabelValues(origin, ErrorKind(err)).Inc()
	}
}

// RecordStoreError counts a message the storage backend rejected.
func RecordStoreError(origin string) {
	Register()
	storeErrors.WithLabelValues(origin).Inc()
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// ErrorKind maps a decode error to a short label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, bufr.ErrIncompleteData):
		return "incomplete"
	case errors.Is(err, bufr.ErrUnknownDescriptor):
		return "unknown_descriptor"
	case errors.Is(err, bufr.ErrUnsupportedOperator):
		return "unsupported_operator"
	case errors.Is(err, bufr.ErrOperatorConflict):
		return "operator_conflict"
	case errors.Is(err, bufr.ErrTemplateMismatch), errors.Is(err, bufr.ErrTemplateLengthMismatch):
		return "template"
	case errors.Is(err, bufr.ErrUnexpectedDelayedDescriptor):
		return "delayed_descriptor"
	case errors.Is(err, bufr.ErrFormat):
		return "format"
	}
	return "other"
}
