package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	pullSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubmirror",
			Subsystem: "registry",
			Name:      "pull_success_total",
			Help:      "Total number of successful image pulls performed by hubmirror.",
		},
		[]string{"image"},
	)

	pullErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubmirror",
			Subsystem: "registry",
			Name:      "pull_error_total",
			Help:      "Total number of failed image pulls performed by hubmirror.",
		},
		[]string{"image"},
	)

	pushSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubmirror",
			Subsystem: "registry",
			Name:      "push_success_total",
			Help:      "Total number of successful image pushes performed by hubmirror.",
		},
		[]string{"image"},
	)

	pushErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubmirror",
			Subsystem: "registry",
			Name:      "push_error_total",
			Help:      "Total number of failed image pushes performed by hubmirror.",
		},
		[]string{"image"},
	)
)

func init() {
	prometheus.MustRegister(pullSuccess, pullErrors, pushSuccess, pushErrors)
}

// RecordPullSuccess increments the pull success counter for the provided image.
func RecordPullSuccess(image string) {
	if image == "" {
		return
	}
	pullSuccess.WithLabelValues(image).Inc()
}

// RecordPullError increments the pull error counter for the provided image.
func RecordPullError(image string) {
	if image == "" {
		return
	}
	pullErrors.WithLabelValues(image).Inc()
}

// RecordPushSuccess increments the push success counter for the provided image.
func RecordPushSuccess(image string) {
	if image == "" {
		return
	}
	pushSuccess.WithLabelValues(image).Inc()
}

// RecordPushError increments the push error counter for the provided image.
func RecordPushError(image string) {
	if image == "" {
		return
	}
	pushErrors.WithLabelValues(image).Inc()
}

// Reset clears internal metrics state. It is intended for use in tests only.
func Reset() {
	pullSuccess.Reset()
	pullErrors.Reset()
	pushSuccess.Reset()
	pushErrors.Reset()
}

// PullSuccessCounter returns the underlying prometheus counter for pull successes.
func PullSuccessCounter() *prometheus.CounterVec { return pullSuccess }

// PullErrorCounter returns the underlying prometheus counter for pull errors.
func PullErrorCounter() *prometheus.CounterVec { return pullErrors }

// PushSuccessCounter returns the underlying prometheus counter for push successes.
func PushSuccessCounter() *prometheus.CounterVec { return pushSuccess }

// PushErrorCounter returns the underlying prometheus counter for push errors.
func PushErrorCounter() *prometheus.CounterVec { return pushErrors }
