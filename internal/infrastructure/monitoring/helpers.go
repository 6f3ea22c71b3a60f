package monitoring

import "github.com/prometheus/client_golang/prometheus"

// Timer measures a duration and records it into a histogram observer.
// Use with defer:
//
//	defer monitoring.NewTimer(obs).ObserveDuration()
type Timer = prometheus.Timer

// NewTimer creates a timer observing into obs when stopped.
func NewTimer(obs prometheus.Observer) *Timer {
	return prometheus.NewTimer(obs)
}
