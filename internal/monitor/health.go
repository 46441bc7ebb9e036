package monitor

import (
	"time"

	"degen-dashboard-go/internal/models"
)

// Health is the derived connection state: the tri-state link plus the
// consecutive-failure counter and the time of the last successful probe.
type Health struct {
	State               models.LinkState
	ConsecutiveFailures int
	LastSuccess         time.Time
}

// NewHealth returns the initial health before any probe has completed.
func NewHealth() Health {
	return Health{State: models.LinkUnknown}
}

// Next returns the health that follows a single probe outcome.
//
// The transition is asymmetric on purpose: declaring the link down takes
// threshold consecutive failures, declaring it back up takes one success.
// A single missed probe on an otherwise healthy link changes nothing, so
// the dashboard does not flap. During an outage the counter keeps growing
// past the threshold, which gives logs a sense of outage length.
func Next(h Health, success bool, threshold int, now time.Time) Health {
	if success {
		return Health{
			State:               models.LinkUp,
			ConsecutiveFailures: 0,
			LastSuccess:         now,
		}
	}

	next := h
	next.ConsecutiveFailures++
	if next.State != models.LinkDown && next.ConsecutiveFailures >= threshold {
		next.State = models.LinkDown
	}
	return next
}
