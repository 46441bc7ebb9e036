package monitor

import (
	"context"
	"sync"
	"time"

	"degen-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// StatusProber is the slice of the backend the monitor needs: the status
// endpoint, which serves as both liveness probe and run-state source.
type StatusProber interface {
	Status(ctx context.Context, userID int64) (*models.BotStatus, error)
}

// Monitor tracks backend reachability for the active session. Each Probe
// issues one bounded status request and folds the outcome into the health
// state machine. The synchronizer consults the resulting state before it
// fetches anything, so a dead link suppresses the whole data fan-out.
type Monitor struct {
	mu           sync.RWMutex
	prober       StatusProber
	threshold    int
	probeTimeout time.Duration
	health       Health
	lastStatus   *models.BotStatus
	logger       *zap.Logger
	nowFn        func() time.Time
}

// NewMonitor creates a monitor. threshold is the number of consecutive
// failures that flips the link to down; probeTimeout bounds each probe so
// failure detection stays fast.
func NewMonitor(prober StatusProber, threshold int, probeTimeout time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		prober:       prober,
		threshold:    threshold,
		probeTimeout: probeTimeout,
		health:       NewHealth(),
		logger:       logger,
		nowFn:        time.Now,
	}
}

// Probe issues one liveness probe for the given user and returns the health
// after folding in the outcome. A successful probe also refreshes the last
// reported bot run state.
func (m *Monitor) Probe(ctx context.Context, userID int64) Health {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	status, err := m.prober.Status(probeCtx, userID)

	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.health
	m.health = Next(before, err == nil, m.threshold, m.nowFn())
	if err == nil {
		m.lastStatus = status
	}

	m.logTransition(before, m.health, err)
	return m.health
}

// Health returns the current connection health.
func (m *Monitor) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// LastStatus returns the most recently reported run state, or nil before
// the first successful probe. The value survives probe failures so the
// dashboard can keep showing the last known state during an outage.
func (m *Monitor) LastStatus() *models.BotStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastStatus == nil {
		return nil
	}
	copied := *m.lastStatus
	return &copied
}

// Reset returns the monitor to its initial state. Called on logout and
// login so one session's outage history never bleeds into the next.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = NewHealth()
	m.lastStatus = nil
}

// logTransition reports state changes and ongoing outage progress.
// Caller must hold m.mu.
func (m *Monitor) logTransition(before, after Health, err error) {
	switch {
	case before.State != models.LinkDown && after.State == models.LinkDown:
		m.logger.Warn("backend link down",
			zap.Int("consecutive_failures", after.ConsecutiveFailures),
			zap.Error(err))
	case before.State == models.LinkDown && after.State == models.LinkUp:
		m.logger.Info("backend link recovered",
			zap.Int("failures_during_outage", before.ConsecutiveFailures))
	case before.State == models.LinkUnknown && after.State == models.LinkUp:
		m.logger.Info("backend link up")
	case err != nil:
		m.logger.Debug("probe failed",
			zap.Int("consecutive_failures", after.ConsecutiveFailures),
			zap.Error(err))
	}
}
