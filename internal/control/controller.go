package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"degen-dashboard-go/internal/models"
	"degen-dashboard-go/internal/monitor"

	"go.uber.org/zap"
)

var (
	// ErrNotReady means the preconditions for a control command are not
	// met: no session, or the backend link is not up. No network call is
	// made in this case.
	ErrNotReady = errors.New("bot control not ready: no session or backend link not up")

	// ErrBusy means another toggle is still in flight. The caller should
	// simply try again once it settles.
	ErrBusy = errors.New("a bot control command is already in flight")

	// ErrControlFailed wraps a start/stop command the backend rejected or
	// that errored in transit. The local run state is left untouched.
	ErrControlFailed = errors.New("bot control command failed")
)

// Action names the command a toggle resolved to.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Commander is the slice of the backend the controller needs.
type Commander interface {
	StartBot(ctx context.Context, userID int64) error
	StopBot(ctx context.Context, userID int64) error
}

// SessionSource yields the active session, if any.
type SessionSource interface {
	Current() *models.Session
}

// RunStateSource yields connection health and the last reported run state.
type RunStateSource interface {
	Health() monitor.Health
	LastStatus() *models.BotStatus
}

// Controller turns a single "toggle" intent into the right start or stop
// command. Commands are serialized: while one is in flight every other
// toggle is rejected with ErrBusy, so a start/stop race can never leave
// local and remote state disagreeing about who did what.
type Controller struct {
	commander   Commander
	sessions    SessionSource
	runState    RunStateSource
	settleDelay time.Duration
	refresh     func()
	logger      *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewController creates a controller. refresh is invoked settleDelay after
// a successful command, giving the backend time to apply the change before
// the dashboard re-reads it.
func NewController(commander Commander, sessions SessionSource, runState RunStateSource, settleDelay time.Duration, refresh func(), logger *zap.Logger) *Controller {
	return &Controller{
		commander:   commander,
		sessions:    sessions,
		runState:    runState,
		settleDelay: settleDelay,
		refresh:     refresh,
		logger:      logger,
	}
}

// Toggle sends a stop command when the bot is reported running, a start
// command otherwise. The choice follows the last run state reported by the
// backend, never a local guess.
func (c *Controller) Toggle(ctx context.Context) (Action, error) {
	if !c.acquire() {
		return "", ErrBusy
	}
	defer c.release()

	session := c.sessions.Current()
	if session == nil {
		return "", ErrNotReady
	}

	health := c.runState.Health()
	if health.State != models.LinkUp {
		return "", ErrNotReady
	}

	status := c.runState.LastStatus()
	if status == nil {
		return "", ErrNotReady
	}

	action := ActionStart
	command := c.commander.StartBot
	if status.IsRunning {
		action = ActionStop
		command = c.commander.StopBot
	}

	c.logger.Info("sending bot control command",
		zap.String("action", string(action)),
		zap.Int64("user_id", session.User.ID))

	if err := command(ctx, session.User.ID); err != nil {
		c.logger.Warn("bot control command failed",
			zap.String("action", string(action)),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrControlFailed, err)
	}

	if c.refresh != nil {
		// Let the backend settle before re-reading the run state instead
		// of assuming the command already took effect.
		time.AfterFunc(c.settleDelay, c.refresh)
	}

	return action, nil
}

// acquire claims the single in-flight slot.
func (c *Controller) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
}
