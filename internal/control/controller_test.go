package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"degen-dashboard-go/internal/backend"
	"degen-dashboard-go/internal/models"
	"degen-dashboard-go/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSessions struct {
	session *models.Session
}

func (f *fakeSessions) Current() *models.Session {
	return f.session
}

type fakeRunState struct {
	health monitor.Health
	status *models.BotStatus
}

func (f *fakeRunState) Health() monitor.Health {
	return f.health
}

func (f *fakeRunState) LastStatus() *models.BotStatus {
	return f.status
}

// fakeCommander counts start/stop calls. A non-nil gate makes commands
// block until it is closed.
type fakeCommander struct {
	sync.Mutex
	startCalls int
	stopCalls  int
	err        error
	gate       chan struct{}
	started    chan struct{}
}

func (f *fakeCommander) StartBot(ctx context.Context, userID int64) error {
	return f.command(&f.startCalls)
}

func (f *fakeCommander) StopBot(ctx context.Context, userID int64) error {
	return f.command(&f.stopCalls)
}

func (f *fakeCommander) command(counter *int) error {
	f.Lock()
	*counter++
	gate := f.gate
	started := f.started
	err := f.err
	f.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeCommander) calls() (int, int) {
	f.Lock()
	defer f.Unlock()
	return f.startCalls, f.stopCalls
}

func readySession() *fakeSessions {
	return &fakeSessions{session: &models.Session{
		Token: "tok",
		User:  models.User{ID: 42, Username: "degen"},
	}}
}

func upRunState(isRunning bool) *fakeRunState {
	return &fakeRunState{
		health: monitor.Health{State: models.LinkUp},
		status: &models.BotStatus{IsRunning: isRunning},
	}
}

// TestToggleWithoutSessionIsNotReady verifies the precondition gate fires
// before any command is attempted.
func TestToggleWithoutSessionIsNotReady(t *testing.T) {
	commander := &fakeCommander{}
	c := NewController(commander, &fakeSessions{}, upRunState(false), time.Millisecond, nil, zap.NewNop())

	_, err := c.Toggle(context.Background())
	require.ErrorIs(t, err, ErrNotReady)

	starts, stops := commander.calls()
	assert.Zero(t, starts)
	assert.Zero(t, stops)
}

// TestToggleWithLinkDownIsNotReady verifies a dead link blocks control the
// same way a missing session does.
func TestToggleWithLinkDownIsNotReady(t *testing.T) {
	for _, state := range []models.LinkState{models.LinkUnknown, models.LinkDown} {
		t.Run(string(state), func(t *testing.T) {
			commander := &fakeCommander{}
			runState := &fakeRunState{
				health: monitor.Health{State: state, ConsecutiveFailures: 3},
				status: &models.BotStatus{IsRunning: false},
			}
			c := NewController(commander, readySession(), runState, time.Millisecond, nil, zap.NewNop())

			_, err := c.Toggle(context.Background())
			require.ErrorIs(t, err, ErrNotReady)

			starts, stops := commander.calls()
			assert.Zero(t, starts)
			assert.Zero(t, stops)
		})
	}
}

// TestToggleNotReadyIssuesNoHTTP verifies the NotReady path through the
// real HTTP client: zero requests reach the backend.
func TestToggleNotReadyIssuesNoHTTP(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, time.Second, zap.NewNop())
	c := NewController(client, &fakeSessions{}, upRunState(false), time.Millisecond, nil, zap.NewNop())

	_, err := c.Toggle(context.Background())
	require.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, hits.Load(), "NotReady must not touch the network")
}

// TestToggleStartsAStoppedBot verifies the command choice follows the
// reported run state.
func TestToggleStartsAStoppedBot(t *testing.T) {
	commander := &fakeCommander{}
	c := NewController(commander, readySession(), upRunState(false), time.Millisecond, nil, zap.NewNop())

	action, err := c.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionStart, action)

	starts, stops := commander.calls()
	assert.Equal(t, 1, starts)
	assert.Zero(t, stops)
}

// TestToggleStopsARunningBot verifies the inverse choice.
func TestToggleStopsARunningBot(t *testing.T) {
	commander := &fakeCommander{}
	c := NewController(commander, readySession(), upRunState(true), time.Millisecond, nil, zap.NewNop())

	action, err := c.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionStop, action)

	starts, stops := commander.calls()
	assert.Zero(t, starts)
	assert.Equal(t, 1, stops)
}

// TestSecondToggleWhileInFlightIsRejected verifies serialization: the
// overlapping call gets ErrBusy and sends nothing.
func TestSecondToggleWhileInFlightIsRejected(t *testing.T) {
	commander := &fakeCommander{
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c := NewController(commander, readySession(), upRunState(false), time.Millisecond, nil, zap.NewNop())

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Toggle(context.Background())
		firstDone <- err
	}()

	select {
	case <-commander.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first command to start")
	}

	_, err := c.Toggle(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	close(commander.gate)
	select {
	case err := <-firstDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first toggle to settle")
	}

	starts, _ := commander.calls()
	assert.Equal(t, 1, starts, "the rejected toggle must not send a second command")
}

// TestToggleUsableAgainAfterSettling verifies the in-flight slot is
// released once a command completes.
func TestToggleUsableAgainAfterSettling(t *testing.T) {
	commander := &fakeCommander{}
	c := NewController(commander, readySession(), upRunState(false), time.Millisecond, nil, zap.NewNop())

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)

	_, err = c.Toggle(context.Background())
	require.NoError(t, err, "a settled controller accepts the next toggle")
}

// TestToggleControlFailed verifies a backend rejection surfaces as
// ErrControlFailed and skips the settle refresh.
func TestToggleControlFailed(t *testing.T) {
	refreshed := make(chan struct{}, 1)
	commander := &fakeCommander{err: errors.New("backend said no")}
	c := NewController(commander, readySession(), upRunState(false), time.Millisecond,
		func() { refreshed <- struct{}{} }, zap.NewNop())

	_, err := c.Toggle(context.Background())
	require.ErrorIs(t, err, ErrControlFailed)
	assert.Contains(t, err.Error(), "backend said no")

	select {
	case <-refreshed:
		t.Fatal("a failed command must not schedule a refresh")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestToggleSchedulesDelayedRefresh verifies the refresh fires after the
// settle delay, not synchronously with the command.
func TestToggleSchedulesDelayedRefresh(t *testing.T) {
	refreshed := make(chan struct{}, 1)
	commander := &fakeCommander{}
	c := NewController(commander, readySession(), upRunState(false), 150*time.Millisecond,
		func() { refreshed <- struct{}{} }, zap.NewNop())

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)

	select {
	case <-refreshed:
		t.Fatal("the refresh must wait out the settle delay")
	default:
	}

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the delayed refresh")
	}
}
