package dashboard

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"degen-dashboard-go/internal/backend"
	"degen-dashboard-go/internal/control"
	"degen-dashboard-go/internal/endpoint"
	"degen-dashboard-go/internal/models"
	"degen-dashboard-go/internal/monitor"
	"degen-dashboard-go/internal/session"
	"degen-dashboard-go/internal/settings"
	"degen-dashboard-go/internal/viewstate"

	"go.uber.org/zap"
)

// App wires the dashboard together: one resolver, one backend client, one
// session, and a single polling loop that owns connection health and view
// state. The loop starts on login (or session resume) and stops on logout;
// nothing polls while logged out.
type App struct {
	cfg        *models.Config
	logger     *zap.Logger
	store      settings.Store
	sessions   *session.Manager
	resolver   *endpoint.Resolver
	client     *backend.Client
	monitor    *monitor.Monitor
	state      *viewstate.Manager
	syncer     *viewstate.Syncer
	controller *control.Controller
	hub        *Hub

	mu         sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	kick       chan struct{}
}

// Overview is the composed snapshot served over HTTP and pushed over the
// websocket: session, link health, run state and the resource view.
type Overview struct {
	LoggedIn bool            `json:"logged_in"`
	User     *models.User    `json:"user,omitempty"`
	Endpoint string          `json:"endpoint"`
	Link     LinkInfo        `json:"link"`
	Bot      BotInfo         `json:"bot"`
	View     *viewstate.View `json:"view"`
}

// LinkInfo mirrors the monitor's health for rendering.
type LinkInfo struct {
	State               models.LinkState `json:"state"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastSuccess         time.Time        `json:"last_success,omitempty"`
}

// BotInfo carries the last reported run state. Known is false until the
// first successful probe of a session.
type BotInfo struct {
	Known     bool `json:"known"`
	IsRunning bool `json:"is_running"`
}

// NewApp builds the full dashboard from config and an open settings store.
func NewApp(cfg *models.Config, store settings.Store, logger *zap.Logger) *App {
	resolver := endpoint.NewResolver(store, cfg.FallbackBackendURL, logger)
	baseURL := resolver.Resolve()
	logger.Info("resolved backend endpoint", zap.String("endpoint", baseURL))

	fetchTimeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	client := backend.NewClient(baseURL, fetchTimeout, logger)
	sessions := session.NewManager(store, logger)
	mon := monitor.NewMonitor(client, cfg.FailureThreshold,
		time.Duration(cfg.ProbeTimeoutSec)*time.Second, logger)

	watch := models.Watch{Symbol: cfg.DefaultSymbol, Timeframe: cfg.DefaultTimeframe}
	if stored, err := store.LoadWatch(); err != nil {
		logger.Warn("failed to load persisted watch", zap.Error(err))
	} else if stored != nil {
		watch = *stored
	}

	state := viewstate.NewManager(watch, logger)
	syncer := viewstate.NewSyncer(client, state, fetchTimeout, logger)

	app := &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		sessions: sessions,
		resolver: resolver,
		client:   client,
		monitor:  mon,
		state:    state,
		syncer:   syncer,
		kick:     make(chan struct{}, 1),
	}
	app.controller = control.NewController(client, sessions, mon,
		time.Duration(cfg.ControlSettleMs)*time.Millisecond, app.RefreshNow, logger)
	app.hub = NewHub(cfg, logger)

	return app
}

// Start resumes a persisted session, if any, and begins polling for it.
func (a *App) Start() error {
	resumed, err := a.sessions.Resume()
	if err != nil {
		return err
	}
	if resumed != nil {
		a.client.SetToken(resumed.Token)
		a.startPolling()
	}
	return nil
}

// Close stops polling and disconnects websocket clients.
func (a *App) Close() {
	a.stopPolling()
	a.hub.CloseAll()
}

// Overview assembles the current snapshot for rendering.
func (a *App) Overview() *Overview {
	overview := &Overview{
		Endpoint: a.client.BaseURL(),
		View:     a.state.Snapshot(),
	}

	if current := a.sessions.Current(); current != nil {
		overview.LoggedIn = true
		user := current.User
		overview.User = &user
	}

	health := a.monitor.Health()
	overview.Link = LinkInfo{
		State:               health.State,
		ConsecutiveFailures: health.ConsecutiveFailures,
		LastSuccess:         health.LastSuccess,
	}

	if status := a.monitor.LastStatus(); status != nil {
		overview.Bot = BotInfo{Known: true, IsRunning: status.IsRunning}
	}

	return overview
}

// RefreshNow asks the polling loop for an immediate out-of-band pass.
// Safe to call from any goroutine; a pending request is never stacked.
func (a *App) RefreshNow() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Toggle forwards the start/stop intent to the controller.
func (a *App) Toggle(ctx context.Context) (control.Action, error) {
	return a.controller.Toggle(ctx)
}

// SetWatch switches the chart selection, persists it as a user preference
// and triggers an immediate refresh so the new series appears without
// waiting out the poll interval.
func (a *App) SetWatch(watch models.Watch) error {
	a.state.SetWatch(watch)
	if err := a.store.SaveWatch(watch); err != nil {
		return err
	}
	a.RefreshNow()
	return nil
}

// PinEndpoint persists an explicit backend address and points the client
// at it. Health is reset because the old link's failures say nothing
// about the new target.
func (a *App) PinEndpoint(rawURL string) error {
	if err := a.resolver.Override(rawURL); err != nil {
		return err
	}
	a.applyResolvedEndpoint()
	return nil
}

// UnpinEndpoint removes the override and falls back down the resolution
// chain.
func (a *App) UnpinEndpoint() error {
	if err := a.resolver.ClearOverride(); err != nil {
		return err
	}
	a.applyResolvedEndpoint()
	return nil
}

func (a *App) applyResolvedEndpoint() {
	resolved := a.resolver.Resolve()
	a.client.SetBaseURL(resolved)
	a.monitor.Reset()
	a.logger.Info("backend endpoint changed", zap.String("endpoint", resolved))
	a.RefreshNow()
}

// CompleteLogin exchanges an OAuth code, persists the session and starts
// polling for the new user.
func (a *App) CompleteLogin(ctx context.Context, provider, code string) (*models.Session, error) {
	resp, err := a.client.AuthCallback(ctx, provider, code)
	if err != nil {
		return nil, err
	}

	logged, err := a.sessions.Login(resp.Token, resp.User)
	if err != nil {
		return nil, err
	}

	a.client.SetToken(resp.Token)
	a.monitor.Reset()
	a.state.Clear()
	a.startPolling()
	a.broadcast()

	return logged, nil
}

// Logout stops polling first so no tick runs against a dead session, then
// clears the session, token, health and view.
func (a *App) Logout() error {
	a.stopPolling()

	err := a.sessions.Logout()
	a.client.ClearToken()
	a.monitor.Reset()
	a.state.Clear()
	a.broadcast()
	return err
}

// SubmitKeys forwards exchange credentials for the active user.
func (a *App) SubmitKeys(ctx context.Context, submission models.KeysSubmission) error {
	current := a.sessions.Current()
	if current == nil {
		return control.ErrNotReady
	}
	return a.client.SubmitKeys(ctx, current.User.ID, submission)
}

// AuthURL fetches the provider's OAuth bootstrap URL.
func (a *App) AuthURL(ctx context.Context, provider string) (string, error) {
	return a.client.AuthURL(ctx, provider)
}

// startPolling launches the poll loop if it is not already running.
func (a *App) startPolling() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pollCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.pollCancel = cancel
	a.pollDone = done

	go a.pollLoop(ctx, done)
	a.logger.Info("polling started",
		zap.Int("interval_sec", a.cfg.PollIntervalSec))
}

// stopPolling cancels the loop and waits for the current tick to finish.
func (a *App) stopPolling() {
	a.mu.Lock()
	cancel := a.pollCancel
	done := a.pollDone
	a.pollCancel = nil
	a.pollDone = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	a.logger.Info("polling stopped")
}

// pollLoop runs one tick immediately, then on every interval and on every
// out-of-band kick, until cancelled. Sync passes dispatched by ticks are
// drained before done closes, so no fetch result can land after a stop.
func (a *App) pollLoop(ctx context.Context, done chan struct{}) {
	var syncs sync.WaitGroup
	defer func() {
		syncs.Wait()
		close(done)
	}()

	ticker := time.NewTicker(time.Duration(a.cfg.PollIntervalSec) * time.Second)
	defer ticker.Stop()

	a.tick(ctx, &syncs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx, &syncs)
		case <-a.kick:
			a.tick(ctx, &syncs)
		}
	}
}

// tick runs one poll pass: probe first, and only fan out the data fetches
// once the probe reports the link up. The fan-out runs detached so a slow
// backend can delay its own results but never the next probe; overlapping
// passes settle per resource, last writer wins. A fault in one tick is
// contained so the next tick still runs.
func (a *App) tick(ctx context.Context, syncs *sync.WaitGroup) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("tick panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	current := a.sessions.Current()
	if current == nil {
		return
	}

	health := a.monitor.Probe(ctx, current.User.ID)
	if health.State == models.LinkUp {
		syncs.Add(1)
		go func() {
			defer syncs.Done()
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("sync pass panicked",
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
				}
			}()

			a.syncer.Sync(ctx, current.User.ID)
			a.broadcast()
		}()
	}

	a.broadcast()
}

// broadcast pushes the latest overview to all websocket clients.
func (a *App) broadcast() {
	a.hub.Broadcast(a.Overview())
}
