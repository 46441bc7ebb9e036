package session

import (
	"sync"
	"time"

	"degen-dashboard-go/internal/models"
	"degen-dashboard-go/internal/settings"

	"go.uber.org/zap"
)

// Manager owns the login session: the in-memory copy used to gate polling
// and control, and the persisted copy that survives restarts. Token and
// identity live in a single record, so they are stored and cleared together,
// never one without the other.
type Manager struct {
	mu      sync.RWMutex
	store   settings.Store
	current *models.Session
	logger  *zap.Logger
}

// NewManager creates a session manager backed by the given settings store.
func NewManager(store settings.Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// Resume loads a previously persisted session into memory at startup.
// It returns (nil, nil) when no session was stored.
func (m *Manager) Resume() (*models.Session, error) {
	stored, err := m.store.LoadSession()
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	m.mu.Lock()
	m.current = stored
	m.mu.Unlock()

	m.logger.Info("resumed persisted session",
		zap.Int64("user_id", stored.User.ID),
		zap.String("username", stored.User.Username))

	copied := *stored
	return &copied, nil
}

// Login stores the token and identity from a completed authentication
// handshake. The session becomes current only after it has been persisted,
// so a storage failure leaves the dashboard logged out rather than holding
// a session that would vanish on restart.
func (m *Manager) Login(token string, user models.User) (*models.Session, error) {
	session := &models.Session{
		Token:     token,
		User:      user,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.SaveSession(session); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = session
	m.mu.Unlock()

	m.logger.Info("logged in",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username))

	copied := *session
	return &copied, nil
}

// Logout drops the in-memory session immediately, then clears the persisted
// copy. The in-memory drop comes first so polling preconditions fail right
// away even if the storage delete errors.
func (m *Manager) Logout() error {
	m.mu.Lock()
	hadSession := m.current != nil
	m.current = nil
	m.mu.Unlock()

	if hadSession {
		m.logger.Info("logged out")
	}

	return m.store.ClearSession()
}

// Current returns a copy of the active session, or nil when logged out.
func (m *Manager) Current() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil
	}
	copied := *m.current
	return &copied
}
