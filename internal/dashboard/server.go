package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"degen-dashboard-go/internal/control"
	"degen-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// Handler returns the dashboard's HTTP surface: the JSON API consumed by
// the frontend, the OAuth callback, and the websocket upgrade.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /api/view", a.handleView)
	mux.HandleFunc("POST /api/bot/toggle", a.handleToggle)
	mux.HandleFunc("POST /api/watch", a.handleWatch)
	mux.HandleFunc("POST /api/endpoint", a.handlePinEndpoint)
	mux.HandleFunc("DELETE /api/endpoint", a.handleUnpinEndpoint)
	mux.HandleFunc("POST /api/keys", a.handleKeys)
	mux.HandleFunc("GET /api/auth/{provider}/url", a.handleAuthURL)
	mux.HandleFunc("GET /auth/{provider}/callback", a.handleAuthCallback)
	mux.HandleFunc("POST /api/logout", a.handleLogout)
	mux.HandleFunc("GET /ws", a.hub.HandleWebSocket)

	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"link":   a.monitor.Health().State,
	})
}

func (a *App) handleView(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.Overview())
}

func (a *App) handleToggle(w http.ResponseWriter, r *http.Request) {
	action, err := a.Toggle(r.Context())
	if err != nil {
		a.writeControlError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"action": string(action)})
}

func (a *App) handleWatch(w http.ResponseWriter, r *http.Request) {
	var watch models.Watch
	if err := json.NewDecoder(r.Body).Decode(&watch); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid watch payload")
		return
	}

	watch.Symbol = strings.ToUpper(strings.TrimSpace(watch.Symbol))
	watch.Timeframe = strings.TrimSpace(watch.Timeframe)
	if watch.Symbol == "" || watch.Timeframe == "" {
		a.writeError(w, http.StatusBadRequest, "symbol and timeframe are required")
		return
	}

	if err := a.SetWatch(watch); err != nil {
		a.logger.Error("failed to persist watch", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to save watch")
		return
	}
	a.writeJSON(w, http.StatusOK, watch)
}

func (a *App) handlePinEndpoint(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid endpoint payload")
		return
	}

	if err := a.PinEndpoint(payload.URL); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"endpoint": a.client.BaseURL()})
}

func (a *App) handleUnpinEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := a.UnpinEndpoint(); err != nil {
		a.logger.Error("failed to clear endpoint override", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to clear endpoint override")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"endpoint": a.client.BaseURL()})
}

func (a *App) handleKeys(w http.ResponseWriter, r *http.Request) {
	var submission models.KeysSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid keys payload")
		return
	}

	submission.Exchange = strings.ToLower(strings.TrimSpace(submission.Exchange))
	if submission.Exchange == "" || submission.APIKey == "" || submission.APISecret == "" {
		a.writeError(w, http.StatusBadRequest, "exchange, api_key and api_secret are required")
		return
	}

	if err := a.SubmitKeys(r.Context(), submission); err != nil {
		if errors.Is(err, control.ErrNotReady) {
			a.writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		a.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (a *App) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	authURL, err := a.AuthURL(r.Context(), provider)
	if err != nil {
		a.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

func (a *App) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	code := r.URL.Query().Get("code")
	if code == "" {
		a.writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	logged, err := a.CompleteLogin(r.Context(), provider, code)
	if err != nil {
		// The handshake failed; the dashboard stays logged out and the
		// provider's detail goes back to the caller.
		a.logger.Warn("authentication failed",
			zap.String("provider", provider),
			zap.Error(err))
		a.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": logged.User,
	})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Logout(); err != nil {
		a.logger.Error("logout cleanup failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeControlError maps the controller's error taxonomy onto status codes.
func (a *App) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrNotReady):
		a.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, control.ErrBusy):
		a.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, control.ErrControlFailed):
		a.writeError(w, http.StatusBadGateway, err.Error())
	default:
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (a *App) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (a *App) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
