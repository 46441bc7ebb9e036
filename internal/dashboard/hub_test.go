package dashboard

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketReceivesBroadcasts(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool {
		return app.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	app.broadcast()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Overview
	require.NoError(t, json.Unmarshal(data, &got))
	assert.False(t, got.LoggedIn)
	assert.Equal(t, stub.srv.URL, got.Endpoint)
}

func TestWebSocketClientsSeeLoginState(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool {
		return app.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	login(t, app)

	// Ticks keep broadcasting; read until a logged-in frame arrives.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var got Overview
		require.NoError(t, json.Unmarshal(data, &got))
		if got.LoggedIn {
			require.NotNil(t, got.User)
			assert.Equal(t, int64(7), got.User.ID)
			return
		}
	}
}

func TestCloseAllDisconnectsClients(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool {
		return app.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	app.hub.CloseAll()
	assert.Zero(t, app.hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
