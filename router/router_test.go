package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"consultaprocessual/internal/caserecord/model"
	"consultaprocessual/socket"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupGuardsRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := socket.NewHub()
	go hub.Run(ctx)

	report := model.NewReport(time.Now(), "", false, false)
	hub.Publish(model.Event{Type: model.EventStarted, RunID: report.RunID, Report: report})
	require.Eventually(t, func() bool {
		_, ok := hub.Snapshot("")
		return ok
	}, time.Second, 5*time.Millisecond)

	server := httptest.NewServer(Setup(hub, "s3cret"))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "viewer"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/run/results?outcome=error", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The handshake goes through the logging wrapper and still upgrades.
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg socket.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, socket.SnapshotType, msg.Type)
	assert.Equal(t, report.RunID, msg.RunID)
}
