/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := testConfig()
	cfg.port = 8080

	rm := newRoomManager(cfg, newMemoryStore())
	t.Cleanup(rm.Close)

	srv := httptest.NewServer(newRouter(cfg, rm))
	t.Cleanup(srv.Close)

	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, creds Credentials, body string) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds.PlayerID != "" {
		req.Header.Set(playerIDHeader, creds.PlayerID)
		req.Header.Set(playerSecretHeader, creds.Secret)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func createRoom(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	status, data := call(t, srv, http.MethodPost, "/api/rooms", Credentials{}, `{"stake":10,"maxPlayers":4}`)
	require.Equal(t, http.StatusCreated, status, string(data))

	return decode[createRoomResponse](t, data).RoomToken
}

func joinRoom(t *testing.T, srv *httptest.Server, token, nickname string) Credentials {
	t.Helper()

	status, data := call(t, srv, http.MethodPost, "/api/rooms/"+token+"/join", Credentials{}, `{"nickname":"`+nickname+`"}`)
	require.Equal(t, http.StatusOK, status, string(data))

	resp := decode[joinResponse](t, data)
	return Credentials{PlayerID: resp.PlayerID, Secret: resp.PlayerSecret}
}

func getState(t *testing.T, srv *httptest.Server, token string) PublicState {
	t.Helper()

	status, data := call(t, srv, http.MethodGet, "/api/rooms/"+token, Credentials{}, "")
	require.Equal(t, http.StatusOK, status, string(data))

	return decode[PublicState](t, data)
}

func TestAPIGameFlow(t *testing.T) {
	srv := newTestServer(t)
	token := createRoom(t, srv)
	assert.Regexp(t, tokenPattern, token)

	alice := joinRoom(t, srv, token, "Alice")
	bob := joinRoom(t, srv, strings.ToLower(token), "Bob")

	for _, c := range []Credentials{alice, bob} {
		status, data := call(t, srv, http.MethodPost, "/api/rooms/"+token+"/ready", c, "")
		require.Equal(t, http.StatusOK, status, string(data))
		assert.True(t, decode[readyResponse](t, data).Ready)
	}

	status, data := call(t, srv, http.MethodPost, "/api/rooms/"+token+"/start", alice, "")
	require.Equal(t, http.StatusOK, status, string(data))
	assert.True(t, decode[successResponse](t, data).Success)

	s := getState(t, srv, token)
	assert.Equal(t, StatusPlaying, s.Status)
	assert.Equal(t, 20, s.Pot)

	status, data = call(t, srv, http.MethodPost, "/api/rooms/"+token+"/action", alice, `{"type":"CAPTAIN_ROLL"}`)
	require.Equal(t, http.StatusOK, status, string(data))

	// Nobody is connected over WebSocket, so the roll resolves at once.
	s = getState(t, srv, token)
	assert.Equal(t, 2, s.Step)
	assert.Equal(t, 1, s.CaptainIndex)
	assert.Equal(t, PhaseCaptainTurn, s.Phase)
	assert.Equal(t, 90, s.Players[1].Points)
	assert.Contains(t, []int{80, 95}, s.Players[0].Points)

	status, data = call(t, srv, http.MethodGet, "/api/rooms/"+token+"/history", Credentials{}, "")
	require.Equal(t, http.StatusOK, status)
	events := decode[[]Event](t, data)
	require.NotEmpty(t, events)
	assert.Equal(t, EventRoomCreated, events[0].Type)
	assert.Equal(t, EventRoundResolved, events[len(events)-1].Type)
}

func TestAPIErrors(t *testing.T) {
	srv := newTestServer(t)
	token := createRoom(t, srv)
	alice := joinRoom(t, srv, token, "Alice")
	bob := joinRoom(t, srv, token, "Bob")

	tests := []struct {
		name   string
		method string
		path   string
		creds  Credentials
		body   string
		status int
		kind   string
	}{
		{"bad stake", http.MethodPost, "/api/rooms", Credentials{}, `{"stake":3,"maxPlayers":4}`, http.StatusBadRequest, "VALIDATION"},
		{"unknown field", http.MethodPost, "/api/rooms", Credentials{}, `{"stake":10,"maxPlayers":4,"x":1}`, http.StatusBadRequest, "VALIDATION"},
		{"trailing data", http.MethodPost, "/api/rooms", Credentials{}, `{"stake":10,"maxPlayers":4}{}`, http.StatusBadRequest, "VALIDATION"},
		{"malformed token", http.MethodGet, "/api/rooms/nope", Credentials{}, "", http.StatusNotFound, "NOT_FOUND"},
		{"unknown room", http.MethodGet, "/api/rooms/00000000", Credentials{}, "", http.StatusNotFound, "NOT_FOUND"},
		{"duplicate nickname", http.MethodPost, "/api/rooms/" + token + "/join", Credentials{}, `{"nickname":"ALICE"}`, http.StatusConflict, "CONFLICT"},
		{"missing credentials", http.MethodPost, "/api/rooms/" + token + "/ready", Credentials{}, "", http.StatusForbidden, "AUTH"},
		{"start by guest", http.MethodPost, "/api/rooms/" + token + "/start", bob, "", http.StatusForbidden, "AUTH"},
		{"start before ready", http.MethodPost, "/api/rooms/" + token + "/start", alice, "", http.StatusConflict, "STATE"},
		{"action in lobby", http.MethodPost, "/api/rooms/" + token + "/action", alice, `{"type":"STAY"}`, http.StatusConflict, "STATE"},
		{"unknown action", http.MethodPost, "/api/rooms/" + token + "/action", alice, `{"type":"DANCE"}`, http.StatusBadRequest, "VALIDATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := call(t, srv, tt.method, tt.path, tt.creds, tt.body)
			assert.Equal(t, tt.status, status, string(data))

			resp := decode[errorResponse](t, data)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func wsURL(srv *httptest.Server, token string, creds Credentials) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rooms/" + token + "/ws"
	if !creds.empty() {
		u += "?playerId=" + creds.PlayerID + "&playerSecret=" + creds.Secret
	}
	return u
}

func readMessage(t *testing.T, conn *websocket.Conn) clientMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var m clientMessage
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestAPIWebSocket(t *testing.T) {
	srv := newTestServer(t)
	token := createRoom(t, srv)
	alice := joinRoom(t, srv, token, "Alice")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token, alice), nil)
	require.NoError(t, err)

	m := readMessage(t, conn)
	assert.Equal(t, "STATE_UPDATE", m.Type)
	require.Len(t, m.State.Players, 1)
	assert.True(t, m.State.Players[0].Connected)

	joinRoom(t, srv, token, "Bob")

	m = readMessage(t, conn)
	assert.Equal(t, "STATE_UPDATE", m.Type)
	assert.Len(t, m.State.Players, 2)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return !getState(t, srv, token).Players[0].Connected
	}, 5*time.Second, 20*time.Millisecond)
}

func TestAPIWebSocketBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	token := createRoom(t, srv)
	alice := joinRoom(t, srv, token, "Alice")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token, Credentials{PlayerID: alice.PlayerID, Secret: "wrong"}), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "STATE_UPDATE", readMessage(t, conn).Type)

	m := readMessage(t, conn)
	assert.Equal(t, "ERROR", m.Type)
	assert.NotEmpty(t, m.Message)

	assert.False(t, getState(t, srv, token).Players[0].Connected)
}

func TestAPIWebSocketUnknownRoom(t *testing.T) {
	srv := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "00000000", Credentials{}), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIQRCode(t *testing.T) {
	srv := newTestServer(t)
	token := createRoom(t, srv)

	resp, err := srv.Client().Get(srv.URL + "/api/rooms/" + token + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	status, _ := call(t, srv, http.MethodGet, "/api/rooms/00000000/qr", Credentials{}, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIServiceEndpoints(t *testing.T) {
	srv := newTestServer(t)

	status, data := call(t, srv, http.MethodGet, "/healthz", Credentials{}, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ok\n", string(data))

	status, data = call(t, srv, http.MethodGet, "/version", Credentials{}, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pushluck v"+releaseVersion+"\n", string(data))

	status, data = call(t, srv, http.MethodGet, "/robots.txt", Credentials{}, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), "Disallow: /api/")
}
