package hub_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridroom/internal/app/hub"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/presence"
	"gridroom/internal/app/protocol"
	"gridroom/internal/app/world/worldtest"
	"gridroom/internal/pkg/errs"
)

func serve(t *testing.T) (*hub.Hub, string) {
	t.Helper()

	l := loop.New()
	go l.Run()
	t.Cleanup(l.Stop)

	h := hub.New(testConfig(), worldtest.Topology(t), l, nil, nil)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.NewClient(h, conn, "10.0.0.1")
		go client.WritePump()
		client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.Envelope{Type: typ, Payload: raw}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()
	for {
		env := readEnvelope(t, conn)
		if env.Type == typ {
			return env
		}
	}
}

func TestClient_FirstFrameMustBeConnect(t *testing.T) {
	_, url := serve(t)
	conn := dial(t, url)

	sendEvent(t, conn, "ping", struct{}{})

	env := readEnvelope(t, conn)
	require.Equal(t, "login_denied", env.Type)

	var denied protocol.LoginDenied
	require.NoError(t, json.Unmarshal(env.Payload, &denied))
	assert.Equal(t, errs.ErrConnectRequired, denied.Code)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestClient_UnknownSessionIsDenied(t *testing.T) {
	_, url := serve(t)
	conn := dial(t, url)

	sendEvent(t, conn, "connect", protocol.Connect{PrivateID: "3b241101-e2bb-4255-8caf-4136c566a962"})

	env := readEnvelope(t, conn)
	require.Equal(t, "login_denied", env.Type)

	var denied protocol.LoginDenied
	require.NoError(t, json.Unmarshal(env.Payload, &denied))
	assert.Equal(t, errs.ErrInvalidSession, denied.Code)
}

func TestClient_ConnectPlayAndDisconnect(t *testing.T) {
	h, url := serve(t)

	s, err := h.Login(presence.LoginRequest{Name: "alice", Area: worldtest.Area, IP: "10.0.0.1"})
	require.NoError(t, err)

	conn := dial(t, url)
	sendEvent(t, conn, "connect", protocol.Connect{PrivateID: s.PrivateID})

	env := readUntil(t, conn, "room_state")
	var state protocol.RoomState
	require.NoError(t, json.Unmarshal(env.Payload, &state))
	assert.Equal(t, "bar", state.Room)
	assert.Equal(t, s.PublicID, state.Self.ID)
	assert.False(t, state.Self.Ghost)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env = readUntil(t, conn, "error")
	var failure protocol.Error
	require.NoError(t, json.Unmarshal(env.Payload, &failure))
	assert.Equal(t, errs.ErrInvalidJSONFormat, failure.Code)

	sendEvent(t, conn, "ping", struct{}{})
	readUntil(t, conn, "pong")

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		view, err := h.RoomView(worldtest.Area, "bar")
		return err == nil && len(view.Users) == 1 && view.Users[0].Ghost
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClient_SecondConnectionReplacesFirst(t *testing.T) {
	h, url := serve(t)

	s, err := h.Login(presence.LoginRequest{Name: "alice", Area: worldtest.Area, IP: "10.0.0.1"})
	require.NoError(t, err)

	first := dial(t, url)
	sendEvent(t, first, "connect", protocol.Connect{PrivateID: s.PrivateID})
	readUntil(t, first, "room_state")

	second := dial(t, url)
	sendEvent(t, second, "connect", protocol.Connect{PrivateID: s.PrivateID})
	readUntil(t, second, "room_state")

	for {
		_, _, err := first.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, 4001), "got %v", err)
			break
		}
	}

	view, err := h.RoomView(worldtest.Area, "bar")
	require.NoError(t, err)
	require.Len(t, view.Users, 1)
	assert.False(t, view.Users[0].Ghost)
}
