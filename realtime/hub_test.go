package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/techagentng/dmchat/models"
	"go.uber.org/zap"
)

// testHandler authenticates {"id": n} without checking anything and
// echoes "echo" frames.
type testHandler struct {
	hub          *Hub
	disconnected chan *Client
}

func (h *testHandler) HandleEvent(c *Client, envelope models.Envelope) {
	switch envelope.Event {
	case models.EventAuthenticate:
		var p struct {
			ID uint `json:"id"`
		}
		_ = json.Unmarshal(envelope.Data, &p)
		if err := c.Authenticate(&models.User{Model: models.Model{ID: p.ID}}); err != nil {
			c.SendError(models.EventMessageError, err.Error())
			return
		}
		if _, err := h.hub.Register(c); err != nil {
			c.SendError(models.EventMessageError, err.Error())
			return
		}
		_ = c.SendEvent(models.EventAuthenticated, models.AuthenticatedPayload{UserID: p.ID})
	case "echo":
		_ = c.SendEvent("echo", envelope.Data)
	}
}

func (h *testHandler) Disconnected(c *Client) {
	h.hub.Unregister(c)
	h.disconnected <- c
}

func newTestHub(t *testing.T, opts Options) (*Hub, *testHandler, string) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	handler := &testHandler{hub: hub, disconnected: make(chan *Client, 16)}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(ws, r.RemoteAddr, opts, zap.NewNop())
		if err := hub.Attach(c); err != nil {
			_ = ws.Close()
			return
		}
		go c.Run(handler)
	}))
	t.Cleanup(srv.Close)
	return hub, handler, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func login(t *testing.T, url string, id uint) *websocket.Conn {
	t.Helper()
	conn := dial(t, url)
	emit(t, conn, models.EventAuthenticate, map[string]uint{"id": id})
	require.Equal(t, models.EventAuthenticated, next(t, conn).Event)
	return conn
}

func TestDeliverReachesEveryChannelOfEachUser(t *testing.T) {
	req := require.New(t)
	hub, _, url := newTestHub(t, Options{RateLimit: 100, Burst: 100})

	aliceTab1 := login(t, url, 1)
	aliceTab2 := login(t, url, 1)
	bob := login(t, url, 2)
	_ = login(t, url, 3)

	req.True(hub.IsOnline(1))
	req.False(hub.IsOnline(4))
	req.ElementsMatch([]uint{1, 2, 3}, hub.OnlineUsers())

	n := hub.Deliver([]uint{1, 2, 1, 4}, models.EventNewMessage, map[string]string{"message": "hi"})
	req.Equal(3, n)

	for _, conn := range []*websocket.Conn{aliceTab1, aliceTab2, bob} {
		f := next(t, conn)
		req.Equal(models.EventNewMessage, f.Event)
		req.JSONEq(`{"message":"hi"}`, string(f.Data))
	}
}

func TestBroadcastReachesAnonymousChannels(t *testing.T) {
	req := require.New(t)
	hub, _, url := newTestHub(t, Options{RateLimit: 100, Burst: 100})

	anonymous := dial(t, url)
	// round trip so the server has attached the channel
	emit(t, anonymous, "echo", "ping")
	req.Equal("echo", next(t, anonymous).Event)
	alice := login(t, url, 1)

	req.Equal(2, hub.Broadcast(models.EventUserOnline, models.PresencePayload{UserID: 1}))
	for _, conn := range []*websocket.Conn{anonymous, alice} {
		f := next(t, conn)
		req.Equal(models.EventUserOnline, f.Event)
		req.JSONEq(`{"userId":1,"nickname":""}`, string(f.Data))
	}
}

func TestCloseUserClosesEveryChannelOfUser(t *testing.T) {
	req := require.New(t)
	hub, handler, url := newTestHub(t, Options{RateLimit: 100, Burst: 100})

	tab1 := login(t, url, 1)
	tab2 := login(t, url, 1)
	bob := login(t, url, 2)

	req.Equal(2, hub.CloseUser(1, websocket.CloseNormalClosure, "logged out"))
	for _, conn := range []*websocket.Conn{tab1, tab2} {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, _, err := conn.ReadMessage()
		req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		c := <-handler.disconnected
		req.Equal(uint(1), c.UserID())
	}

	req.False(hub.IsOnline(1))
	req.True(hub.IsOnline(2))
	req.Zero(hub.CloseUser(1, websocket.CloseNormalClosure, "logged out"))

	emit(t, bob, "echo", "still here")
	req.Equal("echo", next(t, bob).Event)
}

func TestUnregisterReportsLastChannel(t *testing.T) {
	req := require.New(t)
	hub, handler, url := newTestHub(t, Options{RateLimit: 100, Burst: 100})

	tab1 := login(t, url, 1)
	tab2 := login(t, url, 1)

	req.NoError(tab1.Close())
	c := <-handler.disconnected
	req.Equal(uint(1), c.UserID())
	req.Equal(StateClosed, c.State())
	req.True(hub.IsOnline(1))
	req.False(hub.Unregister(c))

	req.NoError(tab2.Close())
	<-handler.disconnected
	req.False(hub.IsOnline(1))
}

func TestRegisterRequiresAuthentication(t *testing.T) {
	req := require.New(t)
	hub := NewHub(zap.NewNop())
	c := NewClient(nil, "test", Options{}, zap.NewNop())

	_, err := hub.Register(c)
	req.ErrorIs(err, ErrNotAuthenticated)

	req.NoError(c.Authenticate(&models.User{Model: models.Model{ID: 7}}))
	_, err = hub.Register(c)
	req.ErrorIs(err, ErrNotAttached)

	req.NoError(hub.Attach(c))
	first, err := hub.Register(c)
	req.NoError(err)
	req.True(first)
	req.True(hub.Unregister(c))
	req.False(hub.Unregister(c))
}

func TestClientAuthenticatesOnce(t *testing.T) {
	req := require.New(t)
	c := NewClient(nil, "test", Options{}, zap.NewNop())
	req.Equal(StateAnonymous, c.State())
	req.Zero(c.UserID())

	req.NoError(c.Authenticate(&models.User{Model: models.Model{ID: 1}}))
	req.Equal(StateAuthenticated, c.State())
	req.ErrorIs(c.Authenticate(&models.User{Model: models.Model{ID: 2}}), ErrAlreadyAuthenticated)
	req.Equal(uint(1), c.UserID())
}

func TestInvalidFrameAndRateLimit(t *testing.T) {
	req := require.New(t)
	_, _, url := newTestHub(t, Options{RateLimit: 0.001, Burst: 1})
	conn := dial(t, url)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := next(t, conn)
	req.Equal(models.EventMessageError, f.Event)

	emit(t, conn, "echo", "one")
	f = next(t, conn)
	req.Equal(models.EventMessageError, f.Event)
	req.Contains(string(f.Data), "rate limit")
}

func TestShutdownClosesChannels(t *testing.T) {
	req := require.New(t)
	hub, _, url := newTestHub(t, Options{RateLimit: 100, Burst: 100})
	alice := login(t, url, 1)
	anonymous := dial(t, url)

	// give the server a moment to attach the anonymous channel
	emit(t, anonymous, "echo", "x")
	next(t, anonymous)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(hub.Shutdown(ctx))

	for _, conn := range []*websocket.Conn{alice, anonymous} {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, _, err := conn.ReadMessage()
		req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	}
	req.ErrorIs(hub.Attach(NewClient(nil, "late", Options{}, zap.NewNop())), ErrHubClosed)
}
