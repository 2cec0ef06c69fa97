package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrHubClosed        = errors.New("hub is shutting down")
	ErrNotAuthenticated = errors.New("channel is not authenticated")
	ErrNotAttached      = errors.New("channel is not attached")
)

// Hub tracks live channels and the users they are bound to. A user may
// hold any number of channels at once.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[uint]map[*Client]struct{}
	closed  bool
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		users:   make(map[uint]map[*Client]struct{}),
		logger:  logger,
	}
}

// Attach starts tracking a freshly upgraded, still anonymous channel.
func (h *Hub) Attach(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.clients[c]; ok {
		return nil
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return nil
}

// Register binds an authenticated channel to its user. It reports whether
// this is the user's first live channel.
func (h *Hub) Register(c *Client) (bool, error) {
	userID := c.UserID()
	if userID == 0 {
		return false, ErrNotAuthenticated
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, ErrHubClosed
	}
	if _, ok := h.clients[c]; !ok {
		return false, ErrNotAttached
	}

	channels := h.users[userID]
	if channels == nil {
		channels = make(map[*Client]struct{})
		h.users[userID] = channels
	}
	channels[c] = struct{}{}
	h.logger.Debug("channel registered", zap.Uint("user_id", userID), zap.Int("channels", len(channels)))
	return len(channels) == 1, nil
}

// Unregister forgets a channel. It reports true only when the channel was
// the last one of an authenticated user, so a second call returns false.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	h.wg.Done()

	userID := c.UserID()
	channels, ok := h.users[userID]
	if !ok {
		return false
	}
	if _, bound := channels[c]; !bound {
		return false
	}
	delete(channels, c)
	if len(channels) > 0 {
		return false
	}
	delete(h.users, userID)
	return true
}

// Deliver sends one event to every channel of every listed user and
// returns the number of channels reached. Users without channels are
// skipped.
func (h *Hub) Deliver(userIDs []uint, event string, payload interface{}) int {
	frame, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	var targets []*Client
	for _, id := range lo.Uniq(userIDs) {
		for c := range h.users[id] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	return h.send(targets, frame)
}

// Broadcast sends one event to every connected channel, anonymous ones
// included.
func (h *Hub) Broadcast(event string, payload interface{}) int {
	frame, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := lo.Keys(h.clients)
	h.mu.RUnlock()

	return h.send(targets, frame)
}

// CloseUser closes every channel bound to userID and returns how many
// were asked to close. Each one is unregistered by its read pump.
func (h *Hub) CloseUser(userID uint, code int, reason string) int {
	h.mu.RLock()
	targets := lo.Keys(h.users[userID])
	h.mu.RUnlock()

	for _, c := range targets {
		c.Close(code, reason)
	}
	if len(targets) > 0 {
		h.logger.Debug("closing user channels", zap.Uint("user_id", userID), zap.Int("channels", len(targets)))
	}
	return len(targets)
}

func (h *Hub) send(targets []*Client, frame []byte) int {
	delivered := 0
	for _, c := range targets {
		if err := c.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUsers returns the ids of users with at least one channel.
func (h *Hub) OnlineUsers() []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Keys(h.users)
}

// Shutdown closes every channel and waits until each has been
// unregistered or ctx expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := lo.Keys(h.clients)
	h.mu.Unlock()

	h.logger.Info("closing websocket channels", zap.Int("count", len(clients)))
	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
