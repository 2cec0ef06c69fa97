package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/techagentng/dmchat/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// CloseAuthenticationFailed is sent when a channel presents a bad token.
	CloseAuthenticationFailed = 4001
)

var (
	ErrClosed               = errors.New("connection closed")
	ErrBufferFull           = errors.New("connection buffer exceeded")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// EventHandler receives the inbound frames of a channel.
type EventHandler interface {
	HandleEvent(c *Client, envelope models.Envelope)
	// Disconnected is called exactly once, after the channel has closed.
	Disconnected(c *Client)
}

type Options struct {
	RateLimit      float64
	Burst          int
	MaxMessageSize int64
	SendBuffer     int
}

func (o Options) withDefaults() Options {
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Client is one live websocket channel. It starts anonymous, may bind to
// exactly one user, and ends closed.
type Client struct {
	ID   string
	Addr string

	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	logger  *zap.Logger
	opts    Options

	mu   sync.RWMutex
	user *models.User

	quitOnce  sync.Once
	quit      chan struct{}
	closeCode int
	closeText string

	doneOnce sync.Once
	done     chan struct{}
}

func NewClient(ws *websocket.Conn, addr string, opts Options, logger *zap.Logger) *Client {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Client{
		ID:      id,
		Addr:    addr,
		ws:      ws,
		send:    make(chan []byte, opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		logger:  logger.With(zap.String("conn_id", id), zap.String("addr", addr)),
		opts:    opts,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *Client) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// UserID returns 0 for an anonymous channel.
func (c *Client) UserID() uint {
	if u := c.User(); u != nil {
		return u.ID
	}
	return 0
}

func (c *Client) State() State {
	select {
	case <-c.done:
		return StateClosed
	default:
	}
	if c.User() != nil {
		return StateAuthenticated
	}
	return StateAnonymous
}

// Authenticate binds the channel to user. It happens at most once.
func (c *Client) Authenticate(user *models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosing() {
		return ErrClosed
	}
	if c.user != nil {
		return ErrAlreadyAuthenticated
	}
	c.user = user
	return nil
}

func (c *Client) isClosing() bool {
	select {
	case <-c.quit:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// Send enqueues payload for delivery. A client too slow to keep its
// buffer drained is dropped.
func (c *Client) Send(payload []byte) error {
	if c.isClosing() {
		return ErrClosed
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.logger.Warn("dropping slow client")
		c.terminate()
		return ErrBufferFull
	}
}

func (c *Client) SendEvent(event string, payload interface{}) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

func (c *Client) SendError(event, message string) {
	if err := c.SendEvent(event, models.ErrorPayload{Message: message}); err != nil {
		c.logger.Debug("error frame not delivered", zap.String("event", event), zap.Error(err))
	}
}

// Close flushes what is already queued, sends a close frame and closes
// the connection.
func (c *Client) Close(code int, reason string) {
	c.quitOnce.Do(func() {
		c.closeCode = code
		c.closeText = reason
		close(c.quit)
	})
}

func (c *Client) terminate() {
	c.doneOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Run starts the write pump and blocks in the read pump until the channel
// closes.
func (c *Client) Run(handler EventHandler) {
	go c.writePump()
	c.readPump(handler)
}

func (c *Client) readPump(handler EventHandler) {
	defer func() {
		c.terminate()
		handler.Disconnected(c)
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			c.SendError(models.EventMessageError, "rate limit exceeded, slow down")
			continue
		}

		var envelope models.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Event == "" {
			c.SendError(models.EventMessageError, "invalid frame: expected {\"event\", \"data\"}")
			continue
		}
		handler.HandleEvent(c, envelope)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.terminate()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			c.drain()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText), time.Now().Add(writeWait))
			return
		}
	}
}

// drain writes the frames queued before Close was requested.
func (c *Client) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(models.OutgoingEnvelope{Event: event, Data: payload})
}
