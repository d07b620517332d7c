package hass

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/julius090/fusion-thermostat/internal/climate"
	"github.com/julius090/fusion-thermostat/internal/logger"
)

const (
	handshakeTimeout = 10 * time.Second
	callTimeout      = 10 * time.Second
	initialBackoff   = time.Second
	maxBackoff       = time.Minute
)

var (
	ErrNotConnected = errors.New("hass: not connected")
	ErrAuthFailed   = errors.New("hass: authentication failed")
)

// EventSink receives the state_changed events the client is subscribed to,
// already split by role. The climate coordinator implements it.
type EventSink interface {
	HandleSensorChanged(ctx context.Context, oldState, newState *climate.EntityState)
	HandleWindowChanged(ctx context.Context, oldState, newState *climate.EntityState)
	HandleDeviceChanged(ctx context.Context, entityID string, oldState, newState *climate.EntityState)
}

// Config identifies the backend and the entities the client routes.
type Config struct {
	URL               string // ws(s)://host:port/api/websocket
	Token             string // long-lived access token
	TemperatureSensor string
	WindowSensor      string // optional
	Devices           []string
}

// Client is a Home Assistant WebSocket API client. It maintains one
// connection, authenticates with a long-lived token, subscribes to
// state_changed events, and issues service calls. It satisfies
// climate.ServiceCaller so the dispatcher can fan commands out through it.
type Client struct {
	cfg Config
	log *logger.Logger

	devices map[string]struct{}

	sink   EventSink
	sinkMu sync.RWMutex

	seq atomic.Int64

	connMu sync.Mutex // guards conn and writes to it
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[int64]chan callResult
}

type callResult struct {
	success bool
	err     error
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	devices := make(map[string]struct{}, len(cfg.Devices))
	for _, id := range cfg.Devices {
		devices[id] = struct{}{}
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		devices: devices,
		pending: make(map[int64]chan callResult),
	}
}

// SetSink installs the event consumer. Must be called before Run; the
// coordinator is constructed after the client, so the sink arrives late.
func (c *Client) SetSink(sink EventSink) {
	c.sinkMu.Lock()
	c.sink = sink
	c.sinkMu.Unlock()
}

// Run connects and serves events until ctx is cancelled, reconnecting with
// exponential backoff after any failure.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		start := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that survived a while earns a fresh backoff.
		if time.Since(start) > maxBackoff {
			backoff = initialBackoff
		}
		c.log.Errorw("hass session ended", "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session runs one connect-authenticate-subscribe-read cycle.
func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer func() {
		c.detach(conn)
		_ = conn.Close()
	}()

	if err := c.authenticate(conn); err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if err := c.subscribe(conn); err != nil {
		return err
	}
	c.log.Infow("hass connected", "url", c.cfg.URL)

	// Close the socket when ctx ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Type {
		case msgResult:
			c.deliver(msg)
		case msgEvent:
			if msg.Event != nil && msg.Event.EventType == eventStateChanged {
				c.route(ctx, msg.Event.Data)
			}
		}
	}
}

// authenticate performs the auth_required/auth/auth_ok exchange.
func (c *Client) authenticate(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var hello serverMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != msgAuthRequired {
		return fmt.Errorf("unexpected hello frame %q", hello.Type)
	}

	if err := conn.WriteJSON(map[string]any{
		"type":         msgAuth,
		"access_token": c.cfg.Token,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var reply serverMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case msgAuthOK:
		return nil
	case msgAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return fmt.Errorf("unexpected auth reply %q", reply.Type)
	}
}

// subscribe registers for state_changed events. The confirmation result is
// consumed by the read loop through the pending map.
func (c *Client) subscribe(conn *websocket.Conn) error {
	id := c.seq.Add(1)
	c.register(id)
	return c.write(map[string]any{
		"id":         id,
		"type":       "subscribe_events",
		"event_type": eventStateChanged,
	})
}

// CallService issues a single service call and waits for its result frame.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	id := c.seq.Add(1)
	ch := c.register(id)

	err := c.write(map[string]any{
		"id":           id,
		"type":         "call_service",
		"domain":       domain,
		"service":      service,
		"service_data": data,
	})
	if err != nil {
		c.unregister(id)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if !res.success {
			return fmt.Errorf("call_service %s.%s rejected", domain, service)
		}
		return nil
	case <-ctx.Done():
		c.unregister(id)
		return ctx.Err()
	}
}

func (c *Client) write(msg any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}

// detach clears the connection slot and fails all in-flight calls.
func (c *Client) detach(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- callResult{err: ErrNotConnected}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Client) register(id int64) chan callResult {
	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *Client) unregister(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// deliver hands a result frame to whoever is waiting on its id.
func (c *Client) deliver(msg serverMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	res := callResult{success: msg.Success}
	if msg.Error != nil {
		res.err = fmt.Errorf("hass: %s: %s", msg.Error.Code, msg.Error.Message)
	}
	ch <- res
}

// route forwards a state change to the sink handler that owns the entity.
// Entities outside the configured set are ignored.
func (c *Client) route(ctx context.Context, data stateChangedData) {
	c.sinkMu.RLock()
	sink := c.sink
	c.sinkMu.RUnlock()
	if sink == nil {
		return
	}

	oldState := toEntityState(data.OldState)
	newState := toEntityState(data.NewState)

	switch {
	case data.EntityID == c.cfg.TemperatureSensor:
		sink.HandleSensorChanged(ctx, oldState, newState)
	case c.cfg.WindowSensor != "" && data.EntityID == c.cfg.WindowSensor:
		sink.HandleWindowChanged(ctx, oldState, newState)
	default:
		if _, ok := c.devices[data.EntityID]; ok {
			sink.HandleDeviceChanged(ctx, data.EntityID, oldState, newState)
		}
	}
}
