// Package push keeps a websocket open to the realtime server and fans its
// events out to subscribers.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wallet-sync-go/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 2 * heartbeatInterval
)

type Client struct {
	url    string
	token  string
	dialer *websocket.Dialer
	recon  *reconnector

	mu            sync.Mutex
	conn          *websocket.Conn
	connected     bool
	connectedOnce bool
	running       bool

	messages     registry[func(models.Message)]
	transactions registry[func(models.Transaction)]
	deletions    registry[func(messageId, interactionId string)]
	interactions registry[func(models.Interaction)]
	reconnects   registry[func()]

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewClient(cfg models.PushConfig, token string) *Client {
	return &Client{
		url:    cfg.URL,
		token:  token,
		dialer: websocket.DefaultDialer,
		recon:  newReconnector(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts),
	}
}

func (c *Client) OnMessage(fn func(models.Message)) func() { return c.messages.add(fn) }
func (c *Client) OnTransactionUpdate(fn func(models.Transaction)) func() {
	return c.transactions.add(fn)
}
func (c *Client) OnMessageDeleted(fn func(messageId, interactionId string)) func() {
	return c.deletions.add(fn)
}
func (c *Client) OnInteractionUpdated(fn func(models.Interaction)) func() {
	return c.interactions.add(fn)
}

// OnReconnect fires after every successful connection except the first.
func (c *Client) OnReconnect(fn func()) func() { return c.reconnects.add(fn) }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Start connects in the background and keeps reconnecting until Stop or the
// context ends.
func (c *Client) Start(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("push URL cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.doneChan = make(chan struct{})

	go c.run(ctx, c.stopChan, c.doneChan)
	zap.L().Info("Push client started", zap.String("url", c.url))
	return nil
}

func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopChan, doneChan := c.stopChan, c.doneChan
	conn := c.conn
	c.mu.Unlock()

	zap.L().Info("Stopping push client")
	close(stopChan)
	if conn != nil {
		conn.Close()
	}
	<-doneChan
	zap.L().Info("Push client stopped")
}

func (c *Client) run(ctx context.Context, stopChan, doneChan chan struct{}) {
	defer close(doneChan)

	for {
		conn, err := c.dial(ctx)
		if err == nil {
			c.serve(ctx, conn, stopChan)
		} else {
			zap.L().Warn("Push connection failed", zap.Error(err))
		}

		select {
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !c.recon.shouldReconnect() {
			zap.L().Error("Giving up on push channel", zap.Int("attempts", c.recon.attempt))
			return
		}
		delay := c.recon.nextDelay()
		zap.L().Info("Reconnecting push channel",
			zap.Int("attempt", c.recon.attempt),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// serve reads from conn until it fails or the client stops.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, stopChan chan struct{}) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	reconnected := c.connectedOnce
	c.connectedOnce = true
	c.mu.Unlock()

	c.recon.markConnected()
	zap.L().Info("Push channel connected", zap.Bool("reconnect", reconnected))

	if reconnected {
		for _, fn := range c.reconnects.snapshot() {
			c.safeCall("reconnect", fn)
		}
	}

	connDone := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go c.heartbeatLoop(ctx, conn, stopChan, connDone, heartbeatDone)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Warn("Push channel closed unexpectedly", zap.Error(err))
			}
			break
		}
		c.dispatch(data)
	}

	c.mu.Lock()
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	conn.Close()
	close(connDone)
	<-heartbeatDone
}

func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn, stopChan, connDone, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				zap.L().Debug("Push heartbeat failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-connDone:
			return
		case <-stopChan:
			return
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

func (c *Client) dispatch(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		zap.L().Warn("Dropping push frame", zap.Error(err))
		return
	}

	switch env.Type {
	case TypeMessageNew:
		var m models.Message
		if !decodePayload(env, &m) {
			return
		}
		for _, fn := range c.messages.snapshot() {
			c.safeCall(env.Type, func() { fn(m) })
		}
	case TypeTransactionUpdate:
		var tx models.Transaction
		if !decodePayload(env, &tx) {
			return
		}
		for _, fn := range c.transactions.snapshot() {
			c.safeCall(env.Type, func() { fn(tx) })
		}
	case TypeMessageDeleted:
		var p MessageDeletedPayload
		if !decodePayload(env, &p) {
			return
		}
		for _, fn := range c.deletions.snapshot() {
			c.safeCall(env.Type, func() { fn(p.MessageId, p.InteractionId) })
		}
	case TypeInteractionUpdated:
		var i models.Interaction
		if !decodePayload(env, &i) {
			return
		}
		for _, fn := range c.interactions.snapshot() {
			c.safeCall(env.Type, func() { fn(i) })
		}
	default:
		zap.L().Debug("Ignoring push event", zap.String("type", env.Type))
	}
}

func decodePayload(env Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		zap.L().Warn("Invalid push payload", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}

func (c *Client) safeCall(eventType string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Push handler panicked",
				zap.String("type", eventType),
				zap.Any("panic", r))
		}
	}()
	fn()
}
