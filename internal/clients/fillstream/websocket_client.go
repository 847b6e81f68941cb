// Package fillstream maintains the websocket subscription to the broker's
// trade fill feed.
package fillstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/events"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// FillSink consumes decoded fill events. Delivery is at-least-once: the sink
// must deduplicate by fill ID.
type FillSink interface {
	ApplyFill(fill domain.FillEvent) error
}

// Client handles the real-time fill feed over websocket with automatic
// reconnection
type Client struct {
	url        string
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	sink     FillSink
	eventBus *events.Bus
	log      zerolog.Logger

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
}

// NewClient creates a new fill stream client
func NewClient(url string, sink FillSink, eventBus *events.Bus, log zerolog.Logger) *Client {
	return &Client{
		url:      url,
		sink:     sink,
		eventBus: eventBus,
		log:      log.With().Str("component", "fillstream").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start initializes the websocket connection and starts the read loop
func (c *Client) Start() error {
	c.log.Info().Msg("Starting fill stream client")

	if err := c.Connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial fill stream connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	c.mu.RLock()
	ctx := c.connCtx
	c.mu.RUnlock()
	go c.readMessages(ctx)

	c.log.Info().Msg("Fill stream client started")
	return nil
}

// Stop gracefully shuts down the websocket connection
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.log.Info().Msg("Stopping fill stream client")
	close(c.stopChan)
	return c.Disconnect()
}

// Connect establishes the websocket connection and subscribes to fills
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("Connecting to fill stream")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial fill stream: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	if err := c.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		c.conn = nil
		c.connCtx = nil
		c.cancelFunc = nil
		c.connected = false
		return fmt.Errorf("failed to subscribe to fills: %w", err)
	}

	c.notifyStatus(true)
	c.log.Info().Msg("Connected to fill stream")
	return nil
}

// Disconnect closes the websocket connection
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	c.connCtx = nil
	c.connected = false

	c.notifyStatus(false)
	if err != nil {
		return fmt.Errorf("error closing fill stream: %w", err)
	}
	return nil
}

// Connected reports the current connection state
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) subscribe(ctx context.Context) error {
	data, err := json.Marshal(map[string]string{"subscribe": "fills"})
	if err != nil {
		return fmt.Errorf("failed to marshal subscription message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}
	return nil
}

// readMessages continuously reads fill messages from the websocket
func (c *Client) readMessages(ctx context.Context) {
	defer func() {
		c.log.Info().Msg("Fill stream read loop stopped")
		c.mu.RLock()
		stopped := c.stopped
		c.mu.RUnlock()
		if !stopped {
			c.notifyStatus(false)
			go c.reconnectLoop()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			c.log.Warn().Msg("Connection is nil, stopping read loop")
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				c.log.Info().Int("status", int(closeStatus)).Msg("Fill stream closed normally")
			} else if ctx.Err() != nil {
				c.log.Debug().Msg("Read cancelled by context")
			} else {
				c.log.Error().Err(err).Msg("Unexpected fill stream read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := c.handleMessage(message); err != nil {
			c.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle fill message")
			// Keep reading; a bad message must not take down the feed
		}
	}
}

// handleMessage decodes one fill and hands it to the sink
func (c *Client) handleMessage(message []byte) error {
	var fill domain.FillEvent
	if err := json.Unmarshal(message, &fill); err != nil {
		return fmt.Errorf("failed to parse fill: %w", err)
	}
	if err := fill.Validate(); err != nil {
		return fmt.Errorf("invalid fill: %w", err)
	}

	if err := c.sink.ApplyFill(fill); err != nil {
		return fmt.Errorf("applying fill %s: %w", fill.ID, err)
	}

	c.log.Debug().
		Str("fill_id", fill.ID).
		Str("symbol", fill.Symbol).
		Str("side", string(fill.Side)).
		Float64("quantity", fill.Quantity).
		Msg("Fill applied from stream")
	return nil
}

func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.RLock()
		stopped := c.stopped
		c.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := c.calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Attempting fill stream reconnect")
		} else {
			c.log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Fill stream reconnect attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-c.stopChan:
			return
		}

		if err := c.Connect(); err != nil {
			c.log.Error().Err(err).Int("attempt", attempt).Msg("Fill stream reconnection failed")
			continue
		}

		c.log.Info().Int("attempt", attempt).Msg("Fill stream reconnected")

		c.mu.RLock()
		ctx := c.connCtx
		c.mu.RUnlock()
		go c.readMessages(ctx)
		return
	}
}

// calculateBackoff returns an exponential backoff delay capped at the
// maximum
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		return maxReconnectDelay
	}
	return time.Duration(delay)
}

func (c *Client) notifyStatus(connected bool) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.Publish("fillstream", &events.FillStreamStatusChangedData{
		Connected: connected,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
