// Package feed provides a WebSocket client for a live security alert stream.
package feed

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection settings
const (
	pingInterval      = 30 * time.Second
	connectionTimeout = 60 * time.Second
	writeTimeout      = 10 * time.Second
)

// Backoff controls the delay between reconnection attempts. The delay starts
// at Initial, is multiplied by Factor after every failed attempt up to Max,
// and returns to Initial once a session reaches the subscribed state.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultBackoff is used by NewClient.
var DefaultBackoff = Backoff{
	Initial: 5 * time.Second,
	Max:     5 * time.Minute,
	Factor:  2,
}

func (b Backoff) next(d time.Duration) time.Duration {
	return min(time.Duration(float64(d)*b.Factor), b.Max)
}

// Client is a WebSocket alert feed client with automatic reconnection.
type Client struct {
	url     string
	alerts  chan<- Alert
	backoff Backoff
	done    chan struct{}
	wg      sync.WaitGroup

	// Stats
	messagesReceived uint64
	alertsParsed     uint64
	alertsDropped    uint64
	errors           uint64
	reconnects       uint64

	// State
	running   atomic.Bool
	connected atomic.Bool
}

// NewClient creates a client that delivers parsed alerts to alerts.
func NewClient(url string, alerts chan<- Alert) *Client {
	return &Client{
		url:     url,
		alerts:  alerts,
		backoff: DefaultBackoff,
		done:    make(chan struct{}),
	}
}

// Start begins the WebSocket connection in a goroutine.
func (c *Client) Start() {
	if c.running.Swap(true) {
		log.Warn().Str("component", "feed").Str("url", c.url).Msg("Client already running")
		return
	}

	c.wg.Add(1)
	go c.runLoop()
	log.Info().Str("component", "feed").Str("url", c.url).Msg("Client started")
}

// Stop gracefully shuts down the client.
func (c *Client) Stop() {
	if !c.running.Swap(false) {
		return
	}
	close(c.done)
	c.wg.Wait()
	log.Info().Str("component", "feed").Str("url", c.url).Msg("Client stopped")
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Stats returns current statistics.
func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"url":               c.url,
		"connected":         c.connected.Load(),
		"messages_received": atomic.LoadUint64(&c.messagesReceived),
		"alerts_parsed":     atomic.LoadUint64(&c.alertsParsed),
		"alerts_dropped":    atomic.LoadUint64(&c.alertsDropped),
		"errors":            atomic.LoadUint64(&c.errors),
		"reconnects":        atomic.LoadUint64(&c.reconnects),
	}
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	delay := c.backoff.Initial
	for c.running.Load() {
		subscribed, err := c.connectAndStream()
		if subscribed {
			delay = c.backoff.Initial
		}
		if err != nil {
			atomic.AddUint64(&c.errors, 1)
			log.Warn().Err(err).Str("component", "feed").Dur("retry_in", delay).Msg("Feed connection lost")
		}

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
		atomic.AddUint64(&c.reconnects, 1)
		delay = c.backoff.next(delay)
	}
}

// connectAndStream runs one feed session. subscribed reports whether the
// subscription was sent on an established connection.
func (c *Client) connectAndStream() (subscribed bool, err error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: connectionTimeout,
	}

	log.Debug().Str("component", "feed").Str("url", c.url).Msg("Connecting to alert feed")
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	subscribeMsg := map[string]interface{}{
		"type": "subscribe",
		"data": map[string]interface{}{
			"stream": "alerts",
		},
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		return false, fmt.Errorf("subscribe failed: %w", err)
	}

	c.connected.Store(true)
	defer c.connected.Store(false)
	log.Info().Str("component", "feed").Str("url", c.url).Msg("Connected and subscribed")

	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingDone:
				return
			case <-c.done:
				// Unblocks ReadMessage
				conn.Close()
				return
			}
		}
	}()
	defer close(pingDone)

	for c.running.Load() {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || !c.running.Load() {
				return true, nil
			}
			return true, fmt.Errorf("read failed: %w", err)
		}

		if messageType != websocket.TextMessage {
			continue
		}

		atomic.AddUint64(&c.messagesReceived, 1)

		alert, err := ParseMessage(message, c.url)
		if err != nil {
			log.Debug().Err(err).Str("component", "feed").Msg("Skipping unparseable frame")
			continue
		}
		if alert == nil {
			continue
		}

		atomic.AddUint64(&c.alertsParsed, 1)
		select {
		case c.alerts <- *alert:
		default:
			if n := atomic.AddUint64(&c.alertsDropped, 1); n%100 == 1 {
				log.Warn().Str("component", "feed").Uint64("dropped", n).Msg("Alert channel full, dropping alert")
			}
		}
	}

	return true, nil
}
