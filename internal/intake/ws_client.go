package intake

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// reconnectingWSClient maintains one websocket connection, resubscribing
// after every reconnect, and backs off exponentially between attempts.
type reconnectingWSClient struct {
	url               string
	subscribeMessages []map[string]any
	onMessage         func(map[string]any)

	pingInterval time.Duration
	maxBackoff   time.Duration
}

func newReconnectingWSClient(url string, subscribeMessages []map[string]any, onMessage func(map[string]any)) *reconnectingWSClient {
	return &reconnectingWSClient{
		url:               url,
		subscribeMessages: subscribeMessages,
		onMessage:         onMessage,
		pingInterval:      20 * time.Second,
		maxBackoff:        30 * time.Second,
	}
}

func (c *reconnectingWSClient) runForever(stop <-chan struct{}) {
	backoff := time.Second
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := c.connectOnce(stop); err != nil {
			log.Warn().Err(err).Str("url", c.url).Msg("ws_loop_error")
			sleepOrStop(stop, backoff)
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

func (c *reconnectingWSClient) connectOnce(stop <-chan struct{}) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for _, payload := range c.subscribeMessages {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal subscribe payload: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return fmt.Errorf("send subscribe: %w", err)
		}
		log.Info().RawJSON("payload", body).Msg("ws_subscribe")
	}
	log.Info().Str("url", c.url).Msg("ws_connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var parsed map[string]any
			if err := json.Unmarshal(raw, &parsed); err != nil {
				// Market channel also emits bare JSON arrays for book snapshots;
				// those carry no trade rows so they're safely ignored here.
				continue
			}
			c.onMessage(parsed)
		}
	}()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-done:
			return fmt.Errorf("connection closed")
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
