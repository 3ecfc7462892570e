package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// ReconnectConfig controls stream reconnection behavior
type ReconnectConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultReconnectConfig returns the standard reconnection settings
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:        10,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// QuoteHandler receives live book quotes from the stream
type QuoteHandler func(models.BookQuote)

// streamMessage is one frame from the odds stream
type streamMessage struct {
	Op      string        `json:"op"`
	EventID string        `json:"eventId"`
	Quotes  []streamQuote `json:"quotes,omitempty"`
}

type streamQuote struct {
	Outcome    string      `json:"outcome"`
	Book       string      `json:"book"`
	Odds       json.Number `json:"odds"`
	ObservedAt string      `json:"observedAt"`
}

// subscribeMessage subscribes the connection to sports' quote updates
type subscribeMessage struct {
	Op     string   `json:"op"`
	APIKey string   `json:"apiKey"`
	Sports []string `json:"sports"`
}

// StreamClient keeps book quotes fresh between polls over a websocket feed.
// Dropped connections reconnect with exponential backoff and re-subscribe;
// after MaxRetries the stream stays down and polling carries the build alone.
type StreamClient struct {
	url       string
	apiKey    string
	reconnect ReconnectConfig
	handler   QuoteHandler
	log       *logrus.Logger

	mu          sync.RWMutex
	conn        *websocket.Conn
	connected   bool
	closed      bool
	lastMessage time.Time
	sports      []string
}

// NewStreamClient creates a stream client delivering quotes to handler
func NewStreamClient(streamURL, apiKey string, handler QuoteHandler, log *logrus.Logger) *StreamClient {
	return &StreamClient{
		url:       streamURL,
		apiKey:    apiKey,
		reconnect: DefaultReconnectConfig(),
		handler:   handler,
		log:       log,
	}
}

// SetReconnectConfig overrides the reconnection settings. Call before
// Connect.
func (s *StreamClient) SetReconnectConfig(cfg ReconnectConfig) {
	s.reconnect = cfg
}

// Connect dials the stream and starts the read loop
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}
	if err := s.dialLocked(ctx); err != nil {
		return err
	}

	go s.readLoop()
	return nil
}

func (s *StreamClient) dialLocked(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to quote stream: %w", err)
	}
	s.conn = conn
	s.connected = true
	s.lastMessage = time.Now()
	s.log.WithField("url", s.url).Info("Quote stream connected")
	return nil
}

// Subscribe asks for live quotes on the given sports. The subscription is
// remembered and replayed after every reconnect.
func (s *StreamClient) Subscribe(sports []string) error {
	s.mu.Lock()
	s.sports = append([]string{}, sports...)
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteJSON(subscribeMessage{
		Op:     "subscribe",
		APIKey: s.apiKey,
		Sports: sports,
	})
}

// readLoop reads frames until the connection drops, then attempts
// reconnection with exponential backoff
func (s *StreamClient) readLoop() {
	for {
		s.mu.RLock()
		conn := s.conn
		closed := s.closed
		s.mu.RUnlock()
		if closed || conn == nil {
			return
		}

		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			s.mu.Lock()
			s.connected = false
			wasClosed := s.closed
			s.mu.Unlock()
			if wasClosed {
				return
			}
			s.log.WithError(err).Warn("Quote stream read failed, reconnecting")
			if !s.redial() {
				return
			}
			continue
		}

		s.mu.Lock()
		s.lastMessage = time.Now()
		s.mu.Unlock()

		s.handleFrame(raw)
	}
}

// redial reconnects with backoff and replays the subscription. Returns
// false when retries are exhausted or the client was closed.
func (s *StreamClient) redial() bool {
	backoff := s.reconnect.InitialBackoff
	for attempt := 1; attempt <= s.reconnect.MaxRetries; attempt++ {
		time.Sleep(backoff)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return false
		}
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.dialLocked(ctx)
		cancel()
		sports := append([]string{}, s.sports...)
		s.mu.Unlock()

		if err == nil {
			if len(sports) > 0 {
				if err := s.Subscribe(sports); err != nil {
					s.log.WithError(err).Warn("Quote stream re-subscribe failed")
				}
			}
			return true
		}

		s.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": backoff.String(),
		}).Warn("Quote stream reconnect failed")

		backoff = time.Duration(float64(backoff) * s.reconnect.BackoffMultiplier)
		if backoff > s.reconnect.MaxBackoff {
			backoff = s.reconnect.MaxBackoff
		}
	}
	s.log.Error("Quote stream reconnect retries exhausted, falling back to polling")
	return false
}

// handleFrame converts quote frames into book quotes for the handler
func (s *StreamClient) handleFrame(raw []byte) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.WithError(err).Debug("Dropping malformed stream frame")
		return
	}
	if msg.Op != "quote" || msg.EventID == "" || s.handler == nil {
		return
	}

	for _, q := range msg.Quotes {
		d, err := decimal.NewFromString(q.Odds.String())
		if err != nil {
			continue
		}
		odds := d.InexactFloat64()
		if odds <= 1 {
			continue
		}
		observedAt := time.Now()
		if at, err := time.Parse(time.RFC3339, q.ObservedAt); err == nil {
			observedAt = at
		}
		s.handler(models.BookQuote{
			EventID:       msg.EventID,
			OutcomeLabel:  q.Outcome,
			BookmakerName: q.Book,
			DecimalOdds:   odds,
			SharpnessRank: sharpnessRanks[q.Book],
			ObservedAt:    observedAt,
		})
	}
}

// IsConnected reports whether the stream is currently connected
func (s *StreamClient) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastMessageTime returns when the last frame arrived
func (s *StreamClient) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessage
}

// Close shuts the stream down permanently
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.connected = false
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
