package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"archaeoscan-gateway/internal/metrics"
)

const (
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// WebSocketSource reads snapshots from an upstream sensor push channel, reconnecting after
// the connection closes until the attempt budget is spent.
type WebSocketSource struct {
	healthState

	url         string
	interval    time.Duration
	maxAttempts int
	dialer      *websocket.Dialer
	sub         Submitter
	log         *zap.Logger
}

func NewWebSocketSource(url string, interval time.Duration, maxAttempts int, sub Submitter, m *metrics.Metrics, log *zap.Logger) *WebSocketSource {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}
	s := &WebSocketSource{
		url:         url,
		interval:    interval,
		maxAttempts: maxAttempts,
		dialer:      websocket.DefaultDialer,
		sub:         sub,
		log:         log.With(zap.String("component", "ingest-upstream"), zap.String("url", url)),
	}
	s.init("upstream", m)
	return s
}

// Run dials the upstream and reads until ctx is cancelled. A successful connection resets
// the attempt counter; after maxAttempts consecutive failed reconnects the source goes
// offline and Run returns an error.
func (s *WebSocketSource) Run(ctx context.Context) error {
	attempts := 0
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil {
			attempts = 0
			s.set(Connected)
			s.log.Info("upstream connected")
			s.read(ctx, conn)
			if ctx.Err() != nil {
				s.set(Offline)
				return nil
			}
			s.log.Warn("upstream disconnected")
		} else if ctx.Err() != nil {
			s.set(Offline)
			return nil
		} else {
			s.log.Warn("upstream dial failed", zap.Int("attempt", attempts), zap.Error(err))
		}

		if attempts >= s.maxAttempts {
			s.set(Offline)
			return fmt.Errorf("upstream %s: gave up after %d reconnect attempts", s.url, attempts)
		}
		s.set(Reconnecting)

		select {
		case <-ctx.Done():
			s.set(Offline)
			return nil
		case <-time.After(s.interval):
		}
		attempts++
	}
}

func (s *WebSocketSource) read(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("upstream read error", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		handlePayload(ctx, msg, "upstream", s.sub, false, s.log)
	}
}
