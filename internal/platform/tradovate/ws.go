package tradovate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsEvent is the discriminated envelope the socket sends. Unknown events are
// ignored.
type wsEvent struct {
	Event string          `json:"e"`
	Data  json.RawMessage `json:"d"`
}

// syncRequest subscribes the user's trades, positions, and account channels.
type syncRequest struct {
	Op       string   `json:"op"`
	Users    []int64  `json:"users"`
	Channels []string `json:"channels"`
}

// WSClient streams fills and position updates from the Tradovate realtime
// socket. The access token is passed as a query parameter on dial.
type WSClient struct {
	wsURL  string
	hub    *adapter.Hub
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	closed  bool
	token   string
	userID  int64
	account string

	backoff *adapter.Backoff
	onDown  func()

	done chan struct{}
}

// NewWSClient creates a stream client emitting into hub.
func NewWSClient(wsURL string, hub *adapter.Hub, backoff *adapter.Backoff, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		hub:     hub,
		backoff: backoff,
		logger:  logger.With(slog.String("component", "tradovate_ws")),
		done:    make(chan struct{}),
	}
}

// Connect dials the socket with the token in the query string and sends the
// user sync frame.
func (w *WSClient) Connect(ctx context.Context, token string, userID int64, accountNumber string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("tradovate/ws: client is closed")
	}

	u, err := url.Parse(w.wsURL)
	if err != nil {
		return fmt.Errorf("tradovate/ws: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("tradovate/ws: connect: %w: %v", domain.ErrTransport, err)
	}

	w.conn = conn
	w.token = token
	w.userID = userID
	w.account = accountNumber

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sync := syncRequest{
		Op:       "user/syncrequest",
		Users:    []int64{userID},
		Channels: []string{"trades", "positions", "account"},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sync); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("tradovate/ws: sync request: %w", err)
	}

	go w.readLoop(conn)
	go w.pingLoop(conn)

	return nil
}

// SetOnDown registers the callback fired when reconnects are exhausted.
func (w *WSClient) SetOnDown(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDown = fn
}

// IsConnected reports whether the socket is live.
func (w *WSClient) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil && !w.closed
}

// Close shuts the client down permanently. Idempotent.
func (w *WSClient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.handleDisconnect(conn)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		w.dispatch(data)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *WSClient) dispatch(data []byte) {
	var ev wsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.Debug("undecodable event dropped", slog.String("error", err.Error()))
		return
	}

	switch ev.Event {
	case "fill":
		var f tvFill
		if err := json.Unmarshal(ev.Data, &f); err != nil {
			w.logger.Warn("bad fill event", slog.String("error", err.Error()))
			return
		}
		w.mu.RLock()
		account := w.account
		w.mu.RUnlock()
		w.hub.EmitTrade(normalizeFill(f, account))

	case "position":
		var p tvPosition
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			w.logger.Warn("bad position event", slog.String("error", err.Error()))
			return
		}
		w.hub.EmitPosition(normalizePosition(p))
	}
}

func (w *WSClient) handleDisconnect(old *websocket.Conn) {
	w.mu.Lock()
	if w.closed || w.conn != old {
		w.mu.Unlock()
		return
	}
	w.conn = nil
	token := w.token
	userID := w.userID
	account := w.account
	w.mu.Unlock()

	for {
		delay, ok := w.backoff.Next()
		if !ok {
			w.logger.Error("reconnect attempts exhausted, stream down")
			w.mu.RLock()
			onDown := w.onDown
			w.mu.RUnlock()
			if onDown != nil {
				onDown()
			}
			return
		}

		w.logger.Warn("stream lost, reconnecting",
			slog.Duration("delay", delay),
			slog.Int("attempt", w.backoff.Attempt()),
		)

		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx, token, userID, account)
		cancel()
		if err == nil {
			w.backoff.Reset()
			w.logger.Info("stream reconnected")
			return
		}
	}
}
