package projectx

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
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 30 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// wsFrame is the discriminated envelope the user hub sends. Unknown types
// are ignored.
type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// subscribeFrame names the account and the channels to stream.
type subscribeFrame struct {
	Action    string   `json:"action"`
	AccountID int64    `json:"accountId"`
	Channels  []string `json:"channels"`
}

// WSClient streams trade, position, and account events from the ProjectX
// user hub. The session token is passed as a query parameter on dial.
type WSClient struct {
	wsURL  string
	hub    *adapter.Hub
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	closed    bool
	accountID int64
	account   string
	token     string

	backoff *adapter.Backoff

	// onDown is invoked after reconnect attempts are exhausted.
	onDown func()

	done chan struct{}
}

// NewWSClient creates a stream client emitting into hub.
func NewWSClient(wsURL string, hub *adapter.Hub, backoff *adapter.Backoff, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		hub:     hub,
		backoff: backoff,
		logger:  logger.With(slog.String("component", "projectx_ws")),
		done:    make(chan struct{}),
	}
}

// Connect dials the user hub with the token in the query string and sends
// the subscribe frame for the trades, positions, and account channels.
func (w *WSClient) Connect(ctx context.Context, token string, accountID int64, accountNumber string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("projectx/ws: client is closed")
	}

	u, err := url.Parse(w.wsURL)
	if err != nil {
		return fmt.Errorf("projectx/ws: parse url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("projectx/ws: connect: %w: %v", domain.ErrTransport, err)
	}

	w.conn = conn
	w.token = token
	w.accountID = accountID
	w.account = accountNumber

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := w.sendSubscribe(conn); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("projectx/ws: subscribe: %w", err)
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

func (w *WSClient) sendSubscribe(conn *websocket.Conn) error {
	frame := subscribeFrame{
		Action:    "subscribe",
		AccountID: w.accountID,
		Channels:  []string{"trades", "positions", "account"},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
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

// dispatch decodes one frame and emits the normalised payload. Unknown frame
// types are ignored.
func (w *WSClient) dispatch(data []byte) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		w.logger.Debug("undecodable frame dropped", slog.String("error", err.Error()))
		return
	}

	switch frame.Type {
	case "trade", "GatewayUserTrade":
		var t pxTrade
		if err := json.Unmarshal(frame.Data, &t); err != nil {
			w.logger.Warn("bad trade frame", slog.String("error", err.Error()))
			return
		}
		w.mu.RLock()
		account := w.account
		w.mu.RUnlock()
		w.hub.EmitTrade(normalizeTrade(t, account))

	case "position", "GatewayUserPosition":
		var p pxPosition
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			w.logger.Warn("bad position frame", slog.String("error", err.Error()))
			return
		}
		w.hub.EmitPosition(normalizePosition(p))
	}
}

// handleDisconnect runs the shared reconnect policy: while the client has
// not been closed deliberately, retry with exponential backoff until the
// attempt budget is exhausted, then mark the stream down.
func (w *WSClient) handleDisconnect(old *websocket.Conn) {
	w.mu.Lock()
	if w.closed || w.conn != old {
		w.mu.Unlock()
		return
	}
	w.conn = nil
	token := w.token
	accountID := w.accountID
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
		err := w.Connect(ctx, token, accountID, account)
		cancel()
		if err == nil {
			w.backoff.Reset()
			w.logger.Info("stream reconnected")
			return
		}
	}
}
