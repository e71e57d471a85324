package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamHandler defines exchange-specific logic for a WSWorker.
type StreamHandler interface {
	ID() string
	URL() string
	OnConnect(ctx context.Context, w *WSWorker) error
	OnMessage(ctx context.Context, msg []byte)
}

// WSWorker manages the lifecycle of one upstream WebSocket connection:
// reconnect with backoff, read deadlines, pings and serialized writes.
type WSWorker struct {
	handler StreamHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	ReadTimeout  time.Duration
	PingInterval time.Duration
	Backoff      func(retry int) time.Duration
}

// NewWSWorker creates a worker for the given handler.
func NewWSWorker(handler StreamHandler) *WSWorker {
	return &WSWorker{
		handler:      handler,
		ReadTimeout:  30 * time.Second,
		PingInterval: 15 * time.Second,
		Backoff:      CalculateBackoff,
	}
}

// Run connects and reads until ctx is cancelled, reconnecting on any error.
func (w *WSWorker) Run(ctx context.Context) error {
	retry := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := w.connect(ctx); err != nil {
			delay := w.Backoff(retry)
			slog.Warn("feed: ws connection failed", "id", w.handler.ID(), "err", err, "retry", retry, "wait", delay)
			retry++
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.process(ctx)
	}
}

// Write sends a text message; safe for concurrent use.
func (w *WSWorker) Write(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("ws not connected")
	}
	c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.WriteMessage(websocket.TextMessage, data)
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", "shortsbot/1.0")

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), header)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, w); err != nil {
		w.close()
		return fmt.Errorf("OnConnect: %w", err)
	}

	slog.Info("feed: ws connected", "id", w.handler.ID())
	return nil
}

func (w *WSWorker) process(ctx context.Context) {
	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()
	if c == nil {
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if w.PingInterval > 0 {
		go w.pingLoop(connCtx, c)
	}
	// cerrar la conexión desbloquea ReadMessage al cancelar ctx
	go func() {
		<-connCtx.Done()
		w.closeConn(c)
	}()

	for {
		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("feed: ws read error", "id", w.handler.ID(), "err", err)
			}
			w.closeConn(c)
			return
		}
		w.handler.OnMessage(ctx, msg)
	}
}

func (w *WSWorker) pingLoop(ctx context.Context, c *websocket.Conn) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			w.writeMu.Unlock()
			if err != nil {
				slog.Warn("feed: ws ping error", "id", w.handler.ID(), "err", err)
				w.closeConn(c)
				return
			}
		}
	}
}

// closeConn cierra c y lo desasocia si sigue siendo la conexión activa.
func (w *WSWorker) closeConn(c *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c.Close()
	if w.conn == c {
		w.conn = nil
	}
}

func (w *WSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
