package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait = 2 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

// WebSocket serves a websocket endpoint and broadcasts every message to the
// connected clients. Clients that fail a write are dropped.
type WebSocket struct {
	upgrader websocket.Upgrader
	listener net.Listener
	server   *http.Server
	path     string

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

func openWebSocket(u *url.URL) (Transport, error) {
	return NewWebSocket(u.Host, u.Path)
}

// NewWebSocket listens on addr and accepts websocket clients on path.
func NewWebSocket(addr, path string) (*WebSocket, error) {
	if path == "" {
		path = "/"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	t := &WebSocket{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		listener: l,
		path:     path,
		clients:  make(map[*websocket.Conn]*sync.Mutex),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, t.handleWS)
	t.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := t.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("websocket server stopped")
		}
	}()
	return t, nil
}

// Addr is the address the server listens on.
func (t *WebSocket) Addr() net.Addr {
	return t.listener.Addr()
}

// Clients returns the number of connected clients.
func (t *WebSocket) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (t *WebSocket) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeMu := &sync.Mutex{}
	t.mu.Lock()
	t.clients[conn] = writeMu
	t.mu.Unlock()
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("websocket client connected")

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(wsPingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := write(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer t.removeClient(conn)
		// Incoming messages are ignored; reading keeps pongs and close
		// frames flowing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (t *WebSocket) removeClient(conn *websocket.Conn) {
	t.mu.Lock()
	_, ok := t.clients[conn]
	delete(t.clients, conn)
	t.mu.Unlock()
	if ok {
		logrus.WithField("remote", conn.RemoteAddr().String()).Info("websocket client disconnected")
	}
	_ = conn.Close()
}

// Send broadcasts payload as a text frame when it is valid UTF-8 and as a
// binary frame otherwise.
func (t *WebSocket) Send(payload []byte) error {
	messageType := websocket.BinaryMessage
	if utf8.Valid(payload) {
		messageType = websocket.TextMessage
	}

	var stale []*websocket.Conn
	var firstErr error
	t.mu.Lock()
	for conn, writeMu := range t.clients {
		if err := write(conn, writeMu, messageType, payload); err != nil {
			stale = append(stale, conn)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	t.mu.Unlock()
	for _, conn := range stale {
		t.removeClient(conn)
	}
	return firstErr
}

func (t *WebSocket) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := t.server.Shutdown(ctx)

	t.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(t.clients))
	for conn := range t.clients {
		conns = append(conns, conn)
	}
	t.mu.Unlock()
	for _, conn := range conns {
		t.removeClient(conn)
	}
	return err
}

func (t *WebSocket) String() string {
	return "ws://" + t.listener.Addr().String() + t.path
}

func write(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(messageType, payload)
}
