package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultWebSocketPath = "/bridge"

// wsListener serves a single websocket upgrade. Once a simulator has
// connected every further request is refused and the HTTP server shuts down.
type wsListener struct {
	ln       net.Listener
	server   *http.Server
	config   Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	taken    bool
	accepted chan *websocket.Conn
	serveErr chan error
}

func listenWebSocket(config Config) (*wsListener, error) {
	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		ln:     ln,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		accepted: make(chan *websocket.Conn, 1),
		serveErr: make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(config.wsPath(), l.handle)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.serveErr <- err
		}
	}()
	return l, nil
}

func (l *wsListener) handle(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	if l.taken {
		l.mu.Unlock()
		http.Error(w, "bridge already has a simulator connected", http.StatusServiceUnavailable)
		return
	}
	l.taken = true
	l.mu.Unlock()

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client; let another attempt in
		l.mu.Lock()
		l.taken = false
		l.mu.Unlock()
		return
	}
	l.accepted <- conn
}

func (l *wsListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *wsListener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}

func (l *wsListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case conn := <-l.accepted:
		conn.SetReadLimit(int64(l.config.maxFrameSize()))
		return &wsTransport{conn: conn, timeout: l.config.IOTimeout}, nil
	case err := <-l.serveErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type wsTransport struct {
	conn    *websocket.Conn
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, err
		}
	}
	kind, payload, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected websocket message type %d", kind)
	}
	return payload, nil
}

func (t *wsTransport) WriteFrame(payload []byte) error {
	if t.timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
