package bridge

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"

	DefaultMaxFrameSize = 4 << 20

	frameHeaderSize = 4
)

var errFrameTooLarge = errors.New("frame exceeds size limit")

// Transport moves whole frames over an accepted connection.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
	RemoteAddr() string
}

// Listener produces exactly one Transport.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Addr() string
	Close() error
}

func listen(config Config) (Listener, error) {
	switch config.Transport {
	case "", TransportTCP:
		return listenTCP(config)
	case TransportWebSocket:
		return listenWebSocket(config)
	default:
		return nil, fmt.Errorf("unknown transport %q", config.Transport)
	}
}

type tcpListener struct {
	ln     net.Listener
	config Config
}

func listenTCP(config Config) (*tcpListener, error) {
	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln, config: config}, nil
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (l *tcpListener) Accept(ctx context.Context) (Transport, error) {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return newTCPTransport(conn, l.config), nil
}

// tcpTransport frames payloads with a 4 byte big-endian length prefix.
type tcpTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	limit   int

	closeOnce sync.Once
	closeErr  error
}

func newTCPTransport(conn net.Conn, config Config) *tcpTransport {
	return &tcpTransport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: config.IOTimeout,
		limit:   config.maxFrameSize(),
	}
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *tcpTransport) ReadFrame() ([]byte, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, err
		}
	}
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(t.reader, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(t.limit) {
		return nil, fmt.Errorf("%w: %d > %d bytes", errFrameTooLarge, size, t.limit)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(t.reader, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

func (t *tcpTransport) WriteFrame(payload []byte) error {
	if len(payload) > t.limit {
		return fmt.Errorf("%w: %d > %d bytes", errFrameTooLarge, len(payload), t.limit)
	}
	if t.timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			return err
		}
	}
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	_, err := t.conn.Write(buf)
	return err
}

func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// WriteFrame writes one length-prefixed frame to w. It is the client half of
// the tcp transport, used by simulator-side shims and tests.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(header[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
