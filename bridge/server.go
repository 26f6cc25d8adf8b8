package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	ErrConnection = errors.New("simulator connection error")
	ErrDecode     = errors.New("malformed simulator frame")
	ErrLockstep   = errors.New("lockstep violation")
	ErrDirectPost = errors.New("instruction posts must be queued with Post")
)

// Config describes where and how the bridge listens.
type Config struct {
	Addr string
	// TransportTCP (default) or TransportWebSocket
	Transport string
	// websocket upgrade path
	Path string
	// 0 blocks forever, which is what the lockstep protocol expects
	IOTimeout    time.Duration
	MaxFrameSize int
}

func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:57722",
		Transport:    TransportTCP,
		Path:         DefaultWebSocketPath,
		MaxFrameSize: DefaultMaxFrameSize,
	}
}

func (c Config) maxFrameSize() int {
	if c.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

func (c Config) wsPath() string {
	if c.Path == "" {
		return DefaultWebSocketPath
	}
	return c.Path
}

type direction int

const (
	expectSend direction = iota
	expectReceive
)

func (d direction) String() string {
	if d == expectSend {
		return "send"
	}
	return "receive"
}

// Server is the agent side of the bridge. It accepts one simulator
// connection and then alternates Send and Receive, starting with Send.
// A Server is not safe for concurrent use apart from Close.
type Server struct {
	config Config
	codec  Codec
	logger *log.Logger
	queue  *PostQueue

	// guards listener and conn against Close from another goroutine
	mu       sync.Mutex
	listener Listener
	conn     Transport
	next     direction
	broken   error

	closeOnce sync.Once
	closed    chan struct{}

	sent     uint64
	received uint64
}

type ServerOption func(*Server)

func WithCodec(c Codec) ServerOption {
	return func(s *Server) {
		s.codec = c
	}
}

func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

func NewServer(config Config, opts ...ServerOption) *Server {
	s := &Server{
		config: config,
		codec:  JSONCodec{},
		logger: log.New(io.Discard),
		queue:  NewPostQueue(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the configured address. Accept calls it when needed.
func (s *Server) Listen() error {
	if s.isClosed() {
		return fmt.Errorf("%w: server closed", ErrConnection)
	}
	if s.listener != nil {
		return nil
	}
	l, err := listen(s.config)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %w", ErrConnection, s.config.Addr, err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("bridge listening", "addr", l.Addr(), "transport", s.transportName())
	return nil
}

// Addr is the bound address, empty before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// Accept blocks until a simulator connects. The listener is released
// afterwards, so a Server only ever serves one connection.
func (s *Server) Accept(ctx context.Context) error {
	if s.conn != nil {
		return fmt.Errorf("%w: already connected", ErrConnection)
	}
	if err := s.Listen(); err != nil {
		return err
	}
	conn, err := s.listener.Accept(ctx)
	if cerr := s.listener.Close(); cerr != nil {
		s.logger.Debug("closing listener", "err", cerr)
	}
	if err != nil {
		return fmt.Errorf("%w: accept: %w", ErrConnection, err)
	}
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%w: server closed", ErrConnection)
	}
	s.conn = conn
	s.mu.Unlock()
	s.next = expectSend
	s.logger.Info("simulator connected", "remote", conn.RemoteAddr())
	return nil
}

// Post queues a control message for the next Send. Queued posts are dropped
// from the queue only after they were written successfully.
func (s *Server) Post(key, value string) {
	s.queue.Push(key, value)
}

func (s *Server) Queue() *PostQueue {
	return s.queue
}

// Send writes the instruction together with any queued posts. Posts only
// leave through the queue, so an instruction that already carries posts is
// rejected without side effects.
func (s *Server) Send(instr Instruction) error {
	if err := s.ready(expectSend); err != nil {
		return err
	}
	if len(instr.Posts) > 0 {
		return fmt.Errorf("%w: %d posts set on the instruction", ErrDirectPost, len(instr.Posts))
	}
	instr.Posts = s.queue.pending()
	payload, err := s.codec.Encode(instr)
	if err != nil {
		return err
	}
	if err := s.conn.WriteFrame(payload); err != nil {
		return s.fail("write", err)
	}
	if s.queue.Len() > 0 {
		s.logger.Debug("posts delivered", "keys", s.queue.drain(), "total", s.queue.Delivered())
	}
	s.sent++
	s.next = expectReceive
	return nil
}

// Receive reads and decodes the next snapshot.
func (s *Server) Receive() (*Snapshot, error) {
	if err := s.ready(expectReceive); err != nil {
		return nil, err
	}
	frame, err := s.conn.ReadFrame()
	if err != nil {
		if errors.Is(err, errFrameTooLarge) {
			s.broken = fmt.Errorf("%w: %w", ErrDecode, err)
			return nil, s.broken
		}
		return nil, s.fail("read", err)
	}
	snapshot, err := s.codec.Decode(frame)
	if err != nil {
		// the stream may still be intact but the tick is lost, so the
		// lockstep cannot continue
		s.broken = err
		return nil, err
	}
	s.received++
	s.next = expectSend
	return snapshot, nil
}

// Stats returns the number of instructions sent and snapshots received.
func (s *Server) Stats() (sent, received uint64) {
	return s.sent, s.received
}

// Close releases the listener and the connection. It is safe to call more
// than once and from another goroutine to unblock a pending Receive.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		close(s.closed)
		if s.listener != nil {
			if lerr := s.listener.Close(); lerr != nil {
				err = lerr
			}
		}
		if s.conn != nil {
			if cerr := s.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		s.logger.Debug("bridge closed")
	})
	return err
}

func (s *Server) ready(want direction) error {
	if s.isClosed() {
		return fmt.Errorf("%w: server closed", ErrConnection)
	}
	if s.broken != nil {
		return fmt.Errorf("%w: connection unusable after %w", ErrConnection, s.broken)
	}
	if s.conn == nil {
		return fmt.Errorf("%w: no simulator connected", ErrConnection)
	}
	if s.next != want {
		return fmt.Errorf("%w: %s called while waiting for %s", ErrLockstep, want, s.next)
	}
	return nil
}

func (s *Server) fail(op string, err error) error {
	if s.isClosed() {
		err = fmt.Errorf("%w: %s: server closed: %w", ErrConnection, op, err)
	} else if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("%w: %s: simulator disconnected: %w", ErrConnection, op, err)
	} else {
		err = fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
	}
	s.broken = err
	return err
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) transportName() string {
	if s.config.Transport == "" {
		return TransportTCP
	}
	return s.config.Transport
}
