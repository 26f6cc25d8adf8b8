package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gorilla/websocket"
)

const pausedFrame = `{"NAV_X":1,"NAV_Y":2,"VNAME":"felix","HELM_TIME":3,"NODE_REPORTS":{},"EPISODE_MNGR_STATE":"PAUSED"}`

func testConfig() Config {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:0"
	config.IOTimeout = 5 * time.Second
	return config
}

// connect starts a server and dials it over tcp. The returned conn is the
// simulator end.
func connect(t *testing.T, config Config) (*Server, net.Conn) {
	t.Helper()
	s := NewServer(config)
	t.Cleanup(func() { s.Close() })
	if err := s.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	dialed := make(chan net.Conn, 1)
	dialErr := make(chan error, 1)
	go func() {
		conn, err := net.Dial("tcp", s.Addr())
		if err != nil {
			dialErr <- err
			return
		}
		dialed <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	select {
	case conn := <-dialed:
		t.Cleanup(func() { conn.Close() })
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		return s, conn
	case err := <-dialErr:
		t.Fatalf("dial: %v", err)
	}
	return nil, nil
}

func readInstruction(t *testing.T, conn net.Conn) instructionWire {
	t.Helper()
	frame, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("read instruction: %v", err)
	}
	var instr instructionWire
	if err := json.Unmarshal(frame, &instr); err != nil {
		t.Fatalf("unmarshal instruction %s: %v", frame, err)
	}
	return instr
}

func TestServerExchange(t *testing.T) {
	s, conn := connect(t, testConfig())

	s.Post("EPISODE_MNGR_CTRL", "type=start")
	if err := s.Send(Instruction{Speed: 1.5, Course: 90}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := readInstruction(t, conn)
	want := instructionWire{
		Speed:  1.5,
		Course: 90,
		Posts:  map[string]string{"EPISODE_MNGR_CTRL": "type=start"},
		Ctrl:   CtrlSendState,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("instruction mismatch (-want +got):\n%s", diff)
	}
	if s.Queue().Len() != 0 {
		t.Fatalf("post still queued after a successful send: %v", s.Queue().Keys())
	}

	if err := WriteFrame(conn, []byte(pausedFrame)); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	snapshot, err := s.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if snapshot.VName != "felix" || snapshot.ManagerState != ManagerPaused || snapshot.HasReport() {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	// posts go out at most once
	if err := s.Send(Instruction{Ctrl: CtrlPause}); err != nil {
		t.Fatalf("second send: %v", err)
	}
	got = readInstruction(t, conn)
	if len(got.Posts) != 0 {
		t.Fatalf("post delivered twice: %v", got.Posts)
	}
	if got.Ctrl != CtrlPause {
		t.Fatalf("ctrl = %q, want PAUSE", got.Ctrl)
	}

	sent, received := s.Stats()
	if sent != 2 || received != 1 {
		t.Fatalf("Stats() = %d, %d", sent, received)
	}
	if s.Queue().Delivered() != 1 {
		t.Fatalf("Delivered() = %d, want 1", s.Queue().Delivered())
	}
}

func TestServerLockstep(t *testing.T) {
	s, conn := connect(t, testConfig())

	if _, err := s.Receive(); !errors.Is(err, ErrLockstep) {
		t.Fatalf("receive before send: expected ErrLockstep, got %v", err)
	}
	if err := s.Send(Instruction{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	s.Post("FLAG_GRAB_REQUEST", "vname=felix")
	if err := s.Send(Instruction{}); !errors.Is(err, ErrLockstep) {
		t.Fatalf("double send: expected ErrLockstep, got %v", err)
	}
	if s.Queue().Len() != 1 {
		t.Fatalf("rejected send consumed the post queue")
	}
	if sent, _ := s.Stats(); sent != 1 {
		t.Fatalf("rejected send was counted: sent = %d", sent)
	}

	// the violation has no side effects, the exchange continues
	readInstruction(t, conn)
	if err := WriteFrame(conn, []byte(pausedFrame)); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if _, err := s.Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := s.Send(Instruction{}); err != nil {
		t.Fatalf("send after receive: %v", err)
	}
	if got := readInstruction(t, conn); got.Posts["FLAG_GRAB_REQUEST"] != "vname=felix" {
		t.Fatalf("queued post missing: %v", got.Posts)
	}
}

func TestServerRejectsDirectPosts(t *testing.T) {
	s, conn := connect(t, testConfig())

	s.Post("EPISODE_MNGR_CTRL", "type=start")
	instr := Instruction{Speed: 1, Posts: map[string]string{"FLAG_GRAB_REQUEST": "vname=felix"}}
	if err := s.Send(instr); !errors.Is(err, ErrDirectPost) {
		t.Fatalf("expected ErrDirectPost, got %v", err)
	}
	if sent, _ := s.Stats(); sent != 0 || s.Queue().Len() != 1 {
		t.Fatalf("rejected send had side effects: sent %d, queued %v", sent, s.Queue().Keys())
	}

	// the same instruction value can be reused once its posts are queued
	for k, v := range instr.Posts {
		s.Post(k, v)
	}
	instr.Posts = nil
	for i := 0; i < 2; i++ {
		if err := s.Send(instr); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		got := readInstruction(t, conn)
		want := map[string]string{"EPISODE_MNGR_CTRL": "type=start", "FLAG_GRAB_REQUEST": "vname=felix"}
		if i > 0 {
			want = map[string]string{}
		}
		if diff := cmp.Diff(want, got.Posts, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("send %d posts mismatch (-want +got):\n%s", i, diff)
		}
		if err := WriteFrame(conn, []byte(pausedFrame)); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
		if _, err := s.Receive(); err != nil {
			t.Fatalf("receive: %v", err)
		}
	}
	if s.Queue().Delivered() != 2 {
		t.Fatalf("Delivered() = %d, want 2", s.Queue().Delivered())
	}
}

func TestServerDisconnect(t *testing.T) {
	s, conn := connect(t, testConfig())

	if err := s.Send(Instruction{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	readInstruction(t, conn)
	conn.Close()

	if _, err := s.Receive(); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}

	s.Post("EPISODE_MNGR_CTRL", "type=hardstop")
	if err := s.Send(Instruction{}); !errors.Is(err, ErrConnection) {
		t.Fatalf("send after disconnect: expected ErrConnection, got %v", err)
	}
	if _, err := s.Receive(); !errors.Is(err, ErrConnection) {
		t.Fatalf("receive after disconnect: expected ErrConnection, got %v", err)
	}
	if s.Queue().Len() != 1 {
		t.Fatalf("undelivered post was dropped")
	}
}

func TestServerDecodeError(t *testing.T) {
	s, conn := connect(t, testConfig())

	if err := s.Send(Instruction{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	readInstruction(t, conn)
	if err := WriteFrame(conn, []byte(`{"NAV_X": 1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Receive(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if err := s.Send(Instruction{}); !errors.Is(err, ErrConnection) {
		t.Fatalf("send after decode error: expected ErrConnection, got %v", err)
	}
}

func TestServerOversizedFrame(t *testing.T) {
	config := testConfig()
	config.MaxFrameSize = 64
	s, conn := connect(t, config)

	if err := s.Send(Instruction{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	readInstruction(t, conn)
	if err := WriteFrame(conn, []byte(strings.Repeat(" ", 1024))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Receive(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestServerCloseUnblocksReceive(t *testing.T) {
	config := testConfig()
	config.IOTimeout = 0
	s, conn := connect(t, config)

	if err := s.Send(Instruction{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	readInstruction(t, conn)

	done := make(chan error, 1)
	go func() {
		_, err := s.Receive()
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Receive still blocked after Close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestServerAcceptCanceled(t *testing.T) {
	s := NewServer(testConfig())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := s.Accept(ctx)
	if !errors.Is(err, ErrConnection) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled ErrConnection, got %v", err)
	}
}

func TestServerNotConnected(t *testing.T) {
	s := NewServer(testConfig())
	defer s.Close()
	if err := s.Send(Instruction{}); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestServerUnknownTransport(t *testing.T) {
	config := testConfig()
	config.Transport = "udp"
	s := NewServer(config)
	defer s.Close()
	if err := s.Listen(); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestWebSocketTransport(t *testing.T) {
	config := testConfig()
	config.Transport = TransportWebSocket
	s := NewServer(config)
	defer s.Close()
	if err := s.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	url := "ws://" + s.Addr() + DefaultWebSocketPath

	type dialResult struct {
		conn *websocket.Conn
		err  error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		dialed <- dialResult{conn, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	res := <-dialed
	if res.err != nil {
		t.Fatalf("dial: %v", res.err)
	}
	client := res.conn
	defer client.Close()

	s.Post("EPISODE_MNGR_CTRL", "type=start")
	if err := s.Send(Instruction{Speed: 2, Course: 180}); err != nil {
		t.Fatalf("send: %v", err)
	}
	kind, frame, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", kind)
	}
	var instr instructionWire
	if err := json.Unmarshal(frame, &instr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if instr.Course != 180 || instr.Posts["EPISODE_MNGR_CTRL"] != "type=start" {
		t.Fatalf("unexpected instruction %s", frame)
	}

	if err := client.WriteMessage(websocket.TextMessage, []byte(pausedFrame)); err != nil {
		t.Fatalf("client write: %v", err)
	}
	snapshot, err := s.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if snapshot.NavX != 1 || snapshot.NavY != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	// a single simulator per bridge
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("second simulator was accepted")
	}
}
