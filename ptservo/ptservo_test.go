package ptservo

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/scara_interface/arm"
)

// fakePort queues replies[n] for reading after the n-th write (1-based).
type fakePort struct {
	writes   [][]byte
	replies  map[int]string
	in       bytes.Buffer
	writeErr error
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	if r, ok := f.replies[len(f.writes)]; ok {
		f.in.WriteString(r)
	}
	return len(p), nil
}

func (f *fakePort) Buffered() int {
	return f.in.Len()
}

func (f *fakePort) ReadAvailable() ([]byte, error) {
	b := append([]byte(nil), f.in.Bytes()...)
	f.in.Reset()
	return b, nil
}

func (f *fakePort) codes() []Code {
	var out []Code
	for _, w := range f.writes {
		out = append(out, Code(w[8]))
	}
	return out
}

var testConfig = Config{
	MaxAttempts:       DefaultMaxAttempts,
	HandshakeInterval: time.Millisecond,
	SettleInterval:    time.Millisecond,
}

func statusQueries(n int) []Code {
	out := make([]Code, n)
	for i := range out {
		out[i] = CodeStatus
	}
	return out
}

func TestHandshake(t *testing.T) {
	port := &fakePort{replies: map[int]string{
		1: "booting\n",
		3: "ready\n",
	}}
	c := New(port, testConfig)
	if got := c.State(); got != AwaitingReady {
		t.Fatalf("State() = %v, want AWAITING_READY", got)
	}
	if err := c.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if got := c.State(); got != Ready {
		t.Errorf("State() = %v, want READY", got)
	}
	if diff := cmp.Diff(port.codes(), statusQueries(3)); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
	for _, w := range port.writes {
		if diff := cmp.Diff(w, []byte{0x50, 0x46, 0, 0, 0x50, 0x46, 0, 0, '?', 0}); diff != "" {
			t.Errorf("unexpected status query: got(-)/want(+):\n%s", diff)
		}
	}
	// A second handshake on a ready controller is a no-op.
	if err := c.Handshake(); err != nil {
		t.Errorf("Handshake: %v", err)
	}
	if len(port.writes) != 3 {
		t.Errorf("%d writes after second handshake, want 3", len(port.writes))
	}
}

func TestHandshakeExhausted(t *testing.T) {
	port := &fakePort{replies: map[int]string{2: "still booting\n"}}
	c, err := Connect(port, testConfig)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Connect = %v, want ErrConnection", err)
	}
	if c != nil {
		t.Errorf("Connect returned a controller on failure")
	}
	if diff := cmp.Diff(port.codes(), statusQueries(DefaultMaxAttempts)); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
}

func TestFaulted(t *testing.T) {
	port := &fakePort{}
	c := New(port, Config{MaxAttempts: 2, HandshakeInterval: time.Millisecond})
	if err := c.Handshake(); !errors.Is(err, ErrConnection) {
		t.Fatalf("Handshake = %v, want ErrConnection", err)
	}
	if got := c.State(); got != Faulted {
		t.Fatalf("State() = %v, want FAULTED", got)
	}
	n := len(port.writes)
	if n != 2 {
		t.Errorf("%d writes, want 2", n)
	}
	for name, f := range map[string]func() error{
		"MoveAbsolute": func() error { return c.MoveAbsolute(1, 2) },
		"MoveRelative": func() error { return c.MoveRelative(1, 2) },
		"StatusQuery": func() error {
			_, err := c.StatusQuery()
			return err
		},
		"Handshake": c.Handshake,
	} {
		if err := f(); !errors.Is(err, ErrFaulted) {
			t.Errorf("%s = %v, want ErrFaulted", name, err)
		}
	}
	if len(port.writes) != n {
		t.Errorf("faulted controller wrote %d packets", len(port.writes)-n)
	}
}

func TestHandshakeWriteError(t *testing.T) {
	port := &fakePort{writeErr: errors.New("port closed")}
	c := New(port, testConfig)
	if err := c.Handshake(); !errors.Is(err, ErrConnection) {
		t.Fatalf("Handshake = %v, want ErrConnection", err)
	}
	if got := c.State(); got != Faulted {
		t.Errorf("State() = %v, want FAULTED", got)
	}
}

func TestNotReady(t *testing.T) {
	port := &fakePort{}
	c := New(port, testConfig)
	if err := c.MoveAbsolute(1, 2); !errors.Is(err, ErrNotReady) {
		t.Errorf("MoveAbsolute = %v, want ErrNotReady", err)
	}
	if len(port.writes) != 0 {
		t.Errorf("wrote %d packets before handshake", len(port.writes))
	}
}

func TestCommands(t *testing.T) {
	port := &fakePort{replies: map[int]string{
		1: "ready\n",
		// Telemetry that arrives around a move is picked up by the move.
		2: "pos: 1.04 2.06 90 45\nmoving\n",
		4: "pos: 3.3 4.4",
		5: " 5 6\nidle\n",
	}}
	c, err := Connect(port, testConfig)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.MoveAbsolute(90, 45); err != nil {
		t.Fatalf("MoveAbsolute: %v", err)
	}
	want := arm.Status{
		Position:     &arm.Position{X: 1, Y: 2.1},
		PeerPosition: []string{"90", "45"},
		Ready:        true,
		LastResponse: "moving",
	}
	if diff := cmp.Diff(c.Status(), want); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}

	if err := c.MoveRelative(-10, 5); err != nil {
		t.Fatalf("MoveRelative: %v", err)
	}
	// The first half of a line is held until the rest arrives.
	text, err := c.StatusQuery()
	if err != nil {
		t.Fatalf("StatusQuery: %v", err)
	}
	if text != "" {
		t.Errorf("StatusQuery = %q, want empty", text)
	}
	text, err = c.StatusQuery()
	if err != nil {
		t.Fatalf("StatusQuery: %v", err)
	}
	if text != "idle" {
		t.Errorf("StatusQuery = %q, want %q", text, "idle")
	}
	want = arm.Status{
		Position:     &arm.Position{X: 3.3, Y: 4.4},
		PeerPosition: []string{"5", "6"},
		Ready:        true,
		LastResponse: "idle",
	}
	if diff := cmp.Diff(c.Status(), want); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}

	if diff := cmp.Diff(port.codes(), []Code{CodeStatus, CodeAbsolute, CodeRelative, CodeStatus, CodeStatus}); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
	p, err := DecodePacket(port.writes[2])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, Packet{Code: CodeRelative, Angle1: -10, Angle2: 5}); diff != "" {
		t.Errorf("unexpected packet: got(-)/want(+):\n%s", diff)
	}
}

func TestStatusIsCopy(t *testing.T) {
	port := &fakePort{replies: map[int]string{1: "ready\npos: 1 2 3 4\n"}}
	c, err := Connect(port, testConfig)
	if err != nil {
		t.Fatal(err)
	}
	s := c.Status()
	s.Position.X = 100
	s.PeerPosition[0] = "x"
	if got := c.Status(); got.Position.X != 1 || got.PeerPosition[0] != "3" {
		t.Errorf("Status() shares memory with the controller: %+v", got)
	}
}

func TestMoveAngleRange(t *testing.T) {
	port := &fakePort{replies: map[int]string{1: "ready\n"}}
	c, err := Connect(port, testConfig)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.MoveRelative(math.NaN(), 0); !errors.Is(err, ErrAngleRange) {
		t.Errorf("MoveRelative(NaN) = %v, want ErrAngleRange", err)
	}
	if err := c.MoveAbsolute(0, 1e9); !errors.Is(err, ErrAngleRange) {
		t.Errorf("MoveAbsolute(0, 1e9) = %v, want ErrAngleRange", err)
	}
	if len(port.writes) != 1 {
		t.Errorf("%d writes, want only the handshake query", len(port.writes))
	}
	if got := c.State(); got != Ready {
		t.Errorf("State() = %v, want READY", got)
	}
}
