// Package ptservo drives an actuator that accepts 10-byte binary commands
// and reports position and readiness as text lines.
package ptservo

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/w1xm/scara_interface/arm"
)

var (
	// ErrConnection is returned when the actuator never reports ready.
	ErrConnection = errors.New("could not connect to actuator")
	// ErrFaulted is returned by every call after a failed handshake.
	ErrFaulted = errors.New("controller is faulted")
	// ErrNotReady is returned by commands issued before the handshake.
	ErrNotReady = errors.New("controller is not ready")
)

type State int

const (
	Connecting State = iota
	AwaitingReady
	Ready
	Faulted
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case AwaitingReady:
		return "AWAITING_READY"
	case Ready:
		return "READY"
	case Faulted:
		return "FAULTED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

const (
	DefaultMaxAttempts       = 10
	DefaultHandshakeInterval = 1 * time.Second
	DefaultSettleInterval    = 100 * time.Millisecond

	// maxPartialLine bounds the unterminated text kept between reads.
	maxPartialLine = 4096
)

type Config struct {
	// MaxAttempts is the number of status queries sent during the handshake.
	MaxAttempts int
	// HandshakeInterval is the wait between a handshake query and reading its reply.
	HandshakeInterval time.Duration
	// SettleInterval is the wait between a status query and reading its reply.
	SettleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:       DefaultMaxAttempts,
		HandshakeInterval: DefaultHandshakeInterval,
		SettleInterval:    DefaultSettleInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.HandshakeInterval <= 0 {
		c.HandshakeInterval = d.HandshakeInterval
	}
	if c.SettleInterval <= 0 {
		c.SettleInterval = d.SettleInterval
	}
	return c
}

// Controller is not safe for concurrent use.
type Controller struct {
	t      arm.Transport
	cfg    Config
	state  State
	status arm.Status
	// partial is text after the last newline of the previous read.
	partial string
}

var _ arm.Mover = (*Controller)(nil)
var _ arm.Poller = (*Controller)(nil)

// New binds a controller to t, leaving it in AwaitingReady. The controller
// must complete Handshake before it accepts commands.
func New(t arm.Transport, cfg Config) *Controller {
	return &Controller{t: t, cfg: cfg.withDefaults(), state: AwaitingReady}
}

// Connect returns a controller that has completed the handshake.
func Connect(t arm.Transport, cfg Config) (*Controller, error) {
	c := New(t, cfg)
	if err := c.Handshake(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Status() arm.Status {
	return c.status.Clone()
}

// Handshake queries the actuator until it reports ready or the attempt
// budget runs out. A failed handshake leaves the controller faulted.
func (c *Controller) Handshake() error {
	switch c.state {
	case Ready:
		return nil
	case Faulted:
		return ErrFaulted
	}
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.send(CodeStatus, 0, 0); err != nil {
			c.state = Faulted
			return fmt.Errorf("%w: attempt %d: %v", ErrConnection, attempt, err)
		}
		time.Sleep(c.cfg.HandshakeInterval)
		text, err := c.poll()
		if err != nil {
			c.state = Faulted
			return fmt.Errorf("%w: attempt %d: %v", ErrConnection, attempt, err)
		}
		if text != "" {
			log.Printf("handshake attempt %d: %s", attempt, text)
		}
		if c.status.Ready {
			c.state = Ready
			return nil
		}
	}
	c.state = Faulted
	return fmt.Errorf("%w: no ready signal after %d attempts", ErrConnection, c.cfg.MaxAttempts)
}

func (c *Controller) usable() error {
	switch c.state {
	case Ready:
		return nil
	case Faulted:
		return ErrFaulted
	}
	return ErrNotReady
}

// MoveAbsolute commands both joints to the given angles in degrees. It does
// not wait for the move to complete.
func (c *Controller) MoveAbsolute(angle1, angle2 float64) error {
	return c.command(CodeAbsolute, angle1, angle2)
}

// MoveRelative offsets both joints by the given angles in degrees.
func (c *Controller) MoveRelative(delta1, delta2 float64) error {
	return c.command(CodeRelative, delta1, delta2)
}

func (c *Controller) command(code Code, angle1, angle2 float64) error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.send(code, angle1, angle2); err != nil {
		return err
	}
	// Pick up any telemetry that arrived since the last read.
	_, err := c.poll()
	return err
}

// StatusQuery asks the actuator for its status and returns the
// non-telemetry text it sent back.
func (c *Controller) StatusQuery() (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}
	if err := c.send(CodeStatus, 0, 0); err != nil {
		return "", err
	}
	time.Sleep(c.cfg.SettleInterval)
	return c.poll()
}

func (c *Controller) send(code Code, angle1, angle2 float64) error {
	b, err := EncodePacket(code, angle1, angle2)
	if err != nil {
		return err
	}
	if _, err := c.t.Write(b); err != nil {
		return fmt.Errorf("writing %v command: %w", code, err)
	}
	return nil
}

// poll drains the transport and parses every complete line.
func (c *Controller) poll() (string, error) {
	var sb strings.Builder
	sb.WriteString(c.partial)
	for c.t.Buffered() > 0 {
		b, err := c.t.ReadAvailable()
		if err != nil {
			return "", fmt.Errorf("reading: %w", err)
		}
		if len(b) == 0 {
			break
		}
		sb.Write(b)
	}
	text := sb.String()
	c.partial = ""
	if i := strings.LastIndexByte(text, '\n'); i < len(text)-1 && len(text)-i-1 <= maxPartialLine {
		c.partial = text[i+1:]
		text = text[:i+1]
	}
	return Parse(&c.status, text), nil
}
