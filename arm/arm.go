// Package arm defines the capabilities shared by the actuator drivers.
package arm

import (
	"errors"
	"io"
)

// ErrNoTelemetry is returned by status calls on protocols without replies.
var ErrNoTelemetry = errors.New("protocol does not report status")

// Mover is implemented by every actuator protocol. Angles are in degrees.
type Mover interface {
	MoveAbsolute(angle1, angle2 float64) error
	MoveRelative(delta1, delta2 float64) error
}

// Poller is implemented by protocols that report telemetry.
type Poller interface {
	StatusQuery() (string, error)
	Status() Status
}

type StatusCallback func(status Status)

// Transport is a byte stream to the actuator that can be polled without
// blocking.
type Transport interface {
	io.Writer
	// Buffered returns the number of bytes that can be read without blocking.
	Buffered() int
	// ReadAvailable returns the bytes currently buffered, possibly none.
	ReadAvailable() ([]byte, error)
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Status struct {
	// Position is nil until the peer has reported one.
	Position *Position `json:"position"`
	// PeerPosition holds the two extra tokens of the last position line, verbatim.
	PeerPosition []string `json:"peer_position"`
	Ready        bool     `json:"ready"`
	// LastResponse is the non-telemetry text from the most recent read.
	LastResponse string `json:"last_response"`
}

func (s Status) Clone() Status {
	if s.Position != nil {
		p := *s.Position
		s.Position = &p
	}
	if s.PeerPosition != nil {
		s.PeerPosition = append([]string(nil), s.PeerPosition...)
	}
	return s
}
