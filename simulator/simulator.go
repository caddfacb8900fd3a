// Package simulator emulates a two-link arm actuator on the far side of a
// connection.
package simulator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w1xm/scara_interface/kinematics"
	"github.com/w1xm/scara_interface/ptservo"
)

type Mode int

const (
	// Binary accepts 10-byte packets and reports telemetry lines.
	Binary Mode = iota
	// Text accepts "a x y" and "r dx dy" lines and reports nothing.
	Text
)

const (
	// Maximum joint velocity in degrees/second
	maxVel = 180
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
)

// Home is the joint configuration the simulator starts in, in degrees.
var Home = kinematics.Joints{T1: 0, T2: 90}

type Simulator struct {
	conn   io.ReadWriteCloser
	mode   Mode
	solver *kinematics.Solver

	mu       sync.Mutex
	joints   kinematics.Joints
	target   kinematics.Joints
	last     kinematics.Joints
	reported bool
}

// New returns a simulator and the host end of its connection.
func New(mode Mode, solver *kinematics.Solver) (*Simulator, net.Conn) {
	a, b := net.Pipe()
	return &Simulator{
		conn:   a,
		mode:   mode,
		solver: solver,
		joints: Home,
		target: Home,
	}, b
}

// Joints returns the current joint angles in degrees.
func (s *Simulator) Joints() kinematics.Joints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joints
}

// Target returns the commanded joint angles in degrees.
func (s *Simulator) Target() kinematics.Joints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Run processes commands until ctx is canceled or the host closes its end.
func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			if err := s.step(); err != nil {
				return err
			}
		}
	})
	if s.mode == Text {
		g.Go(s.textReader)
	} else {
		g.Go(s.binaryReader)
	}
	return g.Wait()
}

func (s *Simulator) binaryReader() error {
	buf := make([]byte, ptservo.PacketSize)
	for {
		if _, err := io.ReadFull(s.conn, buf); err != nil {
			return err
		}
		p, err := ptservo.DecodePacket(buf)
		if err != nil {
			log.Printf("decoding %x: %v", buf, err)
			s.mu.Lock()
			err = s.send("error: %v", err)
			s.mu.Unlock()
			if err != nil {
				return err
			}
			continue
		}
		if err := s.handle(p); err != nil {
			return err
		}
	}
}

func (s *Simulator) textReader() error {
	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		input := scanner.Text()
		log.Printf("host->sim: %s", input)
		p, err := parseTextCommand(input)
		if err != nil {
			log.Printf("parsing %q: %v", input, err)
			continue
		}
		if err := s.handle(p); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading port: %w", err)
	}
	return io.EOF
}

func parseTextCommand(input string) (ptservo.Packet, error) {
	parts := strings.Fields(input)
	if len(parts) != 3 || len(parts[0]) != 1 {
		return ptservo.Packet{}, fmt.Errorf("unrecognized command")
	}
	p := ptservo.Packet{Code: ptservo.Code(parts[0][0])}
	for i, dest := range []*float64{&p.Angle1, &p.Angle2} {
		f, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return ptservo.Packet{}, err
		}
		*dest = f
	}
	return p, nil
}

func (s *Simulator) handle(p ptservo.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p.Code {
	case ptservo.CodeAbsolute:
		s.target = kinematics.Joints{T1: p.Angle1, T2: p.Angle2}
	case ptservo.CodeRelative:
		s.target.T1 += p.Angle1
		s.target.T2 += p.Angle2
	case ptservo.CodeStatus:
		if err := s.send("ready"); err != nil {
			return err
		}
		return s.sendPosition()
	default:
		return s.send("error: unknown command %v", p.Code)
	}
	return nil
}

// slew moves cur toward target by at most one step's travel.
func slew(cur, target float64) float64 {
	max := maxVel * stepSize.Seconds()
	delta := target - cur
	if math.Abs(delta) <= max {
		return target
	}
	return cur + math.Copysign(max, delta)
}

func (s *Simulator) step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joints.T1 = slew(s.joints.T1, s.target.T1)
	s.joints.T2 = slew(s.joints.T2, s.target.T2)
	if s.mode == Text || (s.reported && s.joints == s.last) {
		return nil
	}
	return s.sendPosition()
}

func (s *Simulator) sendPosition() error {
	p := s.solver.Forward(s.joints.T1, s.joints.T2, kinematics.Degrees)
	s.last = s.joints
	s.reported = true
	return s.send("pos: %.2f %.2f %.2f %.2f", p.X, p.Y, s.joints.T1, s.joints.T2)
}

func (s *Simulator) send(cmd string, fields ...interface{}) error {
	if len(fields) > 0 {
		cmd = fmt.Sprintf(cmd, fields...)
	}
	if s.mode == Text {
		// The text protocol has no replies.
		log.Printf("sim: %s", cmd)
		return nil
	}
	_, err := fmt.Fprintf(s.conn, "%s\n", cmd)
	return err
}
