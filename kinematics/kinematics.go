// Package kinematics converts between joint angles and tool position for a
// two-link planar arm.
package kinematics

import (
	"errors"
	"fmt"
	"math"
)

// ErrTargetUnreachable is returned by Inverse when no joint configuration
// places the tool at the requested point.
var ErrTargetUnreachable = errors.New("target is unreachable")

// Unit selects how joint angles are expressed at the call boundary.
type Unit int

const (
	Radians Unit = iota
	Degrees
)

func (u Unit) String() string {
	switch u {
	case Radians:
		return "radians"
	case Degrees:
		return "degrees"
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Joints struct {
	T1 float64 `json:"t1"`
	T2 float64 `json:"t2"`
}

// Solver holds the fixed link lengths of an arm.
type Solver struct {
	l1, l2 float64
}

func New(l1, l2 float64) (*Solver, error) {
	if !(l1 > 0) || !(l2 > 0) {
		return nil, fmt.Errorf("link lengths must be positive, got %v and %v", l1, l2)
	}
	return &Solver{l1: l1, l2: l2}, nil
}

// MustNew is like New but panics on invalid link lengths.
func MustNew(l1, l2 float64) *Solver {
	s, err := New(l1, l2)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Solver) Lengths() (float64, float64) {
	return s.l1, s.l2
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

// round scales, rounds half to even, and scales back.
func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.RoundToEven(x*p) / p
}

// Forward returns the tool position for the given joint angles, rounded to
// two decimal places.
func (s *Solver) Forward(t1, t2 float64, unit Unit) Point {
	if unit == Degrees {
		t1, t2 = deg2rad(t1), deg2rad(t2)
	}
	x := s.l1*math.Cos(t1) - s.l2*math.Cos(t1-t2)
	y := s.l1*math.Sin(t1) - s.l2*math.Sin(t1-t2)
	return Point{X: round(x, 2), Y: round(y, 2)}
}

// Inverse returns the elbow-down joint angles that place the tool at p.
//
// The second joint is reported as pi minus the interior elbow angle, which
// is the convention Forward expects. It is not the textbook +/-acos form.
func (s *Solver) Inverse(p Point, unit Unit) (Joints, error) {
	r2 := p.X*p.X + p.Y*p.Y
	cosT2 := (r2 - s.l1*s.l1 - s.l2*s.l2) / (2 * s.l1 * s.l2)
	if math.Abs(cosT2) > 1 {
		return Joints{}, fmt.Errorf("(%v, %v): %w", p.X, p.Y, ErrTargetUnreachable)
	}
	elbow := math.Acos(cosT2)

	k1 := s.l1 + s.l2*math.Cos(elbow)
	k2 := s.l2 * math.Sin(elbow)
	t1 := math.Atan2(p.Y, p.X) - math.Atan2(k2, k1)
	t2 := math.Pi - elbow

	if unit == Degrees {
		t1, t2 = rad2deg(t1), rad2deg(t2)
	}
	return Joints{T1: t1, T2: t2}, nil
}

// Reachable reports whether Inverse would succeed for p.
func (s *Solver) Reachable(p Point) bool {
	_, err := s.Inverse(p, Radians)
	return err == nil
}
