package arm

// Offset corrects absolute moves for joints whose mechanical zero differs
// from the kinematic zero. Offsets are in degrees and are subtracted from
// requested angles; relative moves pass through unchanged.
type Offset struct {
	Mover
	Offset1, Offset2 float64
}

func (o *Offset) MoveAbsolute(angle1, angle2 float64) error {
	return o.Mover.MoveAbsolute(angle1-o.Offset1, angle2-o.Offset2)
}

// polledOffset is an Offset over a mover that also reports telemetry.
type polledOffset struct {
	*Offset
	Poller
}

// NewOffset wraps m. The result implements Poller only if m does.
func NewOffset(m Mover, offset1, offset2 float64) Mover {
	o := &Offset{Mover: m, Offset1: offset1, Offset2: offset2}
	if p, ok := m.(Poller); ok {
		return &polledOffset{Offset: o, Poller: p}
	}
	return o
}
