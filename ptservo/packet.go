package ptservo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Code is the command byte of a packet.
type Code byte

const (
	CodeAbsolute Code = 'a'
	CodeRelative Code = 'r'
	CodeStatus   Code = '?'
)

func (c Code) String() string {
	if c >= ' ' && c <= '~' {
		return fmt.Sprintf("%q", rune(c))
	}
	return fmt.Sprintf("Code(%d)", byte(c))
}

// PacketSize is the length of every binary command.
//
//	offset 0: angle1, int32 little-endian
//	offset 4: angle2, int32 little-endian
//	offset 8: command code
//	offset 9: reserved, 0
const PacketSize = 10

var (
	ErrInvalidCommandCode = errors.New("command code cannot be 0")
	ErrShortPacket        = errors.New("packet is not 10 bytes")
	ErrBadPacket          = errors.New("malformed packet")
	ErrAngleRange         = errors.New("angle cannot be encoded")
)

// EncodeAngle scales an angle in degrees to its wire value. Angles are
// offset by 180 so that valid values are positive and 0 stays free as a
// marker; an angle that would encode to 0 is sent as 1.
func EncodeAngle(degrees float64) int32 {
	v := int32(math.Round((degrees + 180) * 100))
	if v == 0 {
		v = 1
	}
	return v
}

// checkAngle reports whether EncodeAngle is defined for degrees.
func checkAngle(degrees float64) error {
	v := math.Round((degrees + 180) * 100)
	if math.IsNaN(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("%v: %w", degrees, ErrAngleRange)
	}
	return nil
}

func DecodeAngle(v int32) float64 {
	return float64(v)/100 - 180
}

type Packet struct {
	Code   Code
	Angle1 float64
	Angle2 float64
}

func EncodePacket(code Code, angle1, angle2 float64) ([]byte, error) {
	if code == 0 {
		return nil, ErrInvalidCommandCode
	}
	for _, a := range []float64{angle1, angle2} {
		if err := checkAngle(a); err != nil {
			return nil, err
		}
	}
	b := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(EncodeAngle(angle1)))
	binary.LittleEndian.PutUint32(b[4:8], uint32(EncodeAngle(angle2)))
	b[8] = byte(code)
	b[9] = 0
	return b, nil
}

func (p Packet) MarshalBinary() ([]byte, error) {
	return EncodePacket(p.Code, p.Angle1, p.Angle2)
}

// DecodePacket parses a packet as the actuator would.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("%d bytes: %w", len(b), ErrShortPacket)
	}
	a1 := int32(binary.LittleEndian.Uint32(b[0:4]))
	a2 := int32(binary.LittleEndian.Uint32(b[4:8]))
	switch {
	case b[8] == 0:
		return Packet{}, ErrInvalidCommandCode
	case b[9] != 0:
		return Packet{}, fmt.Errorf("reserved byte %#x: %w", b[9], ErrBadPacket)
	case a1 == 0 || a2 == 0:
		return Packet{}, fmt.Errorf("zero angle field: %w", ErrBadPacket)
	}
	return Packet{
		Code:   Code(b[8]),
		Angle1: DecodeAngle(a1),
		Angle2: DecodeAngle(a2),
	}, nil
}
