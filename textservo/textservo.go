// Package textservo drives an actuator that accepts ASCII move commands:
//
//	a <angle1> <angle2>
//	r <delta1> <delta2>
//
// The actuator's replies are not read.
package textservo

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/w1xm/scara_interface/arm"
)

type Controller struct {
	w io.Writer
}

var _ arm.Mover = (*Controller)(nil)

func New(w io.Writer) *Controller {
	return &Controller{w: w}
}

func (c *Controller) send(cmd string) error {
	if _, err := io.WriteString(c.w, cmd+"\n"); err != nil {
		return fmt.Errorf("writing %q: %w", cmd, err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (c *Controller) MoveAbsolute(angle1, angle2 float64) error {
	return c.send(fmt.Sprintf("a %s %s", formatFloat(angle1), formatFloat(angle2)))
}

// MoveRelative rounds both deltas to whole units.
func (c *Controller) MoveRelative(delta1, delta2 float64) error {
	return c.send(fmt.Sprintf("r %d %d", int64(math.Round(delta1)), int64(math.Round(delta2))))
}
