package ptservo

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/w1xm/scara_interface/arm"
)

const (
	posPrefix   = "pos:"
	readyPrefix = "ready"
)

func parseCoord(input string) (float64, error) {
	f, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, err
	}
	// FormatFloat rounds the exact binary value with ties to even.
	return strconv.ParseFloat(strconv.FormatFloat(f, 'f', 1, 64), 64)
}

// parsePosition parses the body of a "pos: <x> <y> <p1> <p2>" line.
func parsePosition(body string) (arm.Position, []string, error) {
	fields := strings.Fields(body)
	if len(fields) != 4 {
		return arm.Position{}, nil, fmt.Errorf("got %d fields, want 4", len(fields))
	}
	x, err := parseCoord(fields[0])
	if err != nil {
		return arm.Position{}, nil, err
	}
	y, err := parseCoord(fields[1])
	if err != nil {
		return arm.Position{}, nil, err
	}
	return arm.Position{X: x, Y: y}, fields[2:], nil
}

// Parse applies every line of text to status and returns the lines that were
// neither position nor readiness reports. Malformed position lines are
// logged and dropped. The returned text is also stored as
// status.LastResponse.
func Parse(status *arm.Status, text string) string {
	split := strings.Split(text, "\n")
	if split[len(split)-1] == "" {
		split = split[:len(split)-1]
	}
	var lines []string
	for _, line := range split {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, posPrefix):
			pos, peer, err := parsePosition(line[len(posPrefix):])
			if err != nil {
				log.Printf("parsing %q: %v", line, err)
				continue
			}
			status.Position = &pos
			status.PeerPosition = peer
		case strings.HasPrefix(line, readyPrefix):
			status.Ready = true
		default:
			lines = append(lines, line)
		}
	}
	status.LastResponse = strings.Join(lines, "\n")
	return status.LastResponse
}
