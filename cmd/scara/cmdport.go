package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/w1xm/scara_interface/kinematics"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = 1 * time.Second
)

// ListenCommands accepts line-oriented command connections on addr until ctx
// is canceled, and returns the address it is listening on.
func (s *Server) ListenCommands(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.serveCommands(ctx, ln)
	return ln.Addr(), nil
}

// serveCommands runs the accept loop until ctx is canceled. Accept errors
// are retried with exponential backoff.
func (s *Server) serveCommands(ctx context.Context, ln net.Listener) {
	backoff := time.Duration(0)
	for {
		conn, err := ln.Accept()
		if err == nil {
			backoff = 0
			go s.handleCommands(conn)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if backoff == 0 {
			backoff = minAcceptBackoff
		} else if backoff *= 2; backoff > maxAcceptBackoff {
			backoff = maxAcceptBackoff
		}
		log.Printf("accepting commands: %v; retrying in %v", err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (s *Server) handleCommands(conn net.Conn) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		s.handleLine(conn, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}

func parseArgs(args []string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("got %d arguments, want 2", len(args))
	}
	a, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// handleLine runs one command and writes its output followed by "RPRT <code>".
//
//	P x y     move the tool to (x, y)
//	J t1 t2   move the joints to absolute angles in degrees
//	M d1 d2   move the joints by the given degrees
//	p         print the last reported position
//	q         query status and print the actuator's text
func (s *Server) handleLine(w io.Writer, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]
	rprt := 0
	switch cmd {
	case "P", "J", "M":
		a, b, err := parseArgs(args)
		if err != nil {
			rprt = -22
			break
		}
		c := map[string]Command{
			"P": {Command: "move_to", X: a, Y: b},
			"J": {Command: "move_joints", T1: a, T2: b},
			"M": {Command: "jog", T1: a, T2: b},
		}[cmd]
		if _, err := s.Do(c); err != nil {
			log.Printf("%s: %v", c.Command, err)
			rprt = -1
			if errors.Is(err, kinematics.ErrTargetUnreachable) {
				rprt = -22
			}
		}
	case "p":
		status, _ := s.currentStatus()
		if status.Position == nil {
			rprt = -1
			break
		}
		fmt.Fprintf(w, "%.1f\n%.1f\n", status.Position.X, status.Position.Y)
	case "q":
		text, err := s.Do(Command{Command: "status"})
		if err != nil {
			log.Printf("status: %v", err)
			rprt = -1
			break
		}
		if text != "" {
			fmt.Fprintf(w, "%s\n", text)
		}
	default:
		rprt = -4
	}
	fmt.Fprintf(w, "RPRT %d\n", rprt)
}
