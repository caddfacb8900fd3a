package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/w1xm/scara_interface/arm"
	"github.com/w1xm/scara_interface/kinematics"
)

type Server struct {
	// mu serializes all access to the actuator.
	mu     sync.Mutex
	mover  arm.Mover
	poller arm.Poller
	solver *kinematics.Solver

	statusMu sync.RWMutex
	status   arm.Status
	// changed is closed and replaced whenever status is updated.
	changed chan struct{}
}

// NewServer wraps mover. If mover also implements arm.Poller, its status is
// published.
func NewServer(mover arm.Mover, solver *kinematics.Solver) *Server {
	s := &Server{
		mover:   mover,
		solver:  solver,
		changed: make(chan struct{}),
	}
	if p, ok := mover.(arm.Poller); ok {
		s.poller = p
		s.status = p.Status()
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods("GET")
	r.HandleFunc("/api/command", s.CommandHandler).Methods("POST")
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	return r
}

func (s *Server) currentStatus() (arm.Status, <-chan struct{}) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status.Clone(), s.changed
}

func (s *Server) statusCallback(status arm.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	close(s.changed)
	s.changed = make(chan struct{})
}

type Command struct {
	Command string  `json:"command"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	T1      float64 `json:"t1"`
	T2      float64 `json:"t2"`
}

// Do executes a single command against the actuator. Angles are in degrees.
func (s *Server) Do(cmd Command) (string, error) {
	s.mu.Lock()
	text, err := s.do(cmd)
	var status arm.Status
	if s.poller != nil {
		status = s.poller.Status()
	}
	s.mu.Unlock()
	if s.poller != nil {
		s.statusCallback(status)
	}
	return text, err
}

func (s *Server) do(cmd Command) (string, error) {
	switch cmd.Command {
	case "move_to":
		j, err := s.solver.Inverse(kinematics.Point{X: cmd.X, Y: cmd.Y}, kinematics.Degrees)
		if err != nil {
			return "", err
		}
		return "", s.mover.MoveAbsolute(j.T1, j.T2)
	case "move_joints":
		return "", s.mover.MoveAbsolute(cmd.T1, cmd.T2)
	case "jog":
		return "", s.mover.MoveRelative(cmd.T1, cmd.T2)
	case "status":
		if s.poller == nil {
			return "", arm.ErrNoTelemetry
		}
		return s.poller.StatusQuery()
	}
	return "", fmt.Errorf("unknown command %q", cmd.Command)
}

// Poll queries the actuator every interval until ctx is canceled.
func (s *Server) Poll(ctx context.Context, interval time.Duration) error {
	if s.poller == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		text, err := s.Do(Command{Command: "status"})
		if errors.Is(err, arm.ErrNoTelemetry) {
			return nil
		}
		if err != nil {
			log.Printf("polling status: %v", err)
			continue
		}
		if text != "" {
			log.Printf("actuator: %s", text)
		}
	}
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status, _ := s.currentStatus()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

type commandResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text, err := s.Do(cmd)
	resp := commandResponse{Response: text}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = http.StatusInternalServerError
		if errors.Is(err, kinematics.ErrTargetUnreachable) {
			code = http.StatusUnprocessableEntity
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Print(err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if _, err := s.Do(msg); err != nil {
				log.Printf("%s: %v", msg.Command, err)
			}
		}
	}()

	status, changed := s.currentStatus()
	for {
		if err := conn.WriteJSON(status); err != nil {
			log.Print(err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
		status, changed = s.currentStatus()
	}
}
