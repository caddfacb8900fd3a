// Command scara drives a two-link arm over a serial port and serves its
// status over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w1xm/scara_interface/arm"
	"github.com/w1xm/scara_interface/kinematics"
	"github.com/w1xm/scara_interface/ptservo"
	"github.com/w1xm/scara_interface/simulator"
	"github.com/w1xm/scara_interface/textservo"
	"github.com/w1xm/scara_interface/transport"
)

var (
	serialPort  = flag.String("serial", "", "serial port name")
	baud        = flag.Int("baud", 115200, "serial baud rate")
	protocol    = flag.String("protocol", "binary", `actuator protocol, "binary" or "text"`)
	l1          = flag.Float64("l1", 5, "length of the first link")
	l2          = flag.Float64("l2", 3, "length of the second link")
	addr        = flag.String("addr", "127.0.0.1:8503", "address to serve HTTP on")
	commandAddr = flag.String("command_addr", "", "address to accept line commands on")
	pollPeriod  = flag.Duration("poll", time.Second, "status poll period")
	attempts    = flag.Int("handshake_attempts", ptservo.DefaultMaxAttempts, "status queries to send before giving up on the actuator")
	offset1     = flag.Float64("offset1", 0, "mechanical zero of the first joint, in degrees")
	offset2     = flag.Float64("offset2", 0, "mechanical zero of the second joint, in degrees")
	simulate    = flag.Bool("simulate", false, "use a simulated actuator instead of a serial port")
)

func openTransport(ctx context.Context, solver *kinematics.Solver, mode simulator.Mode) (*transport.Stream, error) {
	if *simulate {
		sim, conn := simulator.New(mode, solver)
		go func() {
			if err := sim.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("simulator: %v", err)
			}
		}()
		return transport.New(conn), nil
	}
	return transport.OpenSerial(*serialPort, *baud)
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	solver, err := kinematics.New(*l1, *l2)
	if err != nil {
		log.Fatal(err)
	}

	mode := simulator.Binary
	switch *protocol {
	case "binary":
	case "text":
		mode = simulator.Text
	default:
		log.Fatalf("unknown protocol %q", *protocol)
	}

	stream, err := openTransport(ctx, solver, mode)
	if err != nil {
		log.Fatal(err)
	}
	defer stream.Close()

	var mover arm.Mover
	if mode == simulator.Text {
		mover = textservo.New(stream)
	} else {
		cfg := ptservo.DefaultConfig()
		cfg.MaxAttempts = *attempts
		c, err := ptservo.Connect(stream, cfg)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("actuator ready")
		mover = c
	}

	s := NewServer(arm.NewOffset(mover, *offset1, *offset2), solver)
	if *commandAddr != "" {
		a, err := s.ListenCommands(ctx, *commandAddr)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Accepting commands on %v", a)
	}

	srv := &http.Server{
		Handler:      s.Router(),
		Addr:         *addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Poll(ctx, *pollPeriod)
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})
	g.Go(func() error {
		log.Printf("Listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}
