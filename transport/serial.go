package transport

import (
	"fmt"
	"log"
	"time"

	"github.com/tarm/serial"
)

// readTimeout bounds each read so that Close does not wait on an idle port.
const readTimeout = 100 * time.Millisecond

func OpenSerial(port string, baud int) (*Stream, error) {
	c := &serial.Config{Name: port, Baud: baud, ReadTimeout: readTimeout}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", port, err)
	}
	log.Printf("opened %q at %d baud", port, baud)
	return newStream(s, true), nil
}
