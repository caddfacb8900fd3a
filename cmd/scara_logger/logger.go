// Command scara_logger records arm positions from the scara status socket in
// InfluxDB.
package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"

	"github.com/w1xm/scara_interface/arm"
)

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

var (
	influxServer = flag.String("influx_server", envOr("INFLUX_SERVER", "http://localhost:9999"), "InfluxDB server URL")
	influxOrg    = flag.String("influx_org", envOr("INFLUX_ORG", "w1xm"), "InfluxDB organization")
	influxBucket = flag.String("influx_bucket", envOr("INFLUX_BUCKET", "scara.raw"), "InfluxDB bucket")
	statusURL    = flag.String("status_url", envOr("SCARA_ADDRESS", "ws://localhost:8503/api/ws"), "scara status websocket")
	retry        = flag.Duration("retry", time.Second, "delay before reconnecting to the status socket")
)

// statusFields returns the fields recorded for st. There is nothing to record
// until the arm has reported a position.
func statusFields(st arm.Status) (map[string]interface{}, bool) {
	if st.Position == nil {
		return nil, false
	}
	fields := map[string]interface{}{
		"x":     st.Position.X,
		"y":     st.Position.Y,
		"ready": st.Ready,
	}
	if len(st.PeerPosition) == 2 {
		for i, tok := range st.PeerPosition {
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				fields["peer"+strconv.Itoa(i+1)] = v
			}
		}
	}
	return fields, true
}

type recorder struct {
	url    string
	writer api.WriteApi
}

// follow records every status update from one socket connection and returns
// when the connection fails.
func (r *recorder) follow() error {
	conn, _, err := websocket.DefaultDialer.Dial(r.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer r.writer.Flush()
	log.Printf("Following %s", r.url)
	var points int
	for {
		var st arm.Status
		if err := conn.ReadJSON(&st); err != nil {
			log.Printf("recorded %d points", points)
			return err
		}
		fields, ok := statusFields(st)
		if !ok {
			continue
		}
		r.writer.WritePoint(influxdb2.NewPoint("scara.position", nil, fields, time.Now()))
		points++
	}
}

func main() {
	flag.Parse()
	client := influxdb2.NewClient(*influxServer, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	writer := client.WriteApi(*influxOrg, *influxBucket)
	defer writer.Close()
	go func() {
		for err := range writer.Errors() {
			log.Printf("influx: %v", err)
		}
	}()
	r := &recorder{url: *statusURL, writer: writer}
	for {
		if err := r.follow(); err != nil {
			log.Printf("status socket: %v", err)
		}
		time.Sleep(*retry)
	}
}
