// Command gen-landmarks writes the simulator's drowsiness script as a
// newline-delimited JSON recording, for replay with `drowsiness -input FILE`,
// or streams it to a UDP listener.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/landmarks"
)

func main() {
	output := flag.String("o", "sample.ndjson", "output path, or udp:HOST:PORT to stream")
	loops := flag.Int("n", 1, "number of passes through the script")
	fps := flag.Float64("fps", 15, "frame rate used for timestamps (and pacing when streaming)")
	flag.Parse()

	sim := landmarks.NewSimulator(landmarks.SimulatorConfig{FPS: *fps})
	total := 0
	for _, p := range landmarks.DefaultScript() {
		total += p.Frames
	}
	total *= *loops
	interval := time.Duration(float64(time.Second) / *fps)

	if addr, ok := strings.CutPrefix(*output, "udp:"); ok {
		conn, err := net.Dial("udp", addr)
		if err != nil {
			log.Fatalf("dial %s: %v", *output, err)
		}
		defer conn.Close()
		start := time.Now()
		for i := 0; i < total; i++ {
			b, err := json.Marshal(sim.Frame(i, start.Add(time.Duration(i)*interval)))
			if err != nil {
				log.Fatal(err)
			}
			if _, err := conn.Write(b); err != nil {
				log.Printf("frame %d: %v", i, err)
			}
			time.Sleep(interval)
			if (i+1)%(total/10+1) == 0 {
				log.Printf("%d/%d frames", i+1, total)
			}
		}
		log.Printf("✓ Streamed %d frames to %s", total, *output)
		return
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create %s: %v", *output, err)
	}
	defer f.Close()
	if err := writeRecording(f, sim, total, time.Now().UTC(), interval); err != nil {
		log.Fatal(err)
	}
	log.Printf("✓ Created: %s (%d frames)", *output, total)
}

func writeRecording(w io.Writer, sim *landmarks.Simulator, frames int, start time.Time, interval time.Duration) error {
	enc := json.NewEncoder(w)
	for i := 0; i < frames; i++ {
		if err := enc.Encode(sim.Frame(i, start.Add(time.Duration(i)*interval))); err != nil {
			return err
		}
	}
	return nil
}
