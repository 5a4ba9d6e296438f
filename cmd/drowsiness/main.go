package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
	"github.com/banshee-data/drowsiness.report/internal/api"
	"github.com/banshee-data/drowsiness.report/internal/config"
	"github.com/banshee-data/drowsiness.report/internal/db"
	"github.com/banshee-data/drowsiness.report/internal/events"
	"github.com/banshee-data/drowsiness.report/internal/landmarks"
	"github.com/banshee-data/drowsiness.report/internal/monitoring"
	"github.com/banshee-data/drowsiness.report/internal/peripheral"
	"github.com/banshee-data/drowsiness.report/internal/pipeline"
	"github.com/banshee-data/drowsiness.report/internal/serialmux"
	"github.com/banshee-data/drowsiness.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	port       = flag.String("port", "/dev/ttyUSB0", "Serial port of the alert peripheral")
	baud       = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	framing    = flag.String("framing", "8N1", "Serial data bits, parity and stop bits")
	noPeriph   = flag.Bool("disable-peripheral", false, "Run without a peripheral; commands are logged and dropped")
	emulate    = flag.Bool("emulate-peripheral", false, "Use an in-process peripheral emulator instead of the serial port")
	dbPath     = flag.String("db-path", "drowsiness.db", "Path to the SQLite database")
	tuningPath = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	input      = flag.String("input", "-", "Landmark input: '-' for stdin, a file path, or udp:HOST:PORT")
	simulate   = flag.Bool("simulate", false, "Generate synthetic landmark frames instead of reading -input")
	simLoop    = flag.Bool("simulate-loop", false, "Loop the simulation script until interrupted")
	simFPS     = flag.Float64("simulate-fps", 15, "Simulated frames per second")
	brokers    = flag.String("kafka-brokers", "", "Comma-separated Kafka brokers for transition events (log only when empty)")
	topic      = flag.String("kafka-topic", events.DefaultTopic, "Kafka topic for transition events")
	plotDir    = flag.String("plot-dir", "", "Write signal plots of the run into this directory on exit")
	debug      = flag.Bool("debug", false, "Mount the /debug/ admin routes")
	quiet      = flag.Bool("quiet", false, "Mute per-frame diagnostic logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			db.RunMigrateCommand(flag.Args()[1:], *dbPath)
			return
		case "status", "reset", "send":
			if err := runClient(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
				log.Fatal(err)
			}
			return
		case "version":
			fmt.Println(version.String())
			return
		default:
			usage()
			os.Exit(2)
		}
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	tuning := config.DefaultTuningConfig()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	mux, err := openPeripheral()
	if err != nil {
		log.Fatalf("Failed to open peripheral: %v", err)
	}
	defer mux.Close()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	publisher, err := openPublisher()
	if err != nil {
		log.Fatalf("Failed to create event publisher: %v", err)
	}
	defer publisher.Close()

	var plotter *monitoring.SignalPlotter
	if *plotDir != "" {
		plotter = monitoring.NewSignalPlotter(monitoring.SignalThresholds{
			EAR:       tuning.GetEARThreshold(),
			MAR:       tuning.GetMARThreshold(),
			Angle:     tuning.GetHeadTiltDegrees(),
			Deviation: tuning.GetAttentionThreshold(),
		})
		if err := plotter.Start(*plotDir); err != nil {
			log.Fatalf("Failed to start plotter: %v", err)
		}
	}

	notifier := peripheral.NewNotifier(mux, 0)
	engine := alertness.NewEngine(engineConfig(tuning), alertness.WithSink(notifier))
	runner, err := pipeline.New(pipeline.Config{
		Engine:      engine,
		DB:          database,
		Publisher:   publisher,
		Broadcaster: pipeline.NewBroadcaster(),
		Plotter:     plotter,
	})
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	if err := runner.StartSession(); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	source, err := openSource()
	if err != nil {
		log.Fatalf("Failed to open landmark input: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if err := mux.Initialize(); err != nil {
		log.Printf("failed to initialise peripheral: %v", err)
	} else {
		log.Printf("initialized peripheral")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Run(ctx)
		log.Print("notifier routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.ConsumePeripheral(ctx, mux)
		log.Print("peripheral routine terminated")
	}()

	frames := make(chan landmarks.Frame, 64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(frames)
		if err := source.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("landmark input error: %v", err)
		}
		log.Print("input routine terminated")
	}()

	// the pipeline owns the run: when the input ends, everything stops
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := runner.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pipeline error: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srvMux := api.NewServer(runner, api.Options{
			DB:       database,
			Mux:      mux,
			Notifier: notifier,
			Tuning:   tuning,
		}).ServeMux()

		if *debug {
			mux.AttachAdminRoutes(srvMux)
			database.AttachAdminRoutes(srvMux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(srvMux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// the monitor has stopped, so this goes straight to the port if it is
	// still open; failures are only logged
	_ = notifier.Deliver(peripheral.Shutdown())

	final, err := runner.Finish()
	if err != nil {
		log.Printf("failed to close session: %v", err)
	}
	printSummary(os.Stdout, final, runner.Stats())

	if plotter != nil {
		n, err := plotter.GeneratePlots()
		if err != nil {
			log.Printf("failed to generate plots: %v", err)
		} else {
			log.Printf("wrote %d plots to %s", n, *plotDir)
		}
	}
	log.Printf("Graceful shutdown complete")
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: drowsiness [flags] [command]

Commands:
  (none)            run the monitor
  migrate <action>  manage the database schema (see 'migrate help')
  status            print the statistics of a running monitor
  reset             reset the statistics of a running monitor
  send <COMMAND>    send a protocol command through a running monitor
  version           print build information

Flags:
`)
	flag.PrintDefaults()
}

// engineConfig maps the tuning file onto the engine's configuration.
func engineConfig(t *config.TuningConfig) alertness.Config {
	return alertness.Config{
		Scorer: alertness.ScorerConfig{
			EARThreshold:       t.GetEARThreshold(),
			MARThreshold:       t.GetMARThreshold(),
			HeadTiltDegrees:    t.GetHeadTiltDegrees(),
			AttentionThreshold: t.GetAttentionThreshold(),
			Weights: alertness.Weights{
				EyeClosure:    t.GetEyeClosureWeight(),
				Yawning:       t.GetYawningWeight(),
				HeadTilt:      t.GetHeadTiltWeight(),
				AttentionLoss: t.GetAttentionLossWeight(),
			},
		},
		Levels: alertness.LevelThresholds{
			Warning:   t.GetWarningScore(),
			Critical:  t.GetCriticalScore(),
			Emergency: t.GetEmergencyScore(),
		},
		SteeringDegrees:     t.GetSteeringDegrees(),
		SteeringDeviation:   t.GetSteeringDeviation(),
		SteeringFrames:      t.GetSteeringFrames(),
		EyeClosureFrames:    t.GetEyeClosureFrames(),
		EARWindow:           t.GetEARWindow(),
		AngleWindow:         t.GetAngleWindow(),
		MeasurementInterval: t.GetMeasurementInterval(),
	}
}

func openPeripheral() (serialmux.SerialMuxInterface, error) {
	switch {
	case *noPeriph:
		log.Print("peripheral disabled")
		return serialmux.NewDisabledSerialMux(), nil
	case *emulate:
		log.Print("using emulated peripheral")
		return serialmux.NewEmulatedSerialMux(), nil
	}
	opts, err := serialmux.ParseFraming(*framing)
	if err != nil {
		return nil, err
	}
	opts.BaudRate = *baud
	m, err := serialmux.NewRealSerialMux(*port, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("opened peripheral on %s (%s)", *port, opts)
	return m, nil
}

func openPublisher() (events.Publisher, error) {
	list := splitList(*brokers)
	if len(list) == 0 {
		return events.LogPublisher{}, nil
	}
	log.Printf("publishing transitions to kafka topic %s via %v", *topic, list)
	return events.NewKafkaPublisher(events.KafkaConfig{Brokers: list, Topic: *topic})
}

func openSource() (landmarks.Source, error) {
	if *simulate {
		return landmarks.NewSimulator(landmarks.SimulatorConfig{FPS: *simFPS, Loop: *simLoop}), nil
	}
	kind, target := parseInput(*input)
	switch kind {
	case "udp":
		return landmarks.NewUDPSource(landmarks.UDPSourceConfig{Address: target, LogInterval: time.Minute}), nil
	case "stdin":
		return landmarks.NewStreamSource(landmarks.StreamSourceConfig{Name: "stdin", Reader: os.Stdin, LogInterval: time.Minute}), nil
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, err
	}
	return landmarks.NewStreamSource(landmarks.StreamSourceConfig{Name: target, Reader: f, LogInterval: time.Minute}), nil
}

// parseInput classifies the -input flag as "stdin", "udp" or "file".
func parseInput(v string) (kind, target string) {
	switch {
	case v == "" || v == "-":
		return "stdin", ""
	case strings.HasPrefix(v, "udp:"):
		return "udp", strings.TrimPrefix(v, "udp:")
	default:
		return "file", v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printSummary(w io.Writer, s alertness.Snapshot, ps pipeline.RunnerStats) {
	fmt.Fprintf(w, "session %s\n", s.SessionID)
	fmt.Fprintf(w, "  frames processed:   %d\n", s.FramesProcessed)
	fmt.Fprintf(w, "  runtime:            %.1fs\n", s.RuntimeSeconds)
	fmt.Fprintf(w, "  average frame rate: %.2f fps\n", s.AverageFrameRate)
	fmt.Fprintf(w, "  drowsy episodes:    %d\n", s.DrowsyEpisodes)
	fmt.Fprintf(w, "  steering anomalies: %d\n", s.SteeringAnomalies)
	fmt.Fprintf(w, "  final level:        %s\n", s.Level)
	if ps.EventsDropped > 0 {
		fmt.Fprintf(w, "  events dropped:     %d\n", ps.EventsDropped)
	}
}
