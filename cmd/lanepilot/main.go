// Command lanepilot drives the vehicle: it reads camera frames (or replayed
// perception fixtures), decides throttle and steering for each one, sends
// the commands to the actuator board and journals every decision.
//
// Usage:
//
//	lanepilot [flags]
//	lanepilot migrate <up|down|status|version N|force N|help>
//
// Settings are read from the environment (LANEPILOT_*), optionally seeded
// from a .env file; flags given on the command line take precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/lanepilot/internal/actuator"
	"github.com/banshee-data/lanepilot/internal/api"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/serialmux"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/timeutil"
	"github.com/banshee-data/lanepilot/internal/version"
	"github.com/banshee-data/lanepilot/internal/vision"
)

var (
	envFile     = flag.String("env", ".env", "Dotenv file to seed the environment from (missing is fine)")
	listen      = flag.String("listen", "127.0.0.1:8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "127.0.0.1:50061", "Telemetry gRPC listen address (empty disables)")
	dbPath      = flag.String("db", "lanepilot.db", "Decision journal sqlite path")
	tuningPath  = flag.String("tuning", config.DefaultConfigPath, "Tuning file (.json, .yaml or .yml)")
	port        = flag.String("port", "/dev/ttyACM0", "Actuator serial port, or \"none\" to run without a board (ignored in dev mode)")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Actuator serial baud rate")
	frame       = flag.String("frame", serialmux.DefaultFrame, "Actuator serial data bits, parity and stop bits")
	source      = flag.String("source", "camera", "Frame source: camera, replay or synthetic")
	camera      = flag.Int("camera", 0, "Capture device index")
	video       = flag.String("video", "", "Read frames from this video file instead of a capture device")
	fixture     = flag.String("fixture", "", "Perception fixture (JSON lines) for the replay source")
	cascadeDir  = flag.String("models", "models", "Directory holding stop.xml and light.xml")
	devMode     = flag.Bool("dev", false, "Dev mode: simulated actuator board, and fixtures instead of the camera")
	debug       = flag.Bool("debug", false, "Enable per-frame trace logging")
	quiet       = flag.Bool("quiet", false, "Only log actionable problems")
	loop        = flag.Bool("loop", false, "Restart replayed fixtures when they end")
	fps         = flag.Float64("fps", 30, "Replay pacing in frames per second (0 = as fast as possible)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("lanepilot"))
		return
	}

	cfg, err := config.LoadRuntimeConfig(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg, flag.CommandLine)
	if cfg.DevMode {
		devSource(cfg)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	monitoring.NewStreams(os.Stderr, *quiet, cfg.Debug).Apply(
		pipeline.SetLogWriters,
		telemetry.SetLogWriters,
		vision.SetLogWriters,
	)

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

// runMigrate handles "lanepilot migrate ...". The database path comes from
// LANEPILOT_DB_PATH or a leading -db flag.
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("db", "", "Decision journal sqlite path")
	fs.Parse(args)

	if *path == "" {
		cfg, err := config.LoadRuntimeConfig()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		*path = cfg.DBPath
	}
	if err := db.MigrateCommand(fs.Args(), *path, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

// run wires the components together and blocks until a signal arrives or a
// finite frame source ends.
func run(cfg *config.RuntimeConfig) error {
	tuning, err := loadTuning(cfg.TuningPath)
	if err != nil {
		return err
	}
	clock := timeutil.RealClock{}

	src, det, label, err := openSource(cfg, clock)
	if err != nil {
		return err
	}
	defer src.Close()
	if c, ok := det.(interface{ Close() error }); ok {
		defer c.Close()
	}

	board, err := openBoard(cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	ctrl, err := actuator.NewController(board, actuator.DefaultMapping())
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal, err := database.StartRun(ctx, label, tuning, clock.Now())
	if err != nil {
		return err
	}
	log.Printf("run %s started (source %s)", journal.RunID(), label)

	metrics := monitoring.NewMetrics()
	history := api.NewHistory(0)
	device := serialmux.NewDeviceState()

	var publisher *telemetry.Publisher
	if cfg.GRPCAddr != "" {
		pcfg := telemetry.DefaultConfig()
		pcfg.ListenAddr = cfg.GRPCAddr
		publisher = telemetry.NewPublisher(pcfg)
		if err := publisher.Start(); err != nil {
			return fmt.Errorf("failed to start telemetry: %w", err)
		}
		defer publisher.Stop()
	}

	sinks := []pipeline.NamedSink{
		{Name: "actuator", Sink: ctrl},
		{Name: "journal", Sink: journal},
		{Name: "history", Sink: history},
		{Name: "metrics", Sink: pipeline.MetricsSink{Metrics: metrics}},
	}
	if publisher != nil {
		sinks = append(sinks, pipeline.NamedSink{Name: "telemetry", Sink: publisher})
	}

	p, err := pipeline.New(pipeline.Options{Tuning: tuning, Clock: clock, Metrics: metrics})
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(p, src, det, pipeline.NewMultiSink(metrics, sinks...))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := board.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// fold board acknowledgements and telemetry into the device state
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := board.Subscribe()
		defer board.Unsubscribe(id)
		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if err := device.HandleEvent(payload); err != nil {
					log.Printf("error handling board line: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	if err := ctrl.Start(); err != nil {
		stop()
		wg.Wait()
		return fmt.Errorf("failed to initialise actuator board: %w", err)
	}

	// decision loop; a finished finite source ends the process
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pipeline stopped: %v", err)
			return
		}
		log.Printf("pipeline routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(api.Options{
			History:   history,
			DB:        database,
			Tuning:    tuning,
			Metrics:   metrics,
			Telemetry: telemetryStats(publisher),
			Device:    device,
			Actuator:  ctrl,
			Link:      board,
		}).ServeMux()

		board.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach journal admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: api.LoggingMiddleware(metrics.InstrumentHTTP(mux)),
		}

		go func() {
			log.Printf("Starting HTTP server on %s", cfg.ListenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
				stop()
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

	if err := ctrl.Neutralize(); err != nil {
		log.Printf("failed to neutralise actuators: %v", err)
	}
	if err := journal.Finish(context.Background(), clock.Now()); err != nil {
		log.Printf("failed to close run %s: %v", journal.RunID(), err)
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

// telemetryStats avoids handing the API a typed nil.
func telemetryStats(p *telemetry.Publisher) api.TelemetryStats {
	if p == nil {
		return nil
	}
	return p
}
