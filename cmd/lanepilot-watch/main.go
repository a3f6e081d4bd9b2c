// Command lanepilot-watch prints the live decision stream of a running
// lanepilot.
//
// Usage:
//
//	lanepilot-watch [-addr 127.0.0.1:50061] [-skipped] [-json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/version"
)

func main() {
	addr := flag.String("addr", telemetry.DefaultConfig().ListenAddr, "Telemetry gRPC address")
	skipped := flag.Bool("skipped", false, "Include records for frames that skipped detection")
	asJSON := flag.Bool("json", false, "Print one JSON object per record")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("lanepilot-watch"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := telemetry.Dial(*addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer client.Close()

	emit := printLine
	if *asJSON {
		emit = printJSON
	}
	err = client.Stream(ctx, telemetry.StreamOptions{IncludeSkipped: *skipped}, func(r pipeline.Record) error {
		return emit(os.Stdout, r)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Stream ended: %v", err)
	}
}

func printLine(w io.Writer, r pipeline.Record) error {
	flags := ""
	if r.StopSignStable {
		flags += " stop-sign"
	}
	if r.Light != "" {
		flags += " light=" + string(r.Light)
	}
	if !r.HasLane {
		flags += " no-lane"
	}
	if r.Skipped {
		flags += " skipped"
	}
	_, err := fmt.Fprintf(w, "%s #%-6d %-8s %s%s\n", r.At.Format("15:04:05.000"), r.Seq, r.State, r.Decision, flags)
	return err
}

func printJSON(w io.Writer, r pipeline.Record) error {
	return json.NewEncoder(w).Encode(r)
}
