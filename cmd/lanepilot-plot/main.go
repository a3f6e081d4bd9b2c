// Command lanepilot-plot renders PNG plots and a summary for a journalled
// run.
//
// Usage:
//
//	lanepilot-plot [-db lanepilot.db] [-run <id>] [-out plots]
//	lanepilot-plot -list
//
// Without -run the most recent run is plotted.
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
	"text/tabwriter"
	"time"

	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/report"
	"github.com/banshee-data/lanepilot/internal/version"
)

var (
	dbPath      = flag.String("db", "lanepilot.db", "Decision journal sqlite path")
	runID       = flag.String("run", "", "Run to plot (default: most recent)")
	outDir      = flag.String("out", "plots", "Base output directory")
	list        = flag.Bool("list", false, "List journalled runs and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("lanepilot-plot"))
		return
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if *list {
		if err := listRuns(ctx, database, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	dir, summary, err := plotRun(ctx, database, *runID, *outDir, time.Now())
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote plots to %s", dir)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(summary)
}

// plotRun writes the plots for runID (or the latest run) under base and
// returns the directory and the run summary.
func plotRun(ctx context.Context, database *db.DB, runID, base string, now time.Time) (string, report.Summary, error) {
	if runID == "" {
		latest, err := database.LatestRunID(ctx)
		if err != nil {
			return "", report.Summary{}, fmt.Errorf("find latest run: %w", err)
		}
		if latest == "" {
			return "", report.Summary{}, errors.New("journal has no runs")
		}
		runID = latest
	}

	rows, err := database.RunDecisions(ctx, runID)
	if err != nil {
		return "", report.Summary{}, fmt.Errorf("load decisions: %w", err)
	}
	events, err := database.StopEvents(ctx, runID)
	if err != nil {
		return "", report.Summary{}, fmt.Errorf("load stop events: %w", err)
	}

	dir := report.OutputDir(base, runID, now)
	if _, err := report.WriteRun(dir, runID, rows, events); err != nil {
		return "", report.Summary{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return dir, report.Summarize(runID, rows, events), nil
}

func listRuns(ctx context.Context, database *db.DB, w io.Writer) error {
	runs, err := database.Runs(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSOURCE\tSTARTED\tFRAMES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, r.Source, r.StartedAt.Format(time.RFC3339), r.Frames)
	}
	return tw.Flush()
}
