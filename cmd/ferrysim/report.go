package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ferryqueue/ferrysim/pkg/core"
)

// printReport writes the end-of-run console report.
func printReport(w io.Writer, run *core.Run, summary *core.RunSummary) {
	fmt.Fprintf(w, "\n=== %s (%s) ===\n", run.Name, run.ID)
	if len(run.Terminals) >= 2 {
		names := make([]string, len(run.Terminals))
		for i, t := range run.Terminals {
			names[i] = fmt.Sprintf("%s %s", t.Code, t.Name)
		}
		fmt.Fprintf(w, "route: %s, %.1f km\n", strings.Join(names, " - "), run.RouteKm)
	}
	fmt.Fprintf(w, "seed:  %d\n\n", run.Seed)

	if summary == nil {
		fmt.Fprintln(w, "no summary available")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "simulated time\t%.0f min\n", summary.TotalTime)
	fmt.Fprintf(tw, "vehicles processed\t%d\n", summary.VehiclesProcessed)
	fmt.Fprintf(tw, "vehicles rejected\t%d\n", summary.VehiclesRejected)
	fmt.Fprintf(tw, "average queue\t%.1f\n", summary.AvgQueueLength)
	fmt.Fprintf(tw, "max queue\t%d\n", summary.MaxQueueLength)
	fmt.Fprintf(tw, "average wait\t%.1f min\n", summary.AvgWaitTime)
	fmt.Fprintf(tw, "fleet utilization\t%.1f%%\n", summary.AvgUtilization)
	fmt.Fprintf(tw, "maintenance events\t%d\n", summary.MaintenanceEvents)
	fmt.Fprintf(tw, "failure events\t%d\n", summary.FailureEvents)
	fmt.Fprintf(tw, "peak periods\t%d\n", summary.PeakEvents)
	tw.Flush()

	fmt.Fprintf(w, "\n%s: %s\n", summary.Grade, summary.Message)
	for _, warning := range summary.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
