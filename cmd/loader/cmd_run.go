package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/couchcryptid/hilltop-site-loader/internal/observability"
	"github.com/spf13/cobra"
)

var runFlags struct {
	jsonOutput bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one load and print the report",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.jsonOutput, "json", false, "Print the report as JSON")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close resources", "error", err)
		}
	}()

	report, err := a.loader.Run(ctx)
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), report, runFlags.jsonOutput)
}

func printReport(out io.Writer, r domain.LoadReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(out, "Sites:     %d\n", r.Sites)
	fmt.Fprintf(out, "Cache hit: %t\n", r.CacheHit)
	statuses := make([]string, 0, len(r.Outcomes))
	for s := range r.Outcomes {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(out, "  %-12s %d\n", s, r.Outcomes[domain.MeasurementStatus(s)])
	}
	if r.Table != nil {
		fmt.Fprintf(out, "Table:     %s (%d rows) in %s\n", r.Table.Name, r.Table.Rows, r.Table.Store)
	}
	if r.Layer != nil {
		fmt.Fprintf(out, "Layer:     %s (%d features, EPSG:%d)\n", r.Layer.Name, r.Layer.Features, r.Layer.SRID)
	}
	if r.Attached {
		fmt.Fprintln(out, "Attached:  yes")
	}
	if r.Published > 0 {
		fmt.Fprintf(out, "Published: %d\n", r.Published)
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(out, "Skipped:   %s (exists, overwrite disabled)\n", s)
	}
	fmt.Fprintf(out, "Took:      %s\n", r.FinishedAt.Sub(r.StartedAt))
	return nil
}
