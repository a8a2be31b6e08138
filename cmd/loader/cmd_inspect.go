package main

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/csvstore"
	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/spf13/cobra"
)

var inspectFlags struct {
	cache string
	limit int
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Validate the enriched CSV cache and summarize it",
	Long: "inspect reads the enriched dataset cache without contacting Hilltop.\n" +
		"It exits non-zero when the cache is missing or malformed, which is the\n" +
		"same condition that makes the next load rebuild it.",
	RunE: runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.StringVar(&inspectFlags.cache, "cache", "", "Cache file (default: CACHE_FILE)")
	f.IntVar(&inspectFlags.limit, "limit", 10, "Records to list; 0 lists none")
}

func runInspect(cmd *cobra.Command, _ []string) error {
	path := inspectFlags.cache
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.CacheFile
	}

	records, err := csvstore.New().LoadRecords(path)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d records\n", path, len(records))

	counts := map[domain.MeasurementStatus]int{}
	for _, r := range records {
		counts[r.Measurement.Status]++
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(out, "  %-12s %d\n", s, counts[domain.MeasurementStatus(s)])
	}

	for i, r := range records {
		if i >= inspectFlags.limit {
			if rest := len(records) - i; rest > 0 {
				fmt.Fprintf(out, "  ... %d more\n", rest)
			}
			break
		}
		fmt.Fprintf(out, "  %-40s %10.4f %10.4f  %s\n", r.Name, r.Latitude, r.Longitude, r.Measurement)
	}
	return nil
}
