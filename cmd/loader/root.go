package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "hilltop-loader",
	Short: "Load Hilltop monitoring sites into a GIS store",
	Long: "hilltop-loader fetches the site list from a Hilltop server, resolves the first\n" +
		"measurement offered at each site, caches the enriched dataset as CSV, and\n" +
		"materializes it as a table and point layer in a GeoPackage or PostGIS store.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
