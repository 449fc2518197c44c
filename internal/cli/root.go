package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pulsemetric",
	Short: "Analytics dashboard for mobile and web apps",
	Long: `pulsemetric serves the PulseMetric analytics dashboard.

The dashboard reads from the analytics backend REST API. For local work,
"pulsemetric devapi" runs a stand-in backend filled with demo data.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devapiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
