// Granolad watches the Granola meeting cache, extracts action items
// with an LLM, and exposes a review API that can push approved items
// into Linear.
//
// Configuration comes from a YAML file (~/.config/granolad/config.yaml
// or /etc/granolad/config.yaml) overridden by SECTION_FIELD environment
// variables (LINEAR_API_KEY, SERVER_HTTP_PORT, CACHE_POLL_INTERVAL, ...).
//
// Usage:
//
//	# Run the daemon (watcher + HTTP API)
//	granolad serve
//
//	# Run a single processing pass and exit
//	granolad run
//
//	# Clear processed markers and action items
//	granolad reset
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "granolad",
	Short: "Granola meeting cache to Linear action item daemon",
	Long: `granolad ingests meeting records from the Granola desktop app's
local cache, extracts action items with an LLM, and tracks them through
a review lifecycle. Approved items can be pushed to Linear as issues.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("granolad\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
