package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ipsecd",
	Short: "ipsecd - IPsec configuration and monitoring daemon",
	Long: `ipsecd drives an IKE daemon over VICI and the kernel IPsec tables
over netlink. It applies configuration in order on a single worker,
publishes SA, policy and IKE statistics on a fixed interval and records
the errors the IKE daemon reports on its error-notify socket.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ipsecd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("addr", "127.0.0.1:9180", "Daemon API address")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(statsCmd)
}
