package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cuemby/ipsecd/pkg/client"
	"github.com/cuemby/ipsecd/pkg/config"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest to a running daemon",
	Long: `Apply a manifest of credentials, CAs, IKE connections, SAs, policies
and statistics subscriptions to a running daemon.

The manifest is validated locally first. Tasks are queued in the order
CAs, connections, SAs, policies and run one at a time by the daemon.

Examples:
  # Apply a manifest
  ipsecd apply -f tunnels.yaml

  # Apply to a daemon on another address
  ipsecd apply -f tunnels.yaml --addr 10.0.0.1:9180`,
	RunE: runApply,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a manifest without applying it",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")
		m, _, err := config.LoadManifest(filename)
		if err != nil {
			return err
		}
		printManifestSummary(cmd.OutOrStdout(), m)
		return nil
	},
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Manifest file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	validateCmd.Flags().StringP("file", "f", "", "Manifest file to validate (required)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	addr, _ := cmd.Flags().GetString("addr")

	m, data, err := config.LoadManifest(filename)
	if err != nil {
		return err
	}

	c := client.NewClient(addr)
	n, err := c.Apply(data)
	out := cmd.OutOrStdout()
	if err != nil && n == 0 {
		fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("FAIL"), filename)
		return err
	}

	fmt.Fprintf(out, "%s %s: %d of %d tasks queued\n",
		color.New(color.FgGreen, color.Bold).Sprint("OK"), filename, n, m.Len())
	return err
}

func printManifestSummary(w io.Writer, m *config.Manifest) {
	fmt.Fprintln(w, "Manifest is valid")
	fmt.Fprintf(w, "  Credentials:   %d\n", len(m.Credentials))
	fmt.Fprintf(w, "  Authorities:   %d\n", len(m.Authorities))
	fmt.Fprintf(w, "  Connections:   %d\n", len(m.Connections))
	fmt.Fprintf(w, "  SAs:           %d\n", len(m.SAs))
	fmt.Fprintf(w, "  Policies:      %d\n", len(m.SPs))
	fmt.Fprintf(w, "  Subscriptions: %d\n", len(m.Stats))
}
