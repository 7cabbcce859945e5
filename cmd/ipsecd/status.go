package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cuemby/ipsecd/pkg/client"
	"github.com/cuemby/ipsecd/pkg/orchestrator"
	"github.com/cuemby/ipsecd/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker counters and listener state",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		status, err := client.NewClient(addr).Status()
		if err != nil {
			return err
		}
		renderStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [sa|sp|ike]",
	Short: "Show the latest published statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		var kind types.StatKind
		if len(args) == 1 {
			kind = types.StatKind(args[0])
		}
		snaps, err := client.NewClient(addr).Stats(kind)
		if err != nil {
			return err
		}
		renderStats(cmd.OutOrStdout(), snaps)
		return nil
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show errors reported by the IKE daemon, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		limit, _ := cmd.Flags().GetInt("limit")
		errs, err := client.NewClient(addr).Errors(limit)
		if err != nil {
			return err
		}
		renderErrors(cmd.OutOrStdout(), errs)
		return nil
	},
}

func init() {
	errorsCmd.Flags().IntP("limit", "n", 20, "Maximum number of errors to show")
}

func renderStatus(w io.Writer, s *orchestrator.Status) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Worker", "State", "Counters"})
	t.AppendRow(table.Row{"dispatcher", "",
		fmt.Sprintf("executed=%d failed=%d dropped=%d queued=%d",
			s.Dispatcher.Executed, s.Dispatcher.Failed, s.Dispatcher.Dropped, s.Dispatcher.Queued)})
	t.AppendRow(table.Row{"publisher", fmt.Sprintf("%d subscriptions", len(s.Subscriptions)),
		fmt.Sprintf("passes=%d published=%d failed=%d",
			s.Publisher.Passes, s.Publisher.Published, s.Publisher.Failed)})

	listener := "disconnected"
	if s.Listener.Ready {
		listener = "connected"
	}
	if s.Listener.Error != "" {
		listener += ": " + s.Listener.Error
	}
	t.AppendRow(table.Row{"errnotify", listener, s.Listener.Socket})
	t.Render()
}

func renderStats(w io.Writer, snaps []*types.StatSnapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Kind", "Key", "State", "Bytes", "Packets", "Sampled"})

	for _, snap := range snaps {
		row := table.Row{snap.Kind, snap.Key(), "", "", "", snap.Timestamp.Format(time.RFC3339)}
		switch {
		case snap.SA != nil:
			row[3] = snap.SA.Stats.Bytes
			row[4] = snap.SA.Stats.Packets
		case snap.SP != nil:
			row[2] = string(snap.SP.Action)
			row[4] = strconv.Itoa(len(snap.SP.Templates)) + " templates"
		case snap.IKE != nil:
			row[2] = string(snap.IKE.State)
			row[3] = fmt.Sprintf("%d/%d", snap.IKE.BytesIn, snap.IKE.BytesOut)
			row[4] = fmt.Sprintf("%d/%d", snap.IKE.PacketsIn, snap.IKE.PacketsOut)
		}
		t.AppendRow(row)
	}
	t.Render()
}

func renderErrors(w io.Writer, errs []*types.IPsecError) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Event", "Connection", "Message"})
	for _, e := range errs {
		t.AppendRow(table.Row{e.Timestamp.Format(time.RFC3339), e.Event, e.Connection, e.Message})
	}
	t.Render()
}
