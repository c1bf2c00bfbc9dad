package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [signal]",
		Short: "Show the state of every watchdog, or of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			if len(args) == 1 {
				st, err := c.Watchdog(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printStates(cmd.OutOrStdout(), []watchdogState{st})
			}
			sts, err := c.Watchdogs(cmd.Context())
			if err != nil {
				return err
			}
			return printStates(cmd.OutOrStdout(), sts)
		},
	}
}

func newControlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <signal>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().Control(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			return printStates(cmd.OutOrStdout(), []watchdogState{st})
		},
	}
}

func printStates(w io.Writer, sts []watchdogState) error {
	if flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sts)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNAL\tSTATE\tVALUE\tCANDIDATE\tPOLLS\tALERTS SENT\tLAST POLL")
	for _, s := range sts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.SignalID, stateLabel(s), orDash(s.Value), candidateLabel(s), s.Polls, s.Notifications, lastPoll(s))
	}
	return tw.Flush()
}

func stateLabel(s watchdogState) string {
	switch {
	case !s.Active:
		return "stopped"
	case s.Suppressed:
		return fmt.Sprintf("grace (%d)", s.SuppressionRemaining)
	case !s.Initialized:
		return "starting"
	case s.Pending:
		return "debouncing"
	default:
		return "watching"
	}
}

func candidateLabel(s watchdogState) string {
	if s.Candidate == "" {
		return "-"
	}
	return fmt.Sprintf("%s x%d", s.Candidate, s.ConsecutiveMatches)
}

func lastPoll(s watchdogState) string {
	if s.LastPoll.IsZero() {
		return "-"
	}
	return s.LastPoll.Local().Format("15:04:05")
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
