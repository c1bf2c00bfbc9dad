package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List or change per-signal alert preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefs, err := client().Preferences(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if flagJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(prefs)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SIGNAL\tALERTS")
			for _, p := range prefs {
				fmt.Fprintf(tw, "%s\t%s\n", p.SignalID, onOff(p.AlertsEnabled))
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(newAlertsSetCmd("on", true), newAlertsSetCmd("off", false))
	return cmd
}

func newAlertsSetCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <signal>",
		Short: "Turn alerts " + use + " for a signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client().SetAlerts(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alerts %s for %s\n", onOff(p.AlertsEnabled), p.SignalID)
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
