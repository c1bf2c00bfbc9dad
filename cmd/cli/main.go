// Command cli talks to a running dashwatch API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagAPI  string
	flagKey  string
	flagJSON bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dashwatch",
		Short:         "Inspect and control the dashboard watchdogs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&flagAPI, "api", api, "API base URL (env API_BASE)")
	cmd.PersistentFlags().StringVar(&flagKey, "key", os.Getenv("API_KEY"), "API key (env API_KEY)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")

	cmd.AddCommand(
		newStatusCmd(),
		newControlCmd("start", "Start polling a watchdog"),
		newControlCmd("stop", "Stop a watchdog and drop its pending work"),
		newControlCmd("check", "Run one poll of a watchdog now"),
		newAlertsCmd(),
	)
	return cmd
}

func client() *apiClient {
	return newAPIClient(flagAPI, flagKey, 30*time.Second)
}
