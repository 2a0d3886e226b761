package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanet-platform/yabridge/bridge/api"
)

// Global is the set of flags shared by every command.
type Global struct {
	// Endpoint is the management API endpoint.
	Endpoint string
	// Format is the output format.
	Format string
	// Timeout limits every request.
	Timeout time.Duration
}

var global = Global{
	Endpoint: api.DefaultConfig().Endpoint,
	Format:   formatTable,
	Timeout:  5 * time.Second,
}

var rootCmd = &cobra.Command{
	Use:           "yabridge-cli",
	Short:         "Learning bridge forwarding database management",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&global.Endpoint, "endpoint", "e", global.Endpoint, "Management API endpoint")
	rootCmd.PersistentFlags().StringVarP(&global.Format, "format", "f", global.Format, "Output format: table, yaml or json")
	rootCmd.PersistentFlags().DurationVar(&global.Timeout, "timeout", global.Timeout, "Request timeout")

	rootCmd.AddCommand(fdbCmd, stpCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// withClient runs fn with a connected client and a request context.
func withClient(fn func(ctx context.Context, client *api.Client) error) error {
	client, err := api.Dial(global.Endpoint, api.DefaultConfig().MaxMessageSize)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), global.Timeout)
	defer cancel()

	return fn(ctx, client)
}

var stpCmd = &cobra.Command{
	Use:   "stp",
	Short: "Spanning tree collaborator hooks",
}

var topologyChangeCmd = &cobra.Command{
	Use:       "topology-change on|off",
	Short:     "Set or clear the topology change state, switching the hold time to the forward delay",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(_ *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client *api.Client) error {
			resp, err := client.SetTopologyChange(ctx, &api.TopologyChangeRequest{Active: args[0] == "on"})
			if err != nil {
				return err
			}

			return printValue(os.Stdout, resp)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show forwarding database counters and ports",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *api.Client) error {
			resp, err := client.Stats(ctx, &api.StatsRequest{})
			if err != nil {
				return err
			}

			return printStats(os.Stdout, resp)
		})
	},
}

func init() {
	stpCmd.AddCommand(topologyChangeCmd)
}
