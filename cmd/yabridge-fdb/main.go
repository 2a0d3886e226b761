package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/yabridge/bridge/daemon"
	"github.com/yanet-platform/yabridge/common/go/logging"
	"github.com/yanet-platform/yabridge/common/go/xcmd"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Bridge overrides the name of the kernel bridge to follow.
	Bridge string
}

var rootCmd = &cobra.Command{
	Use:   "yabridge-fdb",
	Short: "Learning bridge forwarding database daemon",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := run(cmd); err != nil {
			if xcmd.IsInterrupted(err) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().StringVarP(&cmd.Bridge, "bridge", "b", "", "Kernel bridge to follow, overrides the configuration")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg := daemon.DefaultConfig()
	if cmd.ConfigPath != "" {
		var err error
		cfg, err = daemon.LoadConfig(cmd.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cmd.Bridge != "" {
		cfg.Bridge.Name = cmd.Bridge
	}

	log, _, err := logging.Init(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	d := daemon.NewDaemon(cfg, daemon.WithLog(log))

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return d.Run(ctx)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}
