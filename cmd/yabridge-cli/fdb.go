package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yanet-platform/yabridge/bridge/api"
	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/common/go/xpacket"
)

var fdbCmd = &cobra.Command{
	Use:   "fdb",
	Short: "Forwarding database",
}

var showArgs struct {
	MaxEntries int
	Skip       int
	All        bool
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List forwarding entries",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *api.Client) error {
			req := &api.DumpRequest{
				MaxEntries: showArgs.MaxEntries,
				Skip:       showArgs.Skip,
			}

			if showArgs.All {
				records, err := client.DumpAll(ctx, req)
				if err != nil {
					return err
				}
				return printRecords(os.Stdout, records)
			}

			resp, err := client.Dump(ctx, req)
			if err != nil {
				return err
			}
			return printRecords(os.Stdout, resp.Records)
		})
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup ADDR",
	Short: "Show the port an address is reachable through",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		addr, err := fdb.ParseMAC(args[0])
		if err != nil {
			return err
		}

		return withClient(func(ctx context.Context, client *api.Client) error {
			resp, err := client.Lookup(ctx, &api.LookupRequest{Addr: addr})
			if err != nil {
				return err
			}
			return printValue(os.Stdout, resp)
		})
	},
}

var flushPort uint16

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove dynamic entries of a port, or of every port",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, client *api.Client) error {
			resp, err := client.Flush(ctx, &api.FlushRequest{Port: fdb.PortID(flushPort)})
			if err != nil {
				return err
			}
			return printValue(os.Stdout, resp)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ADDR",
	Short: "Remove a learned entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		addr, err := fdb.ParseMAC(args[0])
		if err != nil {
			return err
		}

		return withClient(func(ctx context.Context, client *api.Client) error {
			_, err := client.Delete(ctx, &api.DeleteRequest{Addr: addr})
			return err
		})
	},
}

var staticCmd = &cobra.Command{
	Use:   "static ADDR on|off",
	Short: "Exempt a learned entry from ageing, or make it age again",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		addr, err := fdb.ParseMAC(args[0])
		if err != nil {
			return err
		}

		var static bool
		switch args[1] {
		case "on":
			static = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}

		return withClient(func(ctx context.Context, client *api.Client) error {
			_, err := client.SetStatic(ctx, &api.SetStaticRequest{Addr: addr, Static: static})
			return err
		})
	},
}

var observeCmd = &cobra.Command{
	Use:   "observe PORT SRC DST",
	Short: "Feed a synthetic frame received on a port, learning SRC and resolving DST",
	Args:  cobra.ExactArgs(3),
	RunE: func(_ *cobra.Command, args []string) error {
		port, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		src, err := fdb.ParseMAC(args[1])
		if err != nil {
			return err
		}
		dst, err := fdb.ParseMAC(args[2])
		if err != nil {
			return err
		}

		frame, err := xpacket.EtherFrame(src.HardwareAddr(), dst.HardwareAddr(), nil)
		if err != nil {
			return err
		}

		return withClient(func(ctx context.Context, client *api.Client) error {
			resp, err := client.Observe(ctx, &api.ObserveRequest{Port: fdb.PortID(port), Frame: frame})
			if err != nil {
				return err
			}
			return printValue(os.Stdout, resp)
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showArgs.MaxEntries, "max", 0, "Maximum number of entries, zero for the server default")
	showCmd.Flags().IntVar(&showArgs.Skip, "skip", 0, "Number of entries to skip")
	showCmd.Flags().BoolVar(&showArgs.All, "all", false, "Page through the whole table")

	flushCmd.Flags().Uint16Var(&flushPort, "port", 0, "Port number, zero for every port")

	fdbCmd.AddCommand(showCmd, lookupCmd, flushCmd, deleteCmd, staticCmd, observeCmd)
}
