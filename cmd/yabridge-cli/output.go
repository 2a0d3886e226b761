package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/yabridge/bridge/api"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

// printValue prints a single response in the requested format. Tables
// fall back to YAML.
func printValue(w io.Writer, v any) error {
	switch global.Format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML, formatTable:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", global.Format)
	}
}

func printRecords(w io.Writer, records []api.DumpRecord) error {
	if global.Format != formatTable {
		return printValue(w, records)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDR\tPORT\tNAME\tLOCAL\tSTATIC\tAGE")
	for _, record := range records {
		age := "-"
		if !record.IsStatic {
			age = (time.Duration(record.Age) * time.Second).String()
		}

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			record.Addr,
			record.Port,
			record.PortName,
			yesNo(record.IsLocal),
			yesNo(record.IsStatic),
			age,
		)
	}

	return tw.Flush()
}

func printStats(w io.Writer, stats *api.StatsResponse) error {
	if global.Format != formatTable {
		return printValue(w, stats)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "entries\t%d\n", stats.Entries)
	fmt.Fprintf(tw, "buckets\t%d\n", stats.Buckets)
	fmt.Fprintf(tw, "hold time\t%s\n", stats.HoldTime)
	fmt.Fprintf(tw, "topology change\t%s\n", yesNo(stats.TopologyChange))
	fmt.Fprintf(tw, "learned\t%d\n", stats.Counters.Learned)
	fmt.Fprintf(tw, "refreshed\t%d\n", stats.Counters.Refreshed)
	fmt.Fprintf(tw, "own address\t%d\n", stats.Counters.OwnAddress)
	fmt.Fprintf(tw, "conflicts\t%d\n", stats.Counters.Conflicts)
	fmt.Fprintf(tw, "aged\t%d\n", stats.Counters.Aged)
	fmt.Fprintf(tw, "deleted\t%d\n", stats.Counters.Deleted)
	fmt.Fprintf(tw, "reclaimed\t%d\n", stats.Counters.Reclaimed)
	fmt.Fprintf(tw, "learn failures\t%d\n", stats.Counters.LearnFailures)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "PORT\tNAME\tIFINDEX\tADDR")
	for _, p := range stats.Ports {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", p.ID, p.Name, p.IfIndex, p.Addr)
	}

	return tw.Flush()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
