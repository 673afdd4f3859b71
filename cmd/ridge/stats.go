package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a point-in-time sizing and durability snapshot",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cat, ds, err := openDatastore(dataDir)
	if err != nil {
		return err
	}
	defer cat.Close()
	defer ds.Close(context.Background())

	snap := ds.Snapshot()

	fmt.Printf("pages:       %d (free slots: %d)\n", snap.Pages, snap.FreeSlots)
	fmt.Printf("tables:      %d\n", snap.Tables)
	fmt.Printf("blobs:       %d (%d bytes)\n", snap.Blobs, snap.BlobBytes)
	if snap.DurableOffsetKnown {
		fmt.Printf("durable_offset: %d\n", snap.DurableOffset)
	} else {
		fmt.Printf("durable_offset: unknown\n")
	}

	names := make([]string, 0, len(snap.RowsByTable))
	for name := range snap.RowsByTable {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  rows[%s]: %d\n", name, snap.RowsByTable[name])
	}
	return nil
}
