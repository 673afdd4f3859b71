package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <table>",
	Short: "Scan every row currently present in a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	tableName := args[0]

	cat, ds, err := openDatastore(dataDir)
	if err != nil {
		return err
	}
	defer cat.Close()
	defer ds.Close(context.Background())

	tx := ds.BeginTx()
	defer tx.Close()

	rows, err := tx.Scan(tableName)
	if err != nil {
		return fmt.Errorf("scan %s: %w", tableName, err)
	}

	fmt.Printf("%s: %d rows\n", tableName, len(rows))
	for _, r := range rows {
		fmt.Printf("  %s -> %v\n", r.Ptr, r.Row)
	}
	return nil
}
