package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeRowsJSON encodes rows as an indented JSON array on the command's
// stdout. An empty table is written as [] rather than null.
func writeRowsJSON[T any](cmd *cobra.Command, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
