package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <bucket> <key>...",
	Short: "Delete objects",
	Long: `Delete one or more objects. Deleting a missing object is not an error.

Examples:
  ossctl rm my-bucket old/report.csv
  ossctl rm my-bucket a.txt b.txt c.txt`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.close()

	bucket := args[0]
	for _, key := range args[1:] {
		if err := s.client.DeleteObject(cmd.Context(), bucket, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		if !quiet && !jsonOutput {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted: oss://%s/%s\n", bucket, key)
		}
	}
	return nil
}
