package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/checkpoint"
)

var checkpointsClear bool

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Show or clear pipeline checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cps, err := initCheckpoints()
		if err != nil {
			return err
		}

		if checkpointsClear {
			if err := cps.ClearAll(); err != nil {
				return err
			}
			fmt.Println("Checkpoints cleared.")
			return nil
		}

		if !cps.ExistsAny() {
			fmt.Println("No checkpoints.")
			return nil
		}
		for _, slot := range []checkpoint.Slot{checkpoint.SlotScraped, checkpoint.SlotEnriched} {
			if !cps.Exists(slot) {
				continue
			}
			leads, meta := cps.Load(slot)
			line := fmt.Sprintf("%-9s %d leads", slot, len(leads))
			if meta != nil {
				line += fmt.Sprintf("  (queries=%v location=%q)", meta.Queries, meta.Location)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	checkpointsCmd.Flags().BoolVar(&checkpointsClear, "clear", false, "remove both checkpoint slots")
	rootCmd.AddCommand(checkpointsCmd)
}
