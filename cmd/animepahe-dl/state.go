package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and manage the persisted download state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incomplete download records",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := store.ListIncomplete()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no incomplete records")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s\t%s episode %d\t%s\n", r.ID, r.AnimeName, r.Episode, r.Status)
		}
		return nil
	},
}

var stateClearCompletedCmd = &cobra.Command{
	Use:   "clear-completed",
	Short: "Remove completed records from the state store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return store.ClearCompleted()
	},
}

var stateRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a single record by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return store.Remove(args[0])
	},
}

func init() {
	stateCmd.AddCommand(stateListCmd, stateClearCompletedCmd, stateRemoveCmd)
}
