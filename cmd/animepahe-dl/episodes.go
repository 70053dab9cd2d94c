package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/justchokingaround/animepahe-dl/internal/catalog"
)

var episodesCmd = &cobra.Command{
	Use:   "episodes <slug>",
	Short: "List the episode numbers available for a release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := catalog.New(cfg.Download.RequestHost, args[0], client.GetJSON)
		episodeSessions, err := c.Episodes(cmd.Context())
		if err != nil {
			return err
		}
		numbers := make([]int, 0, len(episodeSessions))
		for n := range episodeSessions {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)
		for _, n := range numbers {
			fmt.Println(n)
		}
		return nil
	},
}
