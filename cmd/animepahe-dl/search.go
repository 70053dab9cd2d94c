package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justchokingaround/animepahe-dl/internal/catalog"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the configured host for anime titles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := catalog.Search(cmd.Context(), cfg.Download.RequestHost, args[0], client.GetJSON)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%s\t%s\t%s\n", r.Slug, r.Session, r.Title)
		}
		return nil
	},
}
