package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justchokingaround/animepahe-dl/internal/catalog"
	"github.com/justchokingaround/animepahe-dl/internal/orchestrator"
	"github.com/justchokingaround/animepahe-dl/internal/statestore"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume an incomplete download record by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		rec, ok, err := store.Get(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no download record with id %q", id)
		}
		if rec.Status == statestore.StatusCompleted {
			fmt.Printf("record %s is already completed: %s\n", id, rec.FilePath)
			return nil
		}

		req := orchestrator.Request{
			AnimeName:   rec.AnimeName,
			Slug:        rec.Slug,
			Episodes:    []int{rec.Episode},
			Audio:       rec.AudioType,
			Resolution:  rec.Resolution,
			DownloadDir: cfg.Download.OutputDir,
			PrimaryHost: downloadProviderHint,
			Workers:     cfg.Download.Workers,
			ResumeID:    rec.ID,
			OnStatus:    printStatus,
			OnProgress:  printProgress,
		}
		deps := orchestrator.Deps{
			Catalog: catalog.New(cfg.Download.RequestHost, rec.Slug, client.GetJSON),
			Client:  client,
			Muxer:   muxer,
			Store:   store,
		}
		return orchestrator.StartDownload(cmd.Context(), req, deps)
	},
}
