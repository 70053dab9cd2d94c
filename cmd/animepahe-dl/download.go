package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/justchokingaround/animepahe-dl/internal/catalog"
	"github.com/justchokingaround/animepahe-dl/internal/orchestrator"
)

var (
	downloadAudio      string
	downloadResolution string
	downloadOutputDir  string
)

var downloadCmd = &cobra.Command{
	Use:   "download <slug> <episodes...>",
	Short: "Download one or more episodes of a release",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := args[0]
		episodes := make([]int, 0, len(args)-1)
		for _, raw := range args[1:] {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid episode number %q: %w", raw, err)
			}
			episodes = append(episodes, n)
		}

		outputDir := downloadOutputDir
		if outputDir == "" {
			outputDir = cfg.Download.OutputDir
		}

		req := orchestrator.Request{
			Slug:        slug,
			AnimeName:   slug,
			Episodes:    episodes,
			Audio:       downloadAudio,
			Resolution:  downloadResolution,
			DownloadDir: outputDir,
			PrimaryHost: downloadProviderHint,
			Workers:     cfg.Download.Workers,
			OnStatus:    printStatus,
			OnProgress:  printProgress,
		}
		deps := orchestrator.Deps{
			Catalog: catalog.New(cfg.Download.RequestHost, slug, client.GetJSON),
			Client:  client,
			Muxer:   muxer,
			Store:   store,
		}
		return orchestrator.StartDownload(cmd.Context(), req, deps)
	},
}

func formatStatusEvent(e orchestrator.StatusEvent) string {
	if e.Path != "" {
		return fmt.Sprintf("episode %d: %s (%s) -> %s", e.Episode, e.State, e.Message, e.Path)
	}
	return fmt.Sprintf("episode %d: %s (%s)", e.Episode, e.State, e.Message)
}

func formatProgressEvent(e orchestrator.ProgressEvent) string {
	unit := "segments"
	if e.Bytes {
		unit = "bytes"
	}
	return fmt.Sprintf("episode %d: %d/%d %s", e.Episode, e.Done, e.Total, unit)
}

func printStatus(e orchestrator.StatusEvent) {
	fmt.Println(formatStatusEvent(e))
}

func printProgress(e orchestrator.ProgressEvent) {
	fmt.Println(formatProgressEvent(e))
}

func init() {
	downloadCmd.Flags().StringVar(&downloadAudio, "audio", "", "preferred audio track (e.g. eng, jpn)")
	downloadCmd.Flags().StringVar(&downloadResolution, "resolution", "", "preferred resolution (e.g. 1080)")
	downloadCmd.Flags().StringVar(&downloadOutputDir, "output-dir", "", "override the configured output directory")
}
