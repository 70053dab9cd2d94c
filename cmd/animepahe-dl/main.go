// Command animepahe-dl is the thin cobra driver over the download engine
// described in SPEC_FULL.md §6.1: a textual stand-in for the desktop shell
// that would otherwise embed the same Orchestrator.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/justchokingaround/animepahe-dl/internal/assembler"
	"github.com/justchokingaround/animepahe-dl/internal/config"
	"github.com/justchokingaround/animepahe-dl/internal/hostclient"
	"github.com/justchokingaround/animepahe-dl/internal/logging"
	"github.com/justchokingaround/animepahe-dl/internal/statestore"
)

var (
	cfgFile  string
	logLevel string
	noColor  bool
	workers  int
	host     string

	// downloadProviderHint is the provider_hint token (e.g. "kwik") the
	// §4.C step-6 tie-break prefers among surviving candidates. It is a
	// distinct knob from host/RequestHost, which names the scraped site
	// itself and never appears inside a provider_hint string.
	downloadProviderHint string

	cfg    *config.Config
	logger *slog.Logger
	client *hostclient.Client
	store  *statestore.Store
	muxer  *assembler.FFmpegMuxer
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "animepahe-dl",
	Short: "Download anime episodes over HLS from an animepahe-style host",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var v *viper.Viper
		var err error
		cfg, v, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if noColor {
			cfg.Logging.Color = false
		}
		if workers > 0 {
			cfg.Download.Workers = workers
		}
		if host != "" {
			cfg.Download.RequestHost = host
		}

		logger, err = logging.New(logging.Config{
			Level:      cfg.Logging.Level,
			NoColor:    !cfg.Logging.Color,
			FilePath:   cfg.Logging.FilePath,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		slog.SetDefault(logger)

		client, err = hostclient.New(hostclient.Config{
			BaseURL:    cfg.Download.RequestHost,
			UserAgent:  cfg.Download.UserAgent,
			MaxRetries: cfg.Download.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize host client: %w", err)
		}

		store, err = statestore.Open(cfg.Download.StateDBPath)
		if err != nil {
			return fmt.Errorf("failed to open state store: %w", err)
		}

		muxer = assembler.NewFFmpegMuxer(cfg.Download.FFmpegPath)

		v.OnConfigChange(func(e fsnotify.Event) {
			var reloaded config.Config
			if err := v.Unmarshal(&reloaded); err != nil {
				logger.Error("config reload failed", "file", e.Name, "error", err)
				return
			}
			logger.Info("config file changed, reloading", "file", e.Name)
			cfg.Download.Workers = reloaded.Download.Workers
			cfg.Download.MaxRetries = reloaded.Download.MaxRetries
			cfg.Download.OutputDir = reloaded.Download.OutputDir
		})
		v.WatchConfig()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "override the configured segment worker count")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "override the configured streaming host")
	rootCmd.PersistentFlags().StringVar(&downloadProviderHint, "provider", "", "preferred provider_hint token for the source tie-break (e.g. kwik)")

	rootCmd.AddCommand(searchCmd, episodesCmd, downloadCmd, resumeCmd, stateCmd)
}
