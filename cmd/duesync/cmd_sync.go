package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"duesync/internal/canvas"
	"duesync/internal/config"
	"duesync/internal/gradescope"
	"duesync/internal/logging"
	"duesync/internal/runner"
)

var syncFlags struct {
	configPath string
	outputPath string
	debug      bool
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization and write the calendar file",
	Long: `Fetch pending assignments from every configured source, reconcile them
against the dedup store, and write the calendar file.

The config file is produced by the setup wizard. A missing canvas_token
skips the API source; a missing gradescope_auth_mode skips the scrape
source. The run succeeds as long as at least one source does.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	f := syncCmd.Flags()
	f.StringVar(&syncFlags.configPath, "config", config.DefaultPath, "Path to the config file (YAML/JSON)")
	f.StringVarP(&syncFlags.outputPath, "output", "o", "", "Output calendar path (default: from config)")
	f.BoolVar(&syncFlags.debug, "debug", false, "Verbose diagnostic output")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromPath(syncFlags.configPath)
	if err != nil {
		return err
	}
	if syncFlags.outputPath != "" {
		cfg.OutputPath = syncFlags.outputPath
	}
	if syncFlags.debug {
		cfg.Debug = true
	}

	logging.Init(logging.LevelFromDebug(cfg.Debug), "text")
	logger := logging.New("sync")

	sources, cleanup, err := buildSources(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := runner.New(cfg, sources, logger).Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d new, %d updated, %d unchanged, %d skipped\n",
		summary.Diagnosis(), summary.New, summary.Updated, summary.Unchanged, summary.Skipped)
	for name, srcErr := range summary.SourceErrors {
		fmt.Printf("  source %s failed: %v\n", name, srcErr)
	}
	fmt.Printf("wrote %s (%d events)\n", cfg.OutputPath, summary.Assignments)
	return nil
}

// buildSources wires the configured source clients. The returned cleanup
// tears down the scrape source's browser on every exit path.
func buildSources(cfg *config.Config) ([]runner.Source, func(), error) {
	var sources []runner.Source
	cleanup := func() {}

	if cfg.APIConfigured() {
		client, err := canvas.New(cfg.CanvasBaseURL, cfg.CanvasToken,
			canvas.WithLogger(logging.New("canvas")),
			canvas.WithTimeout(30*time.Second))
		if err != nil {
			return nil, cleanup, err
		}
		sources = append(sources, canvas.NewFetcher(client))
	}

	if cfg.ScrapeConfigured() {
		src := gradescope.NewSource(cfg, logging.New("gradescope"))
		sources = append(sources, src)
		cleanup = src.Close
	}

	return sources, cleanup, nil
}
