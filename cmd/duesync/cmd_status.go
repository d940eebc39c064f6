package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"duesync/internal/config"
	"duesync/internal/dedup"
)

var statusFlags struct {
	configPath string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the dedup store remembers from previous runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.configPath, "config", config.DefaultPath, "Path to the config file (YAML/JSON)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromPath(statusFlags.configPath)
	if err != nil {
		return err
	}

	store, err := dedup.Open(cfg.StatePath)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("dedup store is empty (no previous runs)")
		return nil
	}

	fmt.Printf("%d tracked assignments\n", len(records))
	fmt.Printf("last sync: %s\n", records[0].LastSeenAt.Local().Format("2006-01-02 15:04"))
	for _, rec := range records {
		fmt.Printf("  %s  due %s  last seen %s\n",
			shortFingerprint(rec.Fingerprint),
			rec.LastDueAt.Local().Format("2006-01-02 15:04"),
			rec.LastSeenAt.Local().Format("2006-01-02"))
	}
	return nil
}

// shortFingerprint abbreviates a fingerprint for display. Rows from older or
// hand-edited stores may hold short values; show those as-is.
func shortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
