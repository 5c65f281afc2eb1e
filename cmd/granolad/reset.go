package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KarlRaf/granola-linear-integration/internal/logging"
	"github.com/KarlRaf/granola-linear-integration/internal/store"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear action items and processed-meeting markers",
	Long: `Reset clears all stored action items and the processed-meeting
markers, so the next pass re-extracts every meeting in the cache.
Settings (custom prompt, default team) are preserved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset()
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip confirmation prompt")
}

func runReset() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path, logging.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	stats := st.Stats()
	if stats["total"] == 0 {
		fmt.Println("Store is already empty.")
		return nil
	}

	if !resetForce {
		fmt.Printf("This will delete %d action items and all processed-meeting markers from %s.\n",
			stats["total"], cfg.Store.Path)
		fmt.Print("Continue? [y/N]: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	st.ResetAll(context.Background())
	fmt.Println("Store reset. The next pass will reprocess all meetings.")
	return nil
}
