package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <source>",
	Short: "Show the ingestion status of one data source",
	Long: `Show the ingestion status of a data source, identified by its
absolute path or URL. Relative paths are resolved against the working
directory. While an ingestion is in flight, per-phase progress is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	source := args[0]
	if !isURL(source) {
		if abs, err := filepath.Abs(source); err == nil {
			source = abs
		}
	}

	var status ingestionStatusResponse
	if err := c.post("/manual/ingestion_status", map[string]string{"source": source}, &status); err != nil {
		return err
	}

	fmt.Printf("Source: %s\n", source)
	fmt.Printf("Status: %s\n", statusBadge(status.IngestionStatus))
	if status.Message != "" {
		fmt.Printf("        %s\n", status.Message)
	}

	if status.Progress != nil {
		fmt.Println("Phases:")
		for _, phase := range status.Progress.PhaseProgresses {
			marker := " "
			if phase.IsCurrent {
				marker = ">"
			}
			if phase.Percentage != nil {
				fmt.Printf("  %s %-15s %5.1f%%\n", marker, phase.Phase, *phase.Percentage)
			} else {
				fmt.Printf("  %s %-15s     -\n", marker, phase.Phase)
			}
		}
	}
	return nil
}
