package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested data sources",
	Long: `List every ingested data source with its status and vector count.

Statuses:
  completed        searchable
  processing       ingestion in flight
  need_processing  vectors cleared, waiting for re-ingestion
  failed           ingestion failed`,
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var listing dataSourcesResponse
	if err := c.get("/manual/data_sources", nil, &listing); err != nil {
		return err
	}

	if len(listing.Files) == 0 {
		fmt.Println("No data sources ingested")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("Data sources (%d, %d vectors):\n", listing.TotalFiles, listing.TotalVectors)
	for _, f := range listing.Files {
		fmt.Printf("  %s %s (%d vectors)\n", statusBadge(f.Status), f.SourcePath, f.VectorCount)
		if f.SourceName != "" {
			fmt.Printf("      name: %s\n", f.SourceName)
		}
	}
	return nil
}

// statusBadge renders a source status as a colored fixed-width tag.
func statusBadge(status string) string {
	switch status {
	case "completed":
		return color.GreenString("[%-15s]", status)
	case "processing":
		return color.YellowString("[%-15s]", status)
	case "failed":
		return color.RedString("[%-15s]", status)
	case "need_processing":
		return color.CyanString("[%-15s]", status)
	default:
		return fmt.Sprintf("[%-15s]", status)
	}
}
