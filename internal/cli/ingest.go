package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var ingestSourceName string

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <path|url>...",
	Short: "Queue files, directories or YouTube URLs for ingestion and wait",
	Long: `Queue the given paths and URLs for ingestion on a running serve
instance and wait until every resulting source completes or fails.

Directories are expanded server side with the configured ignore globs
applied. YouTube URLs are downloaded, transcribed and indexed.

Examples:
  mcp-brag ingest notes.md
  mcp-brag ingest ./docs --source-name documentation
  mcp-brag ingest https://www.youtube.com/watch?v=dQw4w9WgXcQ`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestSourceName, "source-name", "", "group the ingested sources under one name")
}

func runIngest(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	known, err := listSourcePaths(c)
	if err != nil {
		return err
	}

	// Track file and URL arguments directly; directory expansions are
	// discovered from the listing afterwards.
	var tracked []string
	var dirs []string
	for _, arg := range args {
		if isURL(arg) {
			body := map[string]any{"url": arg}
			if ingestSourceName != "" {
				body["source_name"] = ingestSourceName
			}
			if err := c.post("/manual/process_url_async", body, nil); err != nil {
				return err
			}
			tracked = append(tracked, arg)
			continue
		}

		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("no such file or directory: %s", arg)
		}

		body := map[string]any{"file_path": abs}
		if ingestSourceName != "" {
			body["source_name"] = ingestSourceName
		}
		if err := c.post("/manual/process_file_async", body, nil); err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, abs)
		} else {
			tracked = append(tracked, abs)
		}
	}

	tracked = append(tracked, discoverExpanded(c, dirs, known)...)
	if len(tracked) == 0 {
		fmt.Println("Nothing to ingest")
		return nil
	}

	return waitForIngestion(c, tracked)
}

// discoverExpanded waits for directory expansions to register and returns
// the new source paths under the given directories.
func discoverExpanded(c *client, dirs, known []string) []string {
	if len(dirs) == 0 {
		return nil
	}

	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	// Sources register synchronously during expansion, so one short
	// retry loop is enough for the listing to include them.
	var found []string
	for attempt := 0; attempt < 20; attempt++ {
		paths, err := listSourcePaths(c)
		if err != nil {
			break
		}
		found = found[:0]
		for _, p := range paths {
			if knownSet[p] {
				continue
			}
			for _, dir := range dirs {
				if strings.HasPrefix(p, dir+string(filepath.Separator)) {
					found = append(found, p)
					break
				}
			}
		}
		if len(found) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return found
}

func listSourcePaths(c *client) ([]string, error) {
	var listing dataSourcesResponse
	if err := c.get("/manual/data_sources", nil, &listing); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(listing.Files))
	for _, f := range listing.Files {
		paths = append(paths, f.SourcePath)
	}
	return paths, nil
}

// waitForIngestion polls ingestion_status for every source and renders one
// progress bar over their combined phase percentages.
func waitForIngestion(c *client, sources []string) error {
	bar := progressbar.NewOptions(len(sources)*100,
		progressbar.OptionSetDescription(fmt.Sprintf("Ingesting %d source(s)", len(sources))),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	failed := make(map[string]string)
	for {
		total := 0.0
		pending := 0
		for _, source := range sources {
			var status ingestionStatusResponse
			if err := c.post("/manual/ingestion_status", map[string]string{"source": source}, &status); err != nil {
				return err
			}
			switch status.IngestionStatus {
			case "completed":
				total += 100
			case "failed":
				total += 100
				failed[source] = status.Message
			default:
				pending++
				total += overallPercent(&status)
			}
		}
		bar.Set(int(total))

		if pending == 0 {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	bar.Finish()

	return printIngestResults(c, sources, failed)
}

// overallPercent averages the phase percentages of an in-flight source.
func overallPercent(status *ingestionStatusResponse) float64 {
	if status.Progress == nil || len(status.Progress.PhaseProgresses) == 0 {
		return 0
	}
	total := 0.0
	for _, phase := range status.Progress.PhaseProgresses {
		if phase.Percentage != nil {
			total += *phase.Percentage
		}
	}
	return total / float64(len(status.Progress.PhaseProgresses))
}

func printIngestResults(c *client, sources []string, failed map[string]string) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, source := range sources {
		if msg, ok := failed[source]; ok {
			fmt.Printf("%s %s: %s\n", red("✗"), source, msg)
			continue
		}
		var listing dataSourcesResponse
		query := url.Values{"source": {source}}
		if err := c.get("/manual/data_sources", query, &listing); err != nil {
			return err
		}
		vectors := 0
		if len(listing.File) > 0 {
			vectors = listing.File[0].VectorCount
		}
		fmt.Printf("%s %s (%d vectors)\n", green("✓"), source, vectors)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d source(s) failed to ingest", len(failed), len(sources))
	}
	return nil
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}
