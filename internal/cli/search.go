package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	searchOffset  int
	searchKeyword bool
	searchSources []string
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the ingested files",
	Long: `Search for content similar to the query across all completed data
sources and print the matching passages.

With --sources, only the given source paths are searched (deep search).
With --keyword, a full-text keyword query runs instead of similarity
search; the query supports the usual full-text syntax.

Examples:
  mcp-brag search "error handling middleware"
  mcp-brag search "retry loop" --sources /home/me/notes.md
  mcp-brag search "+exact -term" --keyword`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "skip the first N results")
	searchCmd.Flags().BoolVar(&searchKeyword, "keyword", false, "full-text keyword search instead of similarity search")
	searchCmd.Flags().StringSliceVar(&searchSources, "sources", nil, "restrict the search to these source paths")
}

func runSearch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	query := args[0]

	if searchKeyword {
		var resp keywordSearchResponse
		if err := c.post("/manual/keyword_search", map[string]any{"query": query}, &resp); err != nil {
			return err
		}
		if resp.ResultsCount == 0 {
			fmt.Println("No results")
			return nil
		}
		for i, hit := range resp.Results {
			printHit(i, hit.Source, fmt.Sprintf("score %.3f", hit.Score), hit.Text)
		}
		return nil
	}

	var resp searchResponse
	if len(searchSources) > 0 {
		body := map[string]any{"query": query, "sources": searchSources}
		if err := c.post("/manual/deep_search", body, &resp); err != nil {
			return err
		}
	} else {
		body := map[string]any{"query": query, "offset": searchOffset}
		if err := c.post("/manual/search_file", body, &resp); err != nil {
			return err
		}
	}

	if resp.ResultsCount == 0 {
		fmt.Println("No results")
		return nil
	}
	for i, hit := range resp.Results {
		printHit(i, hit.Source, fmt.Sprintf("distance %.3f", hit.Distance), hit.Text)
	}
	fmt.Printf("\n%d result(s) in %ss\n", resp.ResultsCount, resp.SearchTimeSeconds)
	return nil
}

func printHit(i int, source, score, text string) {
	header := color.New(color.Bold, color.FgBlue)
	header.Printf("%d. %s", i+1, source)
	fmt.Printf("  (%s)\n", score)

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		fmt.Printf("   %s\n", line)
	}
	fmt.Println()
}
