package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var deleteByName bool

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <source>",
	Short: "Delete a data source and its vectors",
	Long: `Delete a data source, identified by its absolute path or URL, along
with all of its vectors and keyword index entries.

With --name, the argument is treated as a source name instead and every
data source grouped under it is deleted.

Examples:
  mcp-brag delete /home/me/notes.md
  mcp-brag delete documentation --name`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVar(&deleteByName, "name", false, "delete every source grouped under this source name")
}

func runDelete(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var resp messageResponse
	if deleteByName {
		body := map[string]string{"source_name": args[0]}
		if err := c.post("/manual/delete_data_sources_by_name", body, &resp); err != nil {
			return err
		}
	} else {
		source := args[0]
		if !isURL(source) {
			if abs, err := filepath.Abs(source); err == nil {
				source = abs
			}
		}
		body := map[string]string{"source": source}
		if err := c.post("/manual/delete_data_source", body, &resp); err != nil {
			return err
		}
	}

	fmt.Println(resp.Message)
	return nil
}
