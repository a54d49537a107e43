// Package cli implements the mcp-brag command line interface. The serve
// and mcp commands run the service in process; the rest are thin HTTP
// clients against a running serve instance.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-brag",
	Short: "Brag - local retrieval-augmented search over your files",
	Long: `Brag ingests local files and YouTube videos into a vector index and
serves similarity search over them, both through a manual HTTP API and
as an MCP server for LLM assistants.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <app dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig loads BRAG_* variables from a .env file in the working
// directory, if one exists. Real environment variables win.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}
}

// loadConfig resolves the app dir and reads the settings. The BRAG_APP_DIR
// environment variable relocates the whole app dir, and with it every
// path the settings derive from it.
func loadConfig() (*config.Config, error) {
	appDir := os.Getenv("BRAG_APP_DIR")
	cfg, err := config.Load(appDir, cfgFile, logging.New("info", true))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the root logger for in-process commands. The console
// format goes to stderr, so it is safe for the stdio MCP transport too.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := cfg.Str(config.KeyLogLevel)
	if verbose {
		level = "debug"
	}
	return logging.New(level, true)
}
