package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/mcp-brag/internal/app"
	"github.com/mvp-joe/mcp-brag/internal/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion workers and the manual HTTP API",
	Long: `Run the full service: the ingestion pipeline workers, the optional
file watcher and the manual HTTP API.

The HTTP API listens on HTTP_HOST:HTTP_PORT (default 127.0.0.1:8000)
and exposes ingestion, search, source management and configuration
endpoints under /manual/, plus Prometheus metrics under /metrics.

The embedding endpoint is probed at startup, so a misconfigured
EMBED_ENDPOINT fails here instead of on the first ingestion.

Example:
  mcp-brag serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}

	if err := a.ServeHTTP(ctx); err != nil {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// serverBaseURL is where the client commands reach a running serve
// instance.
func serverBaseURL(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.Str(config.KeyHTTPHost), cfg.Int(config.KeyHTTPPort))
}
