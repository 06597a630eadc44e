package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ranker/internal/logging"
	"github.com/ppiankov/ranker/internal/pipeline"
	"github.com/ppiankov/ranker/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rank editing HTTP API",
	Long: `Serve exposes batch and single edits as a JSON API under /api/v1.
Edit requests carry the user's OAuth 2 access token as
"Authorization: Bearer <token>".

Example:
  ranker serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := pipeline.NewPipeline(cfg, pipeline.WithLogger(logging.Get("pipeline")))
		return server.New(cfg.Server, p, logging.Get("server")).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}
