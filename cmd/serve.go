package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Harvest/internal"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Harvest HTTP service",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func serveRun(cmd *cobra.Command, args []string) error {
	harvest, err := internal.New(*cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return harvest.Run(ctx)
}
