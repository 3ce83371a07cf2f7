package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hbomb79/Harvest/internal"
	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/internal/storage"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	flagPlatform string
	flagOutDir   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download the media from a single post without starting the service",
	Long: `Fetch resolves the platform for the URL provided, runs its strategy chain
and writes the resulting artifact to the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: fetchRun,
}

func init() {
	fetchCmd.Flags().StringVarP(&flagPlatform, "platform", "p", "", "Platform hint (threads | xiaohongshu | xhs | douyin | tiktok | direct)")
	fetchCmd.Flags().StringVarP(&flagOutDir, "out", "o", ".", "Directory the artifact is written to")
}

func fetchRun(cmd *cobra.Command, args []string) error {
	// Progress owns stdout; the log is moved out of the way.
	logger.SetOutput(cmd.ErrOrStderr())

	extractor, err := internal.NewDispatcher(cfg.AcquisitionConfig).Resolve(args[0], flagPlatform)
	if err != nil {
		return errors.New(platform.UserMessage(err))
	}

	if err := os.MkdirAll(flagOutDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	id := uuid.NewString()[:8]
	dest := filepath.Join(flagOutDir, storage.NameFor(id))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.AcquisitionConfig.TaskTimeoutSeconds)*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fetching %s via %s\n", args[0], extractor.Platform())
	sink := platform.ProgressFunc(func(percent int) {
		fmt.Fprintf(out, "\r  progress: %3d%%", percent)
	})

	started := time.Now()
	path, err := extractor.Acquire(ctx, args[0], dest, sink)
	fmt.Fprintln(out)
	if err != nil {
		return errors.New(platform.UserMessage(err))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("inspecting artifact: %w", err)
	}

	fmt.Fprintf(out, "Saved %s (%s) in %s\n", path, humanize.Bytes(uint64(info.Size())), time.Since(started).Round(time.Millisecond))
	return nil
}
