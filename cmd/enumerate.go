package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/hbomb79/Harvest/internal"
	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/spf13/cobra"
)

var flagJSON bool

var enumerateCmd = &cobra.Command{
	Use:     "enumerate <url>",
	Aliases: []string{"parse"},
	Short:   "List the media contained in a post",
	Args:    cobra.ExactArgs(1),
	RunE:    enumerateRun,
}

func init() {
	enumerateCmd.Flags().StringVarP(&flagPlatform, "platform", "p", "", "Platform hint (threads | xiaohongshu | xhs | douyin | tiktok | direct)")
	enumerateCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the items as JSON")
}

func enumerateRun(cmd *cobra.Command, args []string) error {
	logger.SetOutput(cmd.ErrOrStderr())

	extractor, err := internal.NewDispatcher(cfg.AcquisitionConfig).Resolve(args[0], flagPlatform)
	if err != nil {
		return errors.New(platform.UserMessage(err))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.AcquisitionConfig.TaskTimeoutSeconds)*time.Second)
	defer cancel()

	items, err := extractor.EnumerateMedia(ctx, args[0])
	if err != nil {
		return errors.New(platform.UserMessage(err))
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]any{"platform": extractor.Platform(), "items": items})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tSIZE\tDURATION\tURL")
	for i, item := range items {
		size := "-"
		if item.Width > 0 && item.Height > 0 {
			size = fmt.Sprintf("%dx%d", item.Width, item.Height)
		}
		duration := item.Duration
		if duration == "" {
			duration = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, item.Kind, size, duration, item.URL)
	}

	return w.Flush()
}
