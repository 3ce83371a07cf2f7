package platform

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

var imageExtensions = map[string]struct{}{"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "gif": {}, "heic": {}}

type (
	ytdlpOptions struct {
		format    string
		userAgent string
		extra     []string
	}

	// ytdlpRecord is the subset of a yt-dlp JSON info record we care about.
	ytdlpRecord struct {
		URL        string  `mapstructure:"url"`
		WebpageURL string  `mapstructure:"webpage_url"`
		Ext        string  `mapstructure:"ext"`
		Vcodec     string  `mapstructure:"vcodec"`
		Thumbnail  string  `mapstructure:"thumbnail"`
		Duration   float64 `mapstructure:"duration"`
		Width      int     `mapstructure:"width"`
		Height     int     `mapstructure:"height"`
	}
)

// ytdlpStrategy invokes the general purpose downloader against the request
// URL, writing directly to the destination.
func (kit *toolkit) ytdlpStrategy(opts ytdlpOptions, checkpoint int) strategy {
	return strategy{
		name: "yt-dlp",
		attempt: func(ctx context.Context, req *request) outcome {
			req.progress(checkpoint)

			format := opts.format
			if format == "" {
				format = "best"
			}

			args := []string{"-f", format, "--merge-output-format", "mp4", "-o", req.dest, "--no-warnings"}
			if opts.userAgent != "" {
				args = append(args, "--user-agent", opts.userAgent)
			}
			args = append(args, opts.extra...)
			args = append(args, req.url)

			if err := os.MkdirAll(filepath.Dir(req.dest), 0o755); err != nil {
				return failed(fmt.Errorf("creating output directory: %w", err))
			}

			result, err := kit.runner.Run(ctx, kit.config.YtdlpPath, args, kit.config.ToolTimeout)
			if err != nil {
				removePartials(req.dest)
				return failed(classifyTransportError("yt-dlp", err))
			}

			if result.ExitCode != 0 {
				removePartials(req.dest)
				if detectToolFault(result.Stderr) {
					return failed(newError(KindToolFault, "this video requires login to download", fmt.Errorf("yt-dlp: %s", firstLine(result.Stderr))))
				}

				return failed(fmt.Errorf("yt-dlp exited with code %d: %s", result.ExitCode, firstLine(result.Stderr)))
			}

			return succeeded(req.dest)
		},
	}
}

// ytdlpEnumerate asks yt-dlp for structured metadata describing each
// media entry of the post (one JSON record per line).
func (kit *toolkit) ytdlpEnumerate(ctx context.Context, rawURL string) ([]MediaItem, error) {
	args := []string{"-j", "--no-warnings", "--no-download", rawURL}
	result, err := kit.runner.Run(ctx, kit.config.YtdlpPath, args, kit.config.ToolTimeout)
	if err != nil {
		return nil, classifyTransportError("yt-dlp metadata", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("yt-dlp exited with code %d: %s", result.ExitCode, firstLine(result.Stderr))
	}

	return parseYtdlpRecords(result.Stdout), nil
}

// parseYtdlpRecords converts newline-delimited yt-dlp JSON output in to
// media items. Malformed lines are skipped.
func parseYtdlpRecords(output string) []MediaItem {
	items := make([]MediaItem, 0)
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			log.Emit(logger.DEBUG, "Skipping malformed yt-dlp record: %v\n", err)
			continue
		}

		var record ytdlpRecord
		if err := mapstructure.WeakDecode(raw, &record); err != nil {
			log.Emit(logger.DEBUG, "Skipping undecodable yt-dlp record: %v\n", err)
			continue
		}

		if item, ok := record.toMediaItem(); ok {
			items = append(items, item)
		}
	}

	return items
}

func (record ytdlpRecord) toMediaItem() (MediaItem, bool) {
	source := record.URL
	if source == "" {
		source = record.WebpageURL
	}
	if source == "" {
		return MediaItem{}, false
	}

	// An image extension carrying a real video codec (e.g. an animated
	// gif transcoded by the platform) is still a video.
	kind := Video
	if _, isImage := imageExtensions[strings.ToLower(record.Ext)]; isImage && (record.Vcodec == "" || record.Vcodec == "none") {
		kind = Image
	}

	return MediaItem{
		Kind:      kind,
		URL:       source,
		Thumbnail: record.Thumbnail,
		Duration:  formatDuration(record.Duration),
		Width:     record.Width,
		Height:    record.Height,
	}, true
}

// formatDuration renders seconds as m:ss, or "" for unknown durations.
func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}

	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func removePartials(dest string) {
	for _, path := range []string{dest, dest + ".part", dest + ".ytdl"} {
		os.Remove(path)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}

	return s
}
