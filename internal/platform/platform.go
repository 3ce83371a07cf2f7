// Package platform contains the per-platform media extractors, the ordered
// strategy chains they run, and the dispatcher which selects an extractor
// for a given URL.
package platform

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/hbomb79/Harvest/internal/http/fetch"
	"github.com/hbomb79/Harvest/internal/toolrun"
	"github.com/hbomb79/Harvest/pkg/logger"
)

var log = logger.Get("Platform")

type Platform string

const (
	Threads     Platform = "threads"
	Xiaohongshu Platform = "xiaohongshu"
	Douyin      Platform = "douyin"
	Direct      Platform = "direct"
)

const (
	// MinArtifactBytes is the smallest output a strategy may produce and
	// still be considered successful.
	MinArtifactBytes = 1024

	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
)

type (
	// ProgressSink receives progress checkpoints (0-100) as a strategy
	// chain executes.
	ProgressSink interface {
		Record(percent int)
	}

	// ProgressFunc adapts a plain function to a ProgressSink.
	ProgressFunc func(percent int)

	MediaKind string

	MediaItem struct {
		Kind      MediaKind `json:"type"`
		URL       string    `json:"url"`
		Thumbnail string    `json:"thumbnail,omitempty"`
		Duration  string    `json:"duration,omitempty"`
		Width     int       `json:"width,omitempty"`
		Height    int       `json:"height,omitempty"`
	}

	// Extractor is implemented once per supported platform.
	Extractor interface {
		Platform() Platform
		IsValid(rawURL string) bool

		// Acquire runs the platforms strategy chain against the URL, writing
		// the resulting artifact to dest. The path of the written artifact
		// is returned on success; a classified *Error is returned on failure.
		// The URL is not re-checked against IsValid, as a platform hint may
		// route any well-formed URL here.
		Acquire(ctx context.Context, rawURL string, dest string, sink ProgressSink) (string, error)

		// EnumerateMedia lists the media contained in the post at the URL.
		EnumerateMedia(ctx context.Context, rawURL string) ([]MediaItem, error)
	}

	Config struct {
		YtdlpPath       string
		ChromePath      string
		ToolTimeout     time.Duration
		PageTimeout     time.Duration
		DownloadTimeout time.Duration
		BrowserTimeout  time.Duration
	}

	// StrategyFailureHook is notified every time a strategy within a chain fails.
	StrategyFailureHook func(platform Platform, strategy string, err error)

	// toolkit bundles the collaborators shared by every extractor.
	toolkit struct {
		config    Config
		runner    toolrun.Runner
		fetcher   fetch.Fetcher
		onFailure StrategyFailureHook
	}
)

const (
	Video MediaKind = "video"
	Image MediaKind = "image"
)

func (f ProgressFunc) Record(percent int) { f(percent) }

// DefaultConfig returns the tool paths and timeout budgets used when
// none are configured.
func DefaultConfig() Config {
	return Config{
		YtdlpPath:       "yt-dlp",
		ChromePath:      "chromium",
		ToolTimeout:     120 * time.Second,
		PageTimeout:     30 * time.Second,
		DownloadTimeout: 300 * time.Second,
		BrowserTimeout:  180 * time.Second,
	}
}

// defaultEnumeration treats the whole post as a single video item.
func defaultEnumeration(rawURL string) []MediaItem {
	return []MediaItem{{Kind: Video, URL: rawURL}}
}

// hostMatches reports whether the host of the URL equals, or is a
// subdomain of, any of the domains provided.
func hostMatches(rawURL string, domains ...string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}

	for _, domain := range domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}

	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Hostname())
}
