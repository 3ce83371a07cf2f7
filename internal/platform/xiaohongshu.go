package platform

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/hbomb79/Harvest/internal/http/fetch"
)

var (
	xiaohongshuDomains = []string{"xiaohongshu.com", "xhslink.com"}

	xiaohongshuVideoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"url"\s*:\s*"(https?://[^"]+\.mp4[^"]*)"`),
		regexp.MustCompile(`"videoUrl"\s*:\s*"(https?://[^"]+)"`),
		regexp.MustCompile(`<video[^>]+src="(https?://[^"]+)"`),
		regexp.MustCompile(`"originVideoKey"\s*:\s*"([^"]+)"`),
	}
)

type xiaohongshuExtractor struct {
	kit   *toolkit
	chain *chain
}

func newXiaohongshuExtractor(kit *toolkit) *xiaohongshuExtractor {
	extractor := &xiaohongshuExtractor{kit: kit}
	extractor.chain = &chain{
		platform:  Xiaohongshu,
		exhausted: "unable to download this Xiaohongshu video, it may be an image note or an invalid link",
		strategies: []strategy{
			kit.ytdlpStrategy(ytdlpOptions{extra: []string{"--extractor-args", "xiaohongshu:player_format=mp4"}}, 20),
			{name: "page-scrape", attempt: extractor.pageStrategy},
		},
	}

	return extractor
}

func (extractor *xiaohongshuExtractor) Platform() Platform { return Xiaohongshu }

func (extractor *xiaohongshuExtractor) IsValid(rawURL string) bool {
	return hostMatches(rawURL, xiaohongshuDomains...)
}

func (extractor *xiaohongshuExtractor) Acquire(ctx context.Context, rawURL string, dest string, sink ProgressSink) (string, error) {
	req := &request{url: rawURL, dest: dest, sink: sink}
	req.progress(10)
	if hostMatches(rawURL, "xhslink.com") {
		req.url = extractor.kit.resolveShortLink(ctx, rawURL, func(resolved string) bool {
			return hostMatches(resolved, "xiaohongshu.com")
		})
	}

	req.progress(20)
	return extractor.chain.run(ctx, extractor.kit, req)
}

func (extractor *xiaohongshuExtractor) EnumerateMedia(_ context.Context, rawURL string) ([]MediaItem, error) {
	return defaultEnumeration(rawURL), nil
}

// pageStrategy fetches the raw post page as a mobile browser, extracts an
// embedded video URL and downloads it with the platform referer.
func (extractor *xiaohongshuExtractor) pageStrategy(ctx context.Context, req *request) outcome {
	req.progress(40)
	page, err := extractor.kit.fetcher.Page(ctx, req.url, fetch.Headers{"User-Agent": mobileUserAgent}, extractor.kit.config.PageTimeout)
	if err != nil {
		return failed(classifyTransportError("page fetch", err))
	}

	req.progress(60)
	videoURL := extractXiaohongshuVideoURL(page)
	if videoURL == "" {
		return failed(errors.New("no video link found in page"))
	}

	req.progress(80)
	return extractor.kit.downloadTo(ctx, videoURL, req.dest, fetch.Headers{
		"User-Agent": mobileUserAgent,
		"Referer":    "https://www.xiaohongshu.com/",
	})
}

// extractXiaohongshuVideoURL scans the page for the first embedded video
// URL. JSON-escaped slashes are unescaped before matching.
func extractXiaohongshuVideoURL(page string) string {
	page = strings.ReplaceAll(page, `\u002F`, "/")
	for _, pattern := range xiaohongshuVideoPatterns {
		for _, match := range pattern.FindAllStringSubmatch(page, -1) {
			if strings.HasPrefix(match[1], "http") {
				return match[1]
			}
		}
	}

	return ""
}
