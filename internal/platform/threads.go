package platform

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hbomb79/Harvest/internal/http/fetch"
	"github.com/hbomb79/Harvest/pkg/logger"
)

var threadsDomains = []string{"threads.net", "threads.com"}

type threadsExtractor struct {
	kit   *toolkit
	chain *chain
}

func newThreadsExtractor(kit *toolkit) *threadsExtractor {
	extractor := &threadsExtractor{kit: kit}
	extractor.chain = &chain{
		platform:  Threads,
		exhausted: "unable to download this video, please check the link",
		strategies: []strategy{
			kit.ytdlpStrategy(ytdlpOptions{}, 10),
			{name: "headless-browser", attempt: extractor.browserStrategy},
		},
	}

	return extractor
}

func (extractor *threadsExtractor) Platform() Platform { return Threads }

func (extractor *threadsExtractor) IsValid(rawURL string) bool {
	return hostMatches(rawURL, threadsDomains...)
}

func (extractor *threadsExtractor) Acquire(ctx context.Context, rawURL string, dest string, sink ProgressSink) (string, error) {
	req := &request{url: rawURL, dest: dest, sink: sink}
	req.progress(10)
	return extractor.chain.run(ctx, extractor.kit, req)
}

// EnumerateMedia lists every media item of a (possibly multi-item) post,
// preferring yt-dlp metadata and falling back to the rendered DOM.
func (extractor *threadsExtractor) EnumerateMedia(ctx context.Context, rawURL string) ([]MediaItem, error) {
	items, err := extractor.kit.ytdlpEnumerate(ctx, rawURL)
	if err != nil {
		log.Emit(logger.WARNING, "yt-dlp metadata for %s failed, falling back to browser: %v\n", rawURL, err)
	}
	if len(items) > 0 {
		return items, nil
	}

	html, renderErr := extractor.kit.renderPage(ctx, rawURL, desktopUserAgent)
	if renderErr != nil {
		return nil, newError(KindStrategyExhausted, "unable to read media from this post", errors.Join(err, renderErr))
	}

	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(html))
	if parseErr != nil {
		return nil, newError(KindUnexpectedFault, "unable to parse rendered page", parseErr)
	}

	items = parseRenderedMedia(doc)
	if len(items) == 0 {
		return nil, newError(KindStrategyExhausted, "no media found in this post", err)
	}

	return items, nil
}

// browserStrategy renders the post with headless Chrome, looks for a video
// element (or a CDN media URL in the markup) and downloads it directly.
func (extractor *threadsExtractor) browserStrategy(ctx context.Context, req *request) outcome {
	req.progress(30)
	html, err := extractor.kit.renderPage(ctx, req.url, desktopUserAgent)
	if err != nil {
		return failed(err)
	}

	req.progress(50)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return failed(err)
	}

	mediaURL := findVideoElementSource(doc)
	if mediaURL == "" {
		mediaURL = scanRenderedMedia(html)
	}
	if mediaURL == "" {
		return failed(errors.New("no video link found in rendered page"))
	}

	req.progress(70)
	return extractor.kit.downloadTo(ctx, mediaURL, req.dest, fetch.Headers{
		"User-Agent": desktopUserAgent,
		"Referer":    "https://www.threads.com/",
		"Origin":     "https://www.threads.com",
	})
}
