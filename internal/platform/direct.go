package platform

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/hbomb79/Harvest/internal/http/fetch"
)

var (
	directMediaExtensions = []string{".mp4", ".mov", ".webm", ".m4v", ".mkv", ".jpg", ".jpeg", ".png", ".webp", ".gif"}
	directCDNFragments    = []string{"cdninstagram", "fbcdn", "xhscdn", "douyinvod", "tiktokcdn", "akamaized", "cloudfront"}
)

// directExtractor handles literal media URLs which belong to no
// recognised platform. Its only strategy is a raw fetch of the URL.
type directExtractor struct {
	kit   *toolkit
	chain *chain
}

func newDirectExtractor(kit *toolkit) *directExtractor {
	extractor := &directExtractor{kit: kit}
	extractor.chain = &chain{
		platform:   Direct,
		exhausted:  "unable to download this file, please check the link",
		strategies: []strategy{{name: "raw-fetch", attempt: extractor.fetchStrategy}},
	}

	return extractor
}

func (extractor *directExtractor) Platform() Platform { return Direct }

// IsValid reports whether the URL looks like a media file, either by its
// path extension or by its host belonging to a known media CDN.
func (extractor *directExtractor) IsValid(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	ext := strings.ToLower(path.Ext(u.Path))
	for _, known := range directMediaExtensions {
		if ext == known {
			return true
		}
	}

	return containsAny(strings.ToLower(u.Hostname()), directCDNFragments)
}

func (extractor *directExtractor) Acquire(ctx context.Context, rawURL string, dest string, sink ProgressSink) (string, error) {
	req := &request{url: rawURL, dest: dest, sink: sink}
	req.progress(10)
	return extractor.chain.run(ctx, extractor.kit, req)
}

func (extractor *directExtractor) EnumerateMedia(_ context.Context, rawURL string) ([]MediaItem, error) {
	kind := Video
	if _, isImage := imageExtensions[strings.TrimPrefix(strings.ToLower(path.Ext(rawURLPath(rawURL))), ".")]; isImage {
		kind = Image
	}

	return []MediaItem{{Kind: kind, URL: rawURL}}, nil
}

func (extractor *directExtractor) fetchStrategy(ctx context.Context, req *request) outcome {
	req.progress(50)
	return extractor.kit.downloadTo(ctx, req.url, req.dest, fetch.Headers{"User-Agent": desktopUserAgent})
}

func rawURLPath(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	return u.Path
}
