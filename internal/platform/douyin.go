package platform

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hbomb79/Harvest/internal/http/fetch"
)

const douyinItemInfoEndpoint = "https://www.iesdouyin.com/web/api/v2/aweme/iteminfo/?item_ids=%s"

var (
	douyinDomains          = []string{"douyin.com", "tiktok.com"}
	douyinShortLinkDomains = []string{"v.douyin.com", "vm.tiktok.com"}
	douyinResolvedDomains  = []string{"douyin.com", "tiktok.com", "iesdouyin.com"}

	douyinIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/video/(\d+)`),
		regexp.MustCompile(`vid=(\d+)`),
		regexp.MustCompile(`item_ids=(\d+)`),
	}
)

type (
	douyinExtractor struct {
		kit   *toolkit
		chain *chain
	}

	// douyinItemInfo is the subset of the item-info API response used to
	// locate the play address of a post.
	douyinItemInfo struct {
		ItemList []struct {
			Video struct {
				PlayAddr struct {
					URLList []string `json:"url_list"`
				} `json:"play_addr"`
			} `json:"video"`
		} `json:"item_list"`
	}
)

func newDouyinExtractor(kit *toolkit) *douyinExtractor {
	extractor := &douyinExtractor{kit: kit}
	extractor.chain = &chain{
		platform:  Douyin,
		exhausted: "unable to download this video, please check the link",
		strategies: []strategy{
			kit.ytdlpStrategy(ytdlpOptions{
				format:    "best[ext=mp4]/best",
				userAgent: mobileUserAgent,
				extra:     []string{"--no-check-certificates"},
			}, 20),
			{name: "item-info-api", attempt: extractor.apiStrategy},
		},
	}

	return extractor
}

func (extractor *douyinExtractor) Platform() Platform { return Douyin }

func (extractor *douyinExtractor) IsValid(rawURL string) bool {
	return hostMatches(rawURL, douyinDomains...)
}

func (extractor *douyinExtractor) Acquire(ctx context.Context, rawURL string, dest string, sink ProgressSink) (string, error) {
	req := &request{url: rawURL, dest: dest, sink: sink}
	req.progress(10)
	if hostMatches(rawURL, douyinShortLinkDomains...) {
		req.url = extractor.kit.resolveShortLink(ctx, rawURL, func(resolved string) bool {
			return hostMatches(resolved, douyinResolvedDomains...)
		})
	}

	req.progress(20)
	return extractor.chain.run(ctx, extractor.kit, req)
}

func (extractor *douyinExtractor) EnumerateMedia(_ context.Context, rawURL string) ([]MediaItem, error) {
	return defaultEnumeration(rawURL), nil
}

// apiStrategy looks the post up via the item-info API and downloads the
// watermark-free play address.
func (extractor *douyinExtractor) apiStrategy(ctx context.Context, req *request) outcome {
	req.progress(40)
	videoID := extractDouyinVideoID(req.url)
	if videoID == "" {
		return failed(errors.New("unable to parse video ID"))
	}

	req.progress(50)
	var info douyinItemInfo
	endpoint := fmt.Sprintf(douyinItemInfoEndpoint, videoID)
	if err := extractor.kit.fetcher.JSON(ctx, endpoint, fetch.Headers{"User-Agent": mobileUserAgent}, extractor.kit.config.PageTimeout, &info); err != nil {
		return failed(classifyTransportError("item-info lookup", err))
	}

	playURL := info.playAddress()
	if playURL == "" {
		return failed(errors.New("no video link found"))
	}

	req.progress(70)
	return extractor.kit.downloadTo(ctx, playURL, req.dest, fetch.Headers{
		"User-Agent": mobileUserAgent,
		"Referer":    "https://www.douyin.com/",
	})
}

// playAddress returns the first play address of the first item with the
// watermark marker stripped, or "" if the response carries none.
func (info *douyinItemInfo) playAddress() string {
	if len(info.ItemList) == 0 {
		return ""
	}

	urls := info.ItemList[0].Video.PlayAddr.URLList
	if len(urls) == 0 {
		return ""
	}

	return strings.ReplaceAll(urls[0], "playwm", "play")
}

func extractDouyinVideoID(rawURL string) string {
	for _, pattern := range douyinIDPatterns {
		if match := pattern.FindStringSubmatch(rawURL); match != nil {
			return match[1]
		}
	}

	return ""
}
