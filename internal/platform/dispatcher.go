package platform

import (
	"net/url"
	"strings"

	"github.com/hbomb79/Harvest/internal/http/fetch"
	"github.com/hbomb79/Harvest/internal/toolrun"
)

type (
	// Dispatcher maps an inbound URL, or an explicit platform hint, to the
	// extractor responsible for it.
	Dispatcher struct {
		// extractors are consulted in priority order when sniffing; the
		// direct extractor is always last.
		extractors []Extractor
		hints      map[string]Extractor
	}

	DispatcherOption func(*toolkit)
)

// WithStrategyFailureHook registers a hook invoked whenever any strategy
// of any extractor fails.
func WithStrategyFailureHook(hook StrategyFailureHook) DispatcherOption {
	return func(kit *toolkit) { kit.onFailure = hook }
}

func NewDispatcher(config Config, runner toolrun.Runner, fetcher fetch.Fetcher, opts ...DispatcherOption) *Dispatcher {
	kit := &toolkit{config: config, runner: runner, fetcher: fetcher}
	for _, opt := range opts {
		opt(kit)
	}

	threads := newThreadsExtractor(kit)
	xiaohongshu := newXiaohongshuExtractor(kit)
	douyin := newDouyinExtractor(kit)
	direct := newDirectExtractor(kit)

	return &Dispatcher{
		extractors: []Extractor{threads, xiaohongshu, douyin, direct},
		hints: map[string]Extractor{
			"threads":     threads,
			"xiaohongshu": xiaohongshu,
			"xhs":         xiaohongshu,
			"douyin":      douyin,
			"tiktok":      douyin,
			"direct":      direct,
		},
	}
}

// Resolve selects the extractor for the URL. A recognised hint is trusted
// and bypasses URL sniffing; an unrecognised or empty hint is ignored.
// ErrUnsupportedPlatform is returned if no extractor claims the URL.
func (dispatcher *Dispatcher) Resolve(rawURL string, hint string) (Extractor, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, newError(KindInvalidInput, "a URL is required", nil)
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, newError(KindInvalidInput, "the URL is not a valid http(s) address", err)
	}

	if extractor, ok := dispatcher.hints[strings.ToLower(strings.TrimSpace(hint))]; ok {
		return extractor, nil
	}

	for _, extractor := range dispatcher.extractors {
		if extractor.IsValid(rawURL) {
			return extractor, nil
		}
	}

	return nil, newError(KindUnsupportedPlatform, "unsupported platform, only Threads, Xiaohongshu and Douyin links are supported", nil)
}

// Extractor returns the extractor for a known platform.
func (dispatcher *Dispatcher) Extractor(platform Platform) (Extractor, bool) {
	extractor, ok := dispatcher.hints[string(platform)]
	return extractor, ok
}

// Platforms lists the supported platforms in dispatch priority order.
func (dispatcher *Dispatcher) Platforms() []Platform {
	platforms := make([]Platform, 0, len(dispatcher.extractors))
	for _, extractor := range dispatcher.extractors {
		platforms = append(platforms, extractor.Platform())
	}

	return platforms
}
