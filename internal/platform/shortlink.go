package platform

import (
	"context"

	"github.com/hbomb79/Harvest/internal/http/fetch"
	"github.com/hbomb79/Harvest/pkg/logger"
)

// resolveShortLink follows the redirects of a platform short link and
// returns the effective URL, but only if it still satisfies accept. Any
// failure, or a redirect to an unrelated domain, leaves the original URL
// in place.
func (kit *toolkit) resolveShortLink(ctx context.Context, rawURL string, accept func(string) bool) string {
	resolved, err := kit.fetcher.ResolveRedirect(ctx, rawURL, fetch.Headers{"User-Agent": mobileUserAgent}, kit.config.PageTimeout)
	if err != nil {
		log.Emit(logger.WARNING, "Short link %s could not be resolved, continuing with original: %v\n", rawURL, err)
		return rawURL
	}

	if !accept(resolved) {
		log.Emit(logger.WARNING, "Short link %s resolved off-domain to %s, discarding resolution\n", rawURL, resolved)
		return rawURL
	}

	log.Emit(logger.DEBUG, "Short link %s resolved to %s\n", rawURL, resolved)
	return resolved
}
