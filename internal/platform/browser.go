package platform

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hbomb79/Harvest/internal/http/fetch"
)

// minImageWidth filters out small images (avatars, icons) when
// enumerating the images of a rendered post.
const minImageWidth = 150

var (
	renderedMediaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`https?://[^"'\s<>]+\.mp4[^"'\s<>]*`),
		regexp.MustCompile(`https?://[^"'\s<>]+\.mov[^"'\s<>]*`),
		regexp.MustCompile(`https?://[^"'\s<>]+\.webm[^"'\s<>]*`),
		regexp.MustCompile(`https?://[^"'\s<>]+instagram[^"'\s<>]*\.fbcdn[^"'\s<>]*`),
		regexp.MustCompile(`https?://[^"'\s<>]+cdninstagram[^"'\s<>]*`),
	}

	cdnImageFragments = []string{"cdninstagram", "fbcdn", "xhscdn", "douyinpic", "tiktokcdn"}
)

// renderPage loads the URL in headless Chrome and returns the serialised
// DOM once scripts have run.
func (kit *toolkit) renderPage(ctx context.Context, rawURL string, userAgent string) (string, error) {
	args := []string{
		"--headless=new",
		"--no-sandbox",
		"--disable-gpu",
		"--disable-dev-shm-usage",
		"--window-size=1920,1080",
		"--virtual-time-budget=8000",
		"--user-agent=" + userAgent,
		"--dump-dom",
		rawURL,
	}

	result, err := kit.runner.Run(ctx, kit.config.ChromePath, args, kit.config.BrowserTimeout)
	if err != nil {
		return "", classifyTransportError("headless browser", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("headless browser exited with code %d: %s", result.ExitCode, firstLine(result.Stderr))
	}
	if strings.TrimSpace(result.Stdout) == "" {
		return "", errors.New("headless browser produced an empty document")
	}

	return result.Stdout, nil
}

// findVideoElementSource returns the first absolute src of a <video>
// element, falling back to <source> elements.
func findVideoElementSource(doc *goquery.Document) string {
	for _, selector := range []string{"video[src]", "source[src]"} {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if src, ok := s.Attr("src"); ok && strings.HasPrefix(src, "http") {
				found = src
				return false
			}
			return true
		})

		if found != "" {
			return found
		}
	}

	return ""
}

// scanRenderedMedia scans raw HTML for known CDN media URL shapes. A
// candidate is accepted if it looks like a video.
func scanRenderedMedia(html string) string {
	for _, pattern := range renderedMediaPatterns {
		for _, match := range pattern.FindAllString(html, -1) {
			match = strings.ReplaceAll(match, "&amp;", "&")
			lower := strings.ToLower(match)
			if strings.Contains(lower, "video") || hasVideoExtension(lower) {
				return match
			}
		}
	}

	return ""
}

// parseRenderedMedia lists every video and sizeable CDN image in the
// rendered document.
func parseRenderedMedia(doc *goquery.Document) []MediaItem {
	items := make([]MediaItem, 0)
	seen := make(map[string]struct{})
	add := func(item MediaItem) {
		if _, dup := seen[item.URL]; dup {
			return
		}
		seen[item.URL] = struct{}{}
		items = append(items, item)
	}

	doc.Find("video").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || !strings.HasPrefix(src, "http") {
			src, ok = s.Find("source[src]").First().Attr("src")
		}
		if !ok || !strings.HasPrefix(src, "http") {
			return
		}

		poster, _ := s.Attr("poster")
		add(MediaItem{Kind: Video, URL: src, Thumbnail: poster, Width: intAttr(s, "width"), Height: intAttr(s, "height")})
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if !strings.HasPrefix(src, "http") || !containsAny(src, cdnImageFragments) {
			return
		}

		width := intAttr(s, "width")
		if width > 0 && width < minImageWidth {
			return
		}

		add(MediaItem{Kind: Image, URL: src, Width: width, Height: intAttr(s, "height")})
	})

	return items
}

// downloadTo fetches the resolved media URL directly to the destination.
func (kit *toolkit) downloadTo(ctx context.Context, mediaURL string, dest string, headers fetch.Headers) outcome {
	if _, err := kit.fetcher.Download(ctx, mediaURL, dest, headers, kit.config.DownloadTimeout); err != nil {
		return failed(classifyTransportError("media download", err))
	}

	return succeeded(dest)
}

func hasVideoExtension(u string) bool {
	path := u
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}

	for _, ext := range []string{".mp4", ".mov", ".webm"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	return false
}

func intAttr(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}

	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil {
		return 0
	}

	return n
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}

	return false
}
