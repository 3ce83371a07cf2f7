package platform

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestHostMatches(t *testing.T) {
	tests := []struct {
		url     string
		domains []string
		want    bool
	}{
		{"https://www.threads.net/@user/post/ABC123", []string{"threads.net"}, true},
		{"https://threads.com/@user/post/ABC123", []string{"threads.net", "threads.com"}, true},
		{"https://XHSLINK.com/abc", []string{"xhslink.com"}, true},
		{"https://evilthreads.net/post", []string{"threads.net"}, false},
		{"https://evil.com/?next=threads.net", []string{"threads.net"}, false},
		{"not a url", []string{"threads.net"}, false},
		{"", []string{"threads.net"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, hostMatches(tt.url, tt.domains...))
		})
	}
}

func TestExtractXiaohongshuVideoURL(t *testing.T) {
	t.Run("unescapes JSON slashes", func(t *testing.T) {
		page := `<script>window.__INITIAL_STATE__={"note":{"videoUrl":"https:\u002F\u002Fsns-video.xhscdn.com\u002Fstream\u002Fabc.mp4"}}</script>`
		assert.Equal(t, "https://sns-video.xhscdn.com/stream/abc.mp4", extractXiaohongshuVideoURL(page))
	})

	t.Run("prefers mp4 url fields", func(t *testing.T) {
		page := `{"videoUrl":"https://cdn.example/other"} {"url":"https://cdn.example/clip.mp4?sign=1"}`
		assert.Equal(t, "https://cdn.example/clip.mp4?sign=1", extractXiaohongshuVideoURL(page))
	})

	t.Run("falls back to video element", func(t *testing.T) {
		page := `<div><video class="player" src="https://cdn.example/v/clip"></video></div>`
		assert.Equal(t, "https://cdn.example/v/clip", extractXiaohongshuVideoURL(page))
	})

	t.Run("ignores bare origin keys", func(t *testing.T) {
		page := `{"originVideoKey":"pre_post/abc123"}`
		assert.Empty(t, extractXiaohongshuVideoURL(page))
	})
}

func TestExtractDouyinVideoID(t *testing.T) {
	assert.Equal(t, "7301234567890123456", extractDouyinVideoID("https://www.douyin.com/video/7301234567890123456"))
	assert.Equal(t, "7301234567890123456", extractDouyinVideoID("https://www.tiktok.com/@someone/video/7301234567890123456?lang=en"))
	assert.Equal(t, "123", extractDouyinVideoID("https://www.iesdouyin.com/share?vid=123"))
	assert.Equal(t, "456", extractDouyinVideoID("https://www.iesdouyin.com/web/api?item_ids=456"))
	assert.Empty(t, extractDouyinVideoID("https://www.douyin.com/user/someone"))
}

func TestDouyinPlayAddressStripsWatermark(t *testing.T) {
	var empty douyinItemInfo
	assert.Empty(t, empty.playAddress())

	var info douyinItemInfo
	body := `{"item_list":[{"video":{"play_addr":{"url_list":["https://aweme.snssdk.com/aweme/v1/playwm/?video_id=v0200"]}}}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "https://aweme.snssdk.com/aweme/v1/play/?video_id=v0200", info.playAddress())
}

func TestParseRenderedMedia(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(loadFixture(t, "threads_rendered.html")))
	require.NoError(t, err)

	items := parseRenderedMedia(doc)
	require.Len(t, items, 2)

	assert.Equal(t, Video, items[0].Kind)
	assert.Equal(t, "https://scontent.cdninstagram.com/o1/v/t16/clip_video.mp4?efg=abc", items[0].URL)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/t51/poster.jpg", items[0].Thumbnail)
	assert.Equal(t, 720, items[0].Width)

	assert.Equal(t, Image, items[1].Kind)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/t51/photo_1.jpg", items[1].URL)
	assert.Equal(t, 1080, items[1].Width)

	assert.Equal(t, "https://scontent.cdninstagram.com/o1/v/t16/clip_video.mp4?efg=abc", findVideoElementSource(doc))
}

func TestScanRenderedMedia(t *testing.T) {
	html := loadFixture(t, "threads_markup_only.html")
	assert.Equal(t, "https://scontent.cdninstagram.com/o1/v/t16/f2/m69/post_video.mp4?stp=dst&oh=00", scanRenderedMedia(html))
	assert.Empty(t, scanRenderedMedia(`<img src="https://scontent.cdninstagram.com/v/t51/photo.jpg">`))
}

func TestParseYtdlpRecords(t *testing.T) {
	output := `{"url":"https://cdn.example/a.mp4","ext":"mp4","duration":75.4,"width":720,"height":1280,"thumbnail":"https://cdn.example/a.jpg"}
not json
{"webpage_url":"https://cdn.example/b","ext":"jpg","width":"1080"}
{"ext":"mp4"}
`
	items := parseYtdlpRecords(output)
	require.Len(t, items, 2)

	assert.Equal(t, MediaItem{Kind: Video, URL: "https://cdn.example/a.mp4", Thumbnail: "https://cdn.example/a.jpg", Duration: "1:15", Width: 720, Height: 1280}, items[0])
	assert.Equal(t, MediaItem{Kind: Image, URL: "https://cdn.example/b", Width: 1080}, items[1])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "", formatDuration(0))
	assert.Equal(t, "", formatDuration(-3))
	assert.Equal(t, "0:09", formatDuration(9.9))
	assert.Equal(t, "12:00", formatDuration(720))
}

func TestUserMessageIsNeverEmpty(t *testing.T) {
	assert.Equal(t, "download failed", UserMessage(nil))
	assert.Equal(t, "this video requires login to download", UserMessage(newError(KindToolFault, "this video requires login to download", nil)))
	assert.Equal(t, "connection reset", UserMessage(errors.New("connection reset")))
	assert.Equal(t, "download failed", UserMessage(errors.New("  ")))
}
