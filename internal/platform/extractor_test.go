package platform_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Harvest/internal/http/fetch"
	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/internal/toolrun"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, command string, args []string, timeout time.Duration) (*toolrun.Result, error) {
	called := m.Called(command, args)
	result, _ := called.Get(0).(*toolrun.Result)
	return result, called.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) ResolveRedirect(ctx context.Context, rawURL string, headers fetch.Headers, timeout time.Duration) (string, error) {
	called := m.Called(rawURL)
	return called.String(0), called.Error(1)
}

func (m *mockFetcher) Page(ctx context.Context, rawURL string, headers fetch.Headers, timeout time.Duration) (string, error) {
	called := m.Called(rawURL, headers)
	return called.String(0), called.Error(1)
}

func (m *mockFetcher) JSON(ctx context.Context, rawURL string, headers fetch.Headers, timeout time.Duration, into any) error {
	called := m.Called(rawURL, into)
	return called.Error(0)
}

func (m *mockFetcher) Download(ctx context.Context, rawURL string, dest string, headers fetch.Headers, timeout time.Duration) (int64, error) {
	called := m.Called(rawURL, dest, headers)
	//nolint:forcetypeassert
	return called.Get(0).(int64), called.Error(1)
}

// progressRecorder collects every checkpoint reported to it.
type progressRecorder struct {
	sync.Mutex
	values []int
}

func (r *progressRecorder) Record(percent int) {
	r.Lock()
	defer r.Unlock()
	r.values = append(r.values, percent)
}

func (r *progressRecorder) Values() []int {
	r.Lock()
	defer r.Unlock()
	return slices.Clone(r.values)
}

const ytdlp = "yt-dlp"

func testConfig() platform.Config {
	cfg := platform.DefaultConfig()
	cfg.YtdlpPath = ytdlp
	cfg.ChromePath = "chrome"
	return cfg
}

// isYtdlpDownload matches yt-dlp invocations which write to disk (as
// opposed to metadata-only invocations).
func isYtdlpDownload(args []string) bool { return slices.Contains(args, "-o") }

// outputOf returns the value following "-o" in a yt-dlp argument list.
func outputOf(args []string) string {
	idx := slices.Index(args, "-o")
	return args[idx+1]
}

// writeBytes returns a mock Run func which writes n bytes to the yt-dlp
// output path.
func writeBytes(t *testing.T, n int) func(mock.Arguments) {
	return func(args mock.Arguments) {
		//nolint:forcetypeassert
		dest := outputOf(args.Get(1).([]string))
		require.NoError(t, os.WriteFile(dest, make([]byte, n), 0o644))
	}
}

// downloadBytes returns a mock Run func which writes n bytes to the
// download destination.
func downloadBytes(t *testing.T, n int) func(mock.Arguments) {
	return func(args mock.Arguments) {
		require.NoError(t, os.WriteFile(args.String(1), make([]byte, n), 0o644))
	}
}

func destIn(t *testing.T) string {
	return filepath.Join(t.TempDir(), "task.mp4")
}

func TestDispatcherResolve(t *testing.T) {
	dispatcher := platform.NewDispatcher(testConfig(), &mockRunner{}, &mockFetcher{})

	tests := []struct {
		url  string
		hint string
		want platform.Platform
	}{
		{"https://www.threads.net/@user/post/ABC123", "", platform.Threads},
		{"https://www.threads.com/@user/post/ABC123", "", platform.Threads},
		{"https://www.xiaohongshu.com/explore/64f1", "", platform.Xiaohongshu},
		{"https://xhslink.com/abc123", "", platform.Xiaohongshu},
		{"https://www.douyin.com/video/7301234567890123456", "", platform.Douyin},
		{"https://v.douyin.com/iRNBho6u/", "", platform.Douyin},
		{"https://www.tiktok.com/@someone/video/7301234567890123456", "", platform.Douyin},
		{"https://files.example.com/clips/holiday.MP4", "", platform.Direct},
		{"https://scontent.cdninstagram.com/v/t50/abc", "", platform.Direct},
		{"https://d111111abcdef8.cloudfront.net/media/123", "", platform.Direct},
		{"https://www.threads.net/@user/post/ABC123", "threads", platform.Threads},
		{"https://www.threads.net/@user/post/ABC123", "THREADS", platform.Threads},
		{"https://example.com/anything", "xhs", platform.Xiaohongshu},
		{"https://example.com/anything", "tiktok", platform.Douyin},
		{"https://www.douyin.com/video/1", "unknown-hint", platform.Douyin},
	}

	for _, tt := range tests {
		t.Run(tt.url+"#"+tt.hint, func(t *testing.T) {
			extractor, err := dispatcher.Resolve(tt.url, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, extractor.Platform())
		})
	}
}

func TestDispatcherHintAndSniffAgree(t *testing.T) {
	dispatcher := platform.NewDispatcher(testConfig(), &mockRunner{}, &mockFetcher{})
	urls := map[platform.Platform]string{
		platform.Threads:     "https://www.threads.net/@user/post/ABC123",
		platform.Xiaohongshu: "https://www.xiaohongshu.com/explore/64f1",
		platform.Douyin:      "https://www.douyin.com/video/7301234567890123456",
		platform.Direct:      "https://files.example.com/clip.mp4",
	}

	for _, p := range dispatcher.Platforms() {
		sniffed, err := dispatcher.Resolve(urls[p], "")
		require.NoError(t, err)
		hinted, err := dispatcher.Resolve(urls[p], string(p))
		require.NoError(t, err)
		assert.Same(t, sniffed, hinted, "platform %s", p)
	}
}

func TestDispatcherRejections(t *testing.T) {
	dispatcher := platform.NewDispatcher(testConfig(), &mockRunner{}, &mockFetcher{})

	_, err := dispatcher.Resolve("https://www.youtube.com/watch?v=abc", "")
	assert.ErrorIs(t, err, platform.ErrUnsupportedPlatform)

	_, err = dispatcher.Resolve("https://evil.com/?u=threads.net", "")
	assert.ErrorIs(t, err, platform.ErrUnsupportedPlatform)

	for _, bad := range []string{"", "   ", "threads.net/@user/post/1", "ftp://threads.net/x", "http://"} {
		_, err = dispatcher.Resolve(bad, "threads")
		assert.ErrorIs(t, err, platform.ErrInvalidInput, "input %q", bad)
	}
}

// Scenario: the first strategy succeeds and no fallback runs.
func TestThreadsYtdlpSuccess(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.MatchedBy(isYtdlpDownload)).Return(&toolrun.Result{}, nil).Run(writeBytes(t, 4096)).Once()

	dispatcher := platform.NewDispatcher(testConfig(), runner, &mockFetcher{})
	extractor, err := dispatcher.Resolve("https://www.threads.net/@user/post/ABC123", "")
	require.NoError(t, err)

	dest := destIn(t)
	sink := &progressRecorder{}
	path, err := extractor.Acquire(context.Background(), "https://www.threads.net/@user/post/ABC123", dest, sink)
	require.NoError(t, err)
	assert.Equal(t, dest, path)
	assert.Equal(t, []int{10, 10, 100}, sink.Values())
	runner.AssertExpectations(t)
	runner.AssertNotCalled(t, "Run", "chrome", mock.Anything)
}

// Scenario: an undersized artifact is rejected and the chain falls back
// to the headless browser.
func TestThreadsUndersizedArtifactFallsBack(t *testing.T) {
	html, err := os.ReadFile(filepath.Join("testdata", "threads_rendered.html"))
	require.NoError(t, err)

	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.MatchedBy(isYtdlpDownload)).Return(&toolrun.Result{}, nil).Run(writeBytes(t, 500)).Once()
	runner.On("Run", "chrome", mock.Anything).Return(&toolrun.Result{Stdout: string(html)}, nil).Once()

	fetcher := &mockFetcher{}
	videoURL := "https://scontent.cdninstagram.com/o1/v/t16/clip_video.mp4?efg=abc"
	fetcher.On("Download", videoURL, mock.Anything, mock.Anything).Return(int64(2048), nil).Run(downloadBytes(t, 2048)).Once()

	var failures []string
	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher, platform.WithStrategyFailureHook(func(p platform.Platform, strategy string, _ error) {
		failures = append(failures, string(p)+"/"+strategy)
	}))
	extractor, err := dispatcher.Resolve("https://www.threads.net/@user/post/ABC123", "")
	require.NoError(t, err)

	dest := destIn(t)
	sink := &progressRecorder{}
	path, err := extractor.Acquire(context.Background(), "https://www.threads.net/@user/post/ABC123", dest, sink)
	require.NoError(t, err)
	assert.Equal(t, dest, path)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.EqualValues(t, 2048, info.Size())
	assert.Equal(t, []string{"threads/yt-dlp"}, failures)
	assert.Equal(t, []int{10, 10, 30, 50, 70, 100}, sink.Values())
	runner.AssertExpectations(t)
	fetcher.AssertExpectations(t)
}

// Scenario: every strategy fails, so the chain reports exhaustion with a
// non-empty message and leaves nothing behind.
func TestThreadsAllStrategiesFail(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.MatchedBy(isYtdlpDownload)).Return(&toolrun.Result{ExitCode: 1, Stderr: "ERROR: Unsupported URL"}, nil).Run(writeBytes(t, 100))
	runner.On("Run", "chrome", mock.Anything).Return(&toolrun.Result{Stdout: "<html><body>nothing here</body></html>"}, nil)

	dispatcher := platform.NewDispatcher(testConfig(), runner, &mockFetcher{})
	extractor, err := dispatcher.Resolve("https://www.threads.net/@user/post/ABC123", "")
	require.NoError(t, err)

	dest := destIn(t)
	sink := &progressRecorder{}
	path, err := extractor.Acquire(context.Background(), "https://www.threads.net/@user/post/ABC123", dest, sink)
	assert.Empty(t, path)
	require.ErrorIs(t, err, platform.ErrStrategyExhausted)
	assert.Equal(t, "unable to download this video, please check the link", platform.UserMessage(err))
	assert.NoFileExists(t, dest)
	assert.NotContains(t, sink.Values(), 100)
}

// Scenario: a login wall reported by yt-dlp outranks later generic
// failures when the chain is exhausted.
func TestDouyinToolFaultIsMostDiagnostic(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.MatchedBy(isYtdlpDownload)).Return(&toolrun.Result{ExitCode: 1, Stderr: "ERROR: [Douyin] Fresh cookies are needed"}, nil)

	fetcher := &mockFetcher{}
	fetcher.On("JSON", mock.Anything, mock.Anything).Return(nil)

	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher)
	extractor, err := dispatcher.Resolve("https://www.douyin.com/video/7301234567890123456", "")
	require.NoError(t, err)

	_, err = extractor.Acquire(context.Background(), "https://www.douyin.com/video/7301234567890123456", destIn(t), &progressRecorder{})
	require.ErrorIs(t, err, platform.ErrToolFault)
	assert.Equal(t, "this video requires login to download", platform.UserMessage(err))
	fetcher.AssertCalled(t, "JSON", "https://www.iesdouyin.com/web/api/v2/aweme/iteminfo/?item_ids=7301234567890123456", mock.Anything)
}

func TestDouyinItemInfoFallback(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.MatchedBy(func(args []string) bool {
		return isYtdlpDownload(args) && slices.Contains(args, "best[ext=mp4]/best") && slices.Contains(args, "--no-check-certificates")
	})).Return(&toolrun.Result{ExitCode: 1, Stderr: "ERROR: unable to extract"}, nil).Once()

	fetcher := &mockFetcher{}
	fetcher.On("ResolveRedirect", "https://v.douyin.com/iRNBho6u/").Return("https://www.iesdouyin.com/share/video/7301234567890123456/?region=CN", nil).Once()
	fetcher.On("JSON", "https://www.iesdouyin.com/web/api/v2/aweme/iteminfo/?item_ids=7301234567890123456", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		body := `{"item_list":[{"video":{"play_addr":{"url_list":["https://aweme.snssdk.com/aweme/v1/playwm/?video_id=v0200"]}}}]}`
		require.NoError(t, json.Unmarshal([]byte(body), args.Get(1)))
	}).Once()
	fetcher.On("Download", "https://aweme.snssdk.com/aweme/v1/play/?video_id=v0200", mock.Anything, mock.MatchedBy(func(h fetch.Headers) bool {
		return h["Referer"] == "https://www.douyin.com/"
	})).Return(int64(8192), nil).Run(downloadBytes(t, 8192)).Once()

	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher)
	extractor, err := dispatcher.Resolve("https://v.douyin.com/iRNBho6u/", "")
	require.NoError(t, err)

	sink := &progressRecorder{}
	dest := destIn(t)
	path, err := extractor.Acquire(context.Background(), "https://v.douyin.com/iRNBho6u/", dest, sink)
	require.NoError(t, err)
	assert.Equal(t, dest, path)
	assert.Equal(t, []int{10, 20, 20, 40, 50, 70, 100}, sink.Values())
	runner.AssertExpectations(t)
	fetcher.AssertExpectations(t)
}

// Scenario: a short link which resolves off-domain is discarded and the
// original URL is used for every strategy.
func TestXiaohongshuShortLinkOffDomainIsDiscarded(t *testing.T) {
	const short = "https://xhslink.com/abc123"

	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.MatchedBy(func(args []string) bool {
		return args[len(args)-1] == short && slices.Contains(args, "xiaohongshu:player_format=mp4")
	})).Return(&toolrun.Result{}, nil).Run(writeBytes(t, 4096)).Once()

	fetcher := &mockFetcher{}
	fetcher.On("ResolveRedirect", short).Return("https://evil.example.com/xiaohongshu.com/landing", nil).Once()

	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher)
	extractor, err := dispatcher.Resolve(short, "")
	require.NoError(t, err)

	_, err = extractor.Acquire(context.Background(), short, destIn(t), &progressRecorder{})
	require.NoError(t, err)
	runner.AssertExpectations(t)
	fetcher.AssertExpectations(t)
}

func TestXiaohongshuShortLinkResolvedAndPageScraped(t *testing.T) {
	const (
		short    = "https://xhslink.com/abc123"
		resolved = "https://www.xiaohongshu.com/discovery/item/64f1"
		videoURL = "https://sns-video-bd.xhscdn.com/stream/110/259/01e4.mp4"
	)

	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.MatchedBy(func(args []string) bool {
		return args[len(args)-1] == resolved
	})).Return(nil, toolrun.ErrTimedOut).Once()

	fetcher := &mockFetcher{}
	fetcher.On("ResolveRedirect", short).Return(resolved, nil).Once()
	fetcher.On("Page", resolved, mock.Anything).Return(`<script>{"note":{"video":{"url":"`+videoURL+`"}}}</script>`, nil).Once()
	fetcher.On("Download", videoURL, mock.Anything, mock.MatchedBy(func(h fetch.Headers) bool {
		return h["Referer"] == "https://www.xiaohongshu.com/" && h["User-Agent"] != ""
	})).Return(int64(4096), nil).Run(downloadBytes(t, 4096)).Once()

	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher)
	extractor, err := dispatcher.Resolve(short, "")
	require.NoError(t, err)

	sink := &progressRecorder{}
	_, err = extractor.Acquire(context.Background(), short, destIn(t), sink)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 20, 40, 60, 80, 100}, sink.Values())
	runner.AssertExpectations(t)
	fetcher.AssertExpectations(t)
}

func TestXiaohongshuTimeoutsAreReported(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.Anything).Return(nil, toolrun.ErrTimedOut)

	fetcher := &mockFetcher{}
	fetcher.On("Page", mock.Anything, mock.Anything).Return("", fetch.ErrTimedOut)

	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher)
	extractor, err := dispatcher.Resolve("https://www.xiaohongshu.com/explore/64f1", "")
	require.NoError(t, err)

	_, err = extractor.Acquire(context.Background(), "https://www.xiaohongshu.com/explore/64f1", destIn(t), nil)
	require.ErrorIs(t, err, platform.ErrTimeout)
	assert.NotEmpty(t, platform.UserMessage(err))
}

func TestXiaohongshuExhaustedMessage(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.Anything).Return(&toolrun.Result{ExitCode: 1, Stderr: "ERROR: No video formats found"}, nil)

	fetcher := &mockFetcher{}
	fetcher.On("Page", mock.Anything, mock.Anything).Return("<html>an image note</html>", nil)

	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher)
	extractor, err := dispatcher.Resolve("https://www.xiaohongshu.com/explore/64f1", "")
	require.NoError(t, err)

	_, err = extractor.Acquire(context.Background(), "https://www.xiaohongshu.com/explore/64f1", destIn(t), nil)
	require.ErrorIs(t, err, platform.ErrStrategyExhausted)
	assert.Equal(t, "unable to download this Xiaohongshu video, it may be an image note or an invalid link", platform.UserMessage(err))
}

func TestDirectFetch(t *testing.T) {
	const mediaURL = "https://files.example.com/clips/holiday.mp4"

	fetcher := &mockFetcher{}
	fetcher.On("Download", mediaURL, mock.Anything, mock.Anything).Return(int64(4096), nil).Run(downloadBytes(t, 4096)).Once()

	runner := &mockRunner{}
	dispatcher := platform.NewDispatcher(testConfig(), runner, fetcher)
	extractor, err := dispatcher.Resolve(mediaURL, "")
	require.NoError(t, err)

	sink := &progressRecorder{}
	_, err = extractor.Acquire(context.Background(), mediaURL, destIn(t), sink)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 50, 100}, sink.Values())
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)

	items, err := extractor.EnumerateMedia(context.Background(), mediaURL)
	require.NoError(t, err)
	assert.Equal(t, []platform.MediaItem{{Kind: platform.Video, URL: mediaURL}}, items)
}

func TestAcquireStopsWhenContextCancelled(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", ytdlp, mock.Anything).Return(nil, context.Canceled).Once()

	dispatcher := platform.NewDispatcher(testConfig(), runner, &mockFetcher{})
	extractor, err := dispatcher.Resolve("https://www.threads.net/@user/post/ABC123", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runner.ExpectedCalls[0].Run(func(mock.Arguments) { cancel() })

	_, err = extractor.Acquire(ctx, "https://www.threads.net/@user/post/ABC123", destIn(t), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	runner.AssertNotCalled(t, "Run", "chrome", mock.Anything)
}

func TestThreadsEnumerateMedia(t *testing.T) {
	const post = "https://www.threads.net/@user/post/ABC123"

	t.Run("uses yt-dlp metadata", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("Run", ytdlp, []string{"-j", "--no-warnings", "--no-download", post}).Return(&toolrun.Result{
			Stdout: `{"url":"https://cdn.example/1.mp4","ext":"mp4","duration":61}` + "\n" + `{"url":"https://cdn.example/2.jpg","ext":"jpg"}` + "\n",
		}, nil).Once()

		dispatcher := platform.NewDispatcher(testConfig(), runner, &mockFetcher{})
		extractor, err := dispatcher.Resolve(post, "")
		require.NoError(t, err)

		items, err := extractor.EnumerateMedia(context.Background(), post)
		require.NoError(t, err)
		assert.Equal(t, []platform.MediaItem{
			{Kind: platform.Video, URL: "https://cdn.example/1.mp4", Duration: "1:01"},
			{Kind: platform.Image, URL: "https://cdn.example/2.jpg"},
		}, items)
	})

	t.Run("falls back to the rendered page", func(t *testing.T) {
		html, err := os.ReadFile(filepath.Join("testdata", "threads_rendered.html"))
		require.NoError(t, err)

		runner := &mockRunner{}
		runner.On("Run", ytdlp, mock.Anything).Return(&toolrun.Result{ExitCode: 1}, nil).Once()
		runner.On("Run", "chrome", mock.Anything).Return(&toolrun.Result{Stdout: string(html)}, nil).Once()

		dispatcher := platform.NewDispatcher(testConfig(), runner, &mockFetcher{})
		extractor, err := dispatcher.Resolve(post, "")
		require.NoError(t, err)

		items, err := extractor.EnumerateMedia(context.Background(), post)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})
}

func TestDefaultEnumeration(t *testing.T) {
	dispatcher := platform.NewDispatcher(testConfig(), &mockRunner{}, &mockFetcher{})
	const post = "https://www.xiaohongshu.com/explore/64f1"

	extractor, err := dispatcher.Resolve(post, "")
	require.NoError(t, err)

	items, err := extractor.EnumerateMedia(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, []platform.MediaItem{{Kind: platform.Video, URL: post}}, items)
}

// Scenario: a platform hint routes a URL the platform would not have
// sniffed, and the strategy chain still runs against it.
func TestHintedURLRunsStrategyChain(t *testing.T) {
	t.Run("douyin", func(t *testing.T) {
		const mirror = "https://mirror.example.com/v/7301234567890123456"

		runner := &mockRunner{}
		runner.On("Run", ytdlp, mock.MatchedBy(func(args []string) bool {
			return isYtdlpDownload(args) && args[len(args)-1] == mirror
		})).Return(&toolrun.Result{}, nil).Run(writeBytes(t, 4096)).Once()

		dispatcher := platform.NewDispatcher(testConfig(), runner, &mockFetcher{})
		extractor, err := dispatcher.Resolve(mirror, "douyin")
		require.NoError(t, err)
		require.Equal(t, platform.Douyin, extractor.Platform())

		dest := destIn(t)
		path, err := extractor.Acquire(context.Background(), mirror, dest, &progressRecorder{})
		require.NoError(t, err)
		assert.Equal(t, dest, path)
		runner.AssertExpectations(t)
	})

	t.Run("direct", func(t *testing.T) {
		const stream = "https://media.example.com/stream?id=42"

		fetcher := &mockFetcher{}
		fetcher.On("Download", stream, mock.Anything, mock.Anything).Return(int64(4096), nil).Run(downloadBytes(t, 4096)).Once()

		dispatcher := platform.NewDispatcher(testConfig(), &mockRunner{}, fetcher)
		extractor, err := dispatcher.Resolve(stream, "direct")
		require.NoError(t, err)

		_, err = extractor.Acquire(context.Background(), stream, destIn(t), &progressRecorder{})
		require.NoError(t, err)
		fetcher.AssertExpectations(t)

		items, err := extractor.EnumerateMedia(context.Background(), stream)
		require.NoError(t, err)
		assert.Equal(t, []platform.MediaItem{{Kind: platform.Video, URL: stream}}, items)
	})
}
