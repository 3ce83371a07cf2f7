package integration_test

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/hbomb79/Harvest/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const terminalTimeout = 10 * time.Second

// TestDownload_DirectMediaCompletes ensures that a direct media link is
// downloaded in to storage, served back through the files endpoint, and
// recorded in the journal.
func TestDownload_DirectMediaCompletes(t *testing.T) {
	content := helpers.RandomBytes(t, 64*1024)
	media := helpers.ServeMedia(t, map[string][]byte{"/clip.mp4": content})

	srv := helpers.SpawnHarvest(t, helpers.NewHarvestServiceRequest())
	client := srv.NewClient()

	taskID := client.SubmitDownload(t, media.URLFor("/clip.mp4"), "")
	status := client.WaitForTerminalStatus(t, taskID, terminalTimeout)

	require.Equal(t, string(task.Completed), status.Status, "task failed: %v", status.Error)
	assert.Equal(t, 100, status.Progress)
	assert.Nil(t, status.Error)
	require.NotNil(t, status.DownloadURL)
	assert.Equal(t, "/api/files/"+taskID+".mp4", *status.DownloadURL)

	assert.Equal(t, content, client.DownloadArtifact(t, status))
	assert.FileExists(t, filepath.Join(srv.StoragePath, taskID+".mp4"))

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		entries, err := client.TryListHistory(url.Values{"status": {"completed"}})
		assert.NoError(c, err)
		assert.Len(c, entries, 1)
	}, 2*time.Second, 50*time.Millisecond)

	entries := client.ListHistory(t, url.Values{"status": {"completed"}})
	if assert.Len(t, entries, 1) {
		assert.Equal(t, taskID, entries[0].TaskID)
		assert.Equal(t, string(platform.Direct), entries[0].Platform)
		assert.Equal(t, *status.DownloadURL, entries[0].ResultURL)
	}
}

// TestDownload_MissingMediaFails ensures that a link the CDN cannot serve
// produces a failed task with an explanation, and no artifact.
func TestDownload_MissingMediaFails(t *testing.T) {
	media := helpers.ServeMedia(t, map[string][]byte{})

	srv := helpers.SpawnHarvest(t, helpers.NewHarvestServiceRequest())
	client := srv.NewClient()

	taskID := client.SubmitDownload(t, media.URLFor("/missing.mp4"), "direct")
	status := client.WaitForTerminalStatus(t, taskID, terminalTimeout)

	assert.Equal(t, string(task.Failed), status.Status)
	assert.Nil(t, status.DownloadURL)
	if assert.NotNil(t, status.Error) {
		assert.NotEmpty(t, *status.Error)
	}

	files, err := os.ReadDir(srv.StoragePath)
	require.NoError(t, err)
	assert.Empty(t, files, "failed task should leave nothing in storage")

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		entries, err := client.TryListHistory(url.Values{"status": {"failed"}})
		assert.NoError(c, err)
		if assert.Len(c, entries, 1) {
			assert.Equal(c, taskID, entries[0].TaskID)
			assert.NotEmpty(c, entries[0].Error)
		}
	}, 2*time.Second, 50*time.Millisecond)
}

// TestDownload_UndersizedArtifactFails ensures a download which is too
// small to be real media is treated as a failure.
func TestDownload_UndersizedArtifactFails(t *testing.T) {
	media := helpers.ServeMedia(t, map[string][]byte{"/tiny.mp4": []byte("not a video")})

	srv := helpers.SpawnHarvest(t, helpers.NewHarvestServiceRequest().WithJournalDisabled())
	client := srv.NewClient()

	taskID := client.SubmitDownload(t, media.URLFor("/tiny.mp4"), "")
	status := client.WaitForTerminalStatus(t, taskID, terminalTimeout)

	assert.Equal(t, string(task.Failed), status.Status)
	assert.NoFileExists(t, filepath.Join(srv.StoragePath, taskID+".mp4"))
}

func TestDownload_Rejections(t *testing.T) {
	srv := helpers.SpawnHarvest(t, helpers.NewHarvestServiceRequest().WithJournalDisabled())
	client := srv.NewClient()

	t.Run("UnsupportedPlatform", func(t *testing.T) {
		resp := client.Do(t, http.MethodPost, "/api/download", map[string]string{"url": "https://example.com/some/article"})
		helpers.AssertErrorResponse(t, resp, http.StatusBadRequest, "unsupported platform, only Threads, Xiaohongshu and Douyin links are supported", "UNSUPPORTED_PLATFORM")
	})

	t.Run("MissingURL", func(t *testing.T) {
		resp := client.Do(t, http.MethodPost, "/api/download", map[string]string{"url": "   "})
		helpers.AssertErrorResponse(t, resp, http.StatusBadRequest, "a valid URL is required", "BAD_REQUEST")
	})

	t.Run("UnknownPlatformHint", func(t *testing.T) {
		resp := client.Do(t, http.MethodPost, "/api/download", map[string]string{"url": "https://www.threads.net/@user/post/abc", "platform": "myspace"})
		helpers.AssertErrorResponse(t, resp, http.StatusBadRequest, "a valid URL is required", "BAD_REQUEST")
	})

	t.Run("UnknownTask", func(t *testing.T) {
		_, resp := client.Status(t, "deadbeef")
		helpers.AssertErrorResponse(t, resp, http.StatusNotFound, "task does not exist", "NOT_FOUND")
	})
}

func TestParse_DirectLinks(t *testing.T) {
	srv := helpers.SpawnHarvest(t, helpers.NewHarvestServiceRequest().WithJournalDisabled())
	client := srv.NewClient()

	result := client.Parse(t, "https://cdn.example.com/photos/cover.jpg", "")
	require.True(t, result.Success, "parse failed: %s", result.Error)
	require.Len(t, result.Items, 1)
	assert.Equal(t, platform.Image, result.Items[0].Kind)
	assert.Equal(t, "https://cdn.example.com/photos/cover.jpg", result.Items[0].URL)

	result = client.Parse(t, "https://cdn.example.com/clips/intro.webm", "direct")
	require.True(t, result.Success, "parse failed: %s", result.Error)
	require.Len(t, result.Items, 1)
	assert.Equal(t, platform.Video, result.Items[0].Kind)
}

func TestHistory_UnavailableWhenJournalDisabled(t *testing.T) {
	srv := helpers.SpawnHarvest(t, helpers.NewHarvestServiceRequest().WithJournalDisabled())
	client := srv.NewClient()

	resp := client.Do(t, http.MethodGet, "/api/history", nil)
	helpers.AssertErrorResponse(t, resp, http.StatusServiceUnavailable, "history is not available, the journal is disabled", "UNAVAILABLE")
}
