package helpers

import (
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// MediaServer serves a fixed set of files over HTTP, standing in for a
// platform CDN.
type MediaServer struct {
	*httptest.Server
	files map[string][]byte
}

// ServeMedia starts a MediaServer serving the files provided (keyed by
// path, e.g. "/clip.mp4"). Unknown paths receive a 404.
func ServeMedia(t *testing.T, files map[string][]byte) *MediaServer {
	server := &MediaServer{files: files}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := server.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)
	}))
	t.Cleanup(server.Close)

	return server
}

// URLFor returns the absolute URL of the path on this server.
func (server *MediaServer) URLFor(path string) string {
	return server.URL + path
}

// RandomBytes returns n bytes of random content.
func RandomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)

	return b
}
