// Package fetch provides the HTTP client used by the extraction strategies
// for redirect resolution, page scraping, API calls and binary downloads.
package fetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hbomb79/Harvest/pkg/logger"
)

const maxPageBytes = 16 << 20

var (
	log = logger.Get("Fetch")

	ErrTimedOut = errors.New("request timed out")
)

// Headers are applied to every request made with them, overriding the
// browser-like defaults set by the client.
type Headers map[string]string

type (
	Fetcher interface {
		ResolveRedirect(ctx context.Context, rawURL string, headers Headers, timeout time.Duration) (string, error)
		Page(ctx context.Context, rawURL string, headers Headers, timeout time.Duration) (string, error)
		JSON(ctx context.Context, rawURL string, headers Headers, timeout time.Duration, into any) error
		Download(ctx context.Context, rawURL string, dest string, headers Headers, timeout time.Duration) (int64, error)
	}

	Client struct {
		http *http.Client
	}

	// StatusError is returned when a server responds with a non-2xx status.
	StatusError struct {
		URL    string
		Status int
	}
)

func (err *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", err.Status, err.URL)
}

// New creates a client with hardened transport defaults. Per-request
// timeouts are supplied by the caller on every call.
func New() *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        20,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// ValidateURL ensures the URL is absolute and uses http(s).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}

	return nil
}

// ResolveRedirect issues a HEAD request, following redirects, and returns
// the final effective URL. The body is never downloaded.
func (client *Client) ResolveRedirect(ctx context.Context, rawURL string, headers Headers, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.do(ctx, http.MethodHead, rawURL, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	final := resp.Request.URL.String()
	log.Emit(logger.DEBUG, "Resolved %s -> %s\n", rawURL, final)
	return final, nil
}

// Page fetches the body of the URL as text.
func (client *Client) Page(ctx context.Context, rawURL string, headers Headers, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.do(ctx, http.MethodGet, rawURL, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", classify(ctx, fmt.Errorf("reading body of %s: %w", rawURL, err))
	}

	return string(body), nil
}

// JSON fetches the URL and decodes the JSON response body in to 'into'.
func (client *Client) JSON(ctx context.Context, rawURL string, headers Headers, timeout time.Duration, into any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	merged := Headers{"Accept": "application/json"}
	for k, v := range headers {
		merged[k] = v
	}

	resp, err := client.do(ctx, http.MethodGet, rawURL, merged)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(into); err != nil {
		return classify(ctx, fmt.Errorf("decoding JSON from %s: %w", rawURL, err))
	}

	return nil
}

// Download streams the URL to dest. The body is written to a temporary
// '.part' file alongside dest which is renamed in to place only once the
// transfer completes, so a failed download never leaves a partial file
// at dest. The number of bytes written is returned.
func (client *Client) Download(ctx context.Context, rawURL string, dest string, headers Headers, timeout time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.do(ctx, http.MethodGet, rawURL, headers)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating download directory: %w", err)
	}

	partPath := dest + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", partPath, err)
	}

	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(partPath)
		return 0, classify(ctx, fmt.Errorf("writing %s: %w", dest, errors.Join(copyErr, closeErr)))
	}

	if err := os.Rename(partPath, dest); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("moving download in to place: %w", err)
	}

	log.Emit(logger.SUCCESS, "Downloaded %s (%s)\n", rawURL, humanize.Bytes(uint64(written)))
	return written, nil
}

func (client *Client) do(ctx context.Context, method string, rawURL string, headers Headers) (*http.Response, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.http.Do(req)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("%s %s: %w", method, rawURL, err))
	}

	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: resp.Request.URL.String(), Status: resp.StatusCode}
	}

	return nil
}

// classify wraps the error with ErrTimedOut if the context deadline
// was the cause of the failure.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimedOut, err)
	}

	return err
}
