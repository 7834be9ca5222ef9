package remote

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

func newHTTPClient(log *zap.SugaredLogger, retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 100 * time.Millisecond
	}
	retryClient.RetryMax = retryMax
	retryClient.Logger = &logAdapter{SugaredLogger: log}
	return retryClient.StandardClient()
}

// httpBaseURL maps the WebSocket base URL onto the controller's HTTP server.
func httpBaseURL(wsURL string) string {
	switch {
	case strings.HasPrefix(wsURL, "wss://"):
		return "https://" + strings.TrimPrefix(wsURL, "wss://")
	case strings.HasPrefix(wsURL, "ws://"):
		return "http://" + strings.TrimPrefix(wsURL, "ws://")
	}
	return wsURL
}

// Fetch copies a stored file from the controller's /files endpoint into w.
// It returns an error wrapping fs.ErrNotExist if the controller doesn't have the file.
func (c *Client) Fetch(ctx context.Context, name string, w io.Writer) (int64, error) {
	u := httpBaseURL(c.transport.BaseURL()) + "/files/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching %q: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, fmt.Errorf("fetching %q: %w", name, fs.ErrNotExist)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("unexpected HTTP status code %d fetching %q: %s", resp.StatusCode, name, b)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("reading %q: %w", name, err)
	}
	return n, nil
}
