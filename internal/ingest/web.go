package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// MaxFetchSize caps downloaded document size at 50MB.
const MaxFetchSize = 50 << 20

// Fetcher downloads documents over HTTP for URL ingestion.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a bounded request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads a URL and returns its bytes and content type. The
// content type comes from the response header, falling back to sniffing
// the body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", qerr.New(qerr.ErrCodeLoadFailed, "invalid document URL", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", qerr.New(qerr.ErrCodeLoadFailed,
			fmt.Sprintf("failed to fetch %s", url), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", qerr.New(qerr.ErrCodeLoadFailed,
			fmt.Sprintf("fetch %s returned status %d", url, resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchSize+1))
	if err != nil {
		return nil, "", qerr.New(qerr.ErrCodeLoadFailed, "failed to read response body", err)
	}
	if len(data) > MaxFetchSize {
		return nil, "", qerr.New(qerr.ErrCodeLoadFailed,
			fmt.Sprintf("document at %s exceeds size limit", url), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
