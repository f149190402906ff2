package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const downloadTimeout = 60 * time.Second

// downloadCSV fetches the export file and returns its body. The caller owns
// closing the returned reader.
func downloadCSV(ctx context.Context, client *http.Client, downloadURL string) (io.ReadCloser, error) {
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download csv: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download csv: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
