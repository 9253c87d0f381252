// Package coverage uploads coverage report files to an external coverage
// service over HTTP. Uploads are fail-fast: any rejected file aborts the
// remaining batch so a broken token or endpoint surfaces immediately.
package coverage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Uploader posts coverage files to a single endpoint.
type Uploader struct {
	url    string
	token  string
	client *http.Client
	log    *zap.Logger
}

// NewUploader returns an Uploader for the given endpoint. A nil logger
// disables logging.
func NewUploader(url, token string, log *zap.Logger) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    log,
	}
}

// Glob returns files under dir matching pattern, for upload.
func Glob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("coverage: glob %q: %w", pattern, err)
	}
	return matches, nil
}

// UploadAll posts each file in order, stopping at the first failure.
func (u *Uploader) UploadAll(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := u.Upload(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Upload posts one file as a multipart form. Any non-2xx response is a hard
// error carrying the status and response body.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("coverage: open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("coverage: build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("coverage: read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("coverage: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &buf)
	if err != nil {
		return fmt.Errorf("coverage: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("coverage: upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("coverage: upload %s: %s: %s", path, resp.Status, bytes.TrimSpace(body))
	}
	u.log.Info("uploaded coverage report", zap.String("file", filepath.Base(path)))
	return nil
}
