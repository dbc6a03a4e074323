// Package storage keeps uploaded attachments (photos, voice notes) and hands
// back the stable public URL they are served from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	ErrObjectTooLarge = errors.New("attachment exceeds maximum allowed size")
	ErrObjectNotFound = errors.New("attachment not found")
	ErrInvalidPrefix  = errors.New("attachment prefix is invalid")
)

type Store struct {
	fs            afero.Fs
	publicBaseURL string
	maxBytes      int64
	httpClient    *http.Client
}

func New(fs afero.Fs, publicBaseURL string, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Store{
		fs:            fs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxBytes:      maxBytes,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewOnDisk roots the store at a directory on the local filesystem.
func NewOnDisk(root, publicBaseURL string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root failed: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), root), publicBaseURL, maxBytes), nil
}

// Upload stores the stream under a new unique name; uploading the same
// bytes twice yields two objects.
func (s *Store) Upload(ctx context.Context, prefix, filename string, r io.Reader) (string, error) {
	prefix = strings.Trim(path.Clean("/"+prefix), "/")
	if prefix == "" || prefix == "." {
		return "", ErrInvalidPrefix
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := path.Join(prefix, fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString(), strings.ToLower(filepath.Ext(filename))))
	if err := s.fs.MkdirAll("/"+prefix, 0o755); err != nil {
		return "", fmt.Errorf("create attachment dir failed: %w", err)
	}
	f, err := s.fs.Create("/" + key)
	if err != nil {
		return "", fmt.Errorf("create attachment failed: %w", err)
	}

	written, copyErr := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && written > s.maxBytes {
		copyErr = ErrObjectTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = s.fs.Remove("/" + key)
		if errors.Is(copyErr, ErrObjectTooLarge) {
			return "", copyErr
		}
		return "", fmt.Errorf("write attachment failed: %w", copyErr)
	}
	return s.publicBaseURL + "/" + key, nil
}

// Open reads an attachment back by URL. URLs under the public base are
// read from the store; anything else is fetched over HTTP.
func (s *Store) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if key, ok := s.keyFor(url); ok {
		f, err := s.fs.Open(key)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrObjectNotFound
			}
			return nil, fmt.Errorf("open attachment failed: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request failed: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment failed: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrObjectNotFound
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch attachment status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// OpenObject opens one stored attachment by key for serving. Directories
// are reported as missing so stored objects can never be listed.
func (s *Store) OpenObject(key string) (afero.File, os.FileInfo, error) {
	key = path.Clean("/" + key)
	info, err := s.fs.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("stat attachment failed: %w", err)
	}
	if info.IsDir() {
		return nil, nil, ErrObjectNotFound
	}
	f, err := s.fs.Open(key)
	if err != nil {
		return nil, nil, fmt.Errorf("open attachment failed: %w", err)
	}
	return f, info, nil
}

func (s *Store) keyFor(url string) (string, bool) {
	if s.publicBaseURL == "" || !strings.HasPrefix(url, s.publicBaseURL+"/") {
		return "", false
	}
	return path.Clean("/" + strings.TrimPrefix(url, s.publicBaseURL+"/")), true
}
