package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"zetafin/internal/log"
)

// Local keeps files under a base directory and serves them from baseURL.
type Local struct {
	baseDir string
	baseURL string
	logger  *log.Logger
}

func NewLocal(baseDir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Local{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.Default(log.ComponentBlob),
	}, nil
}

func (l *Local) Upload(ctx context.Context, data []byte, name, mimeType, folder string) (string, error) {
	key := objectKey(folder, name, mimeType)
	full := filepath.Join(l.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	l.logger.DebugContext(ctx, "File stored", log.FieldFileSize, len(data), "path", full)
	return l.baseURL + "/" + key, nil
}

func (l *Local) Download(ctx context.Context, url string) ([]byte, error) {
	full, err := l.pathFor(url)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete reports false when the file does not exist.
func (l *Local) Delete(ctx context.Context, url string) (bool, error) {
	full, err := l.pathFor(url)
	if err != nil {
		return false, err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove file: %w", err)
	}
	return true, nil
}

// pathFor maps a URL issued by Upload back to a path inside baseDir.
func (l *Local) pathFor(url string) (string, error) {
	if !strings.HasPrefix(url, l.baseURL+"/") {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	rel := filepath.FromSlash(strings.TrimPrefix(url, l.baseURL+"/"))
	full := filepath.Join(l.baseDir, rel)

	inside, err := filepath.Rel(l.baseDir, full)
	if err != nil || inside == "." || strings.HasPrefix(inside, "..") {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	return full, nil
}
