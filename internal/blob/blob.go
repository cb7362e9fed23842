// Package blob stores receipt files on local disk, S3 or Google Cloud Storage.
//
// Every backend names objects <folder>/<uuid><ext> so uploaded names never
// collide, and returns a URL that its own Download and Delete resolve.
package blob

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrForeignURL is returned when a backend is handed a URL it did not issue.
var ErrForeignURL = errors.New("url does not belong to this storage")

// objectKey builds the stored object name for an upload.
func objectKey(folder, name, mimeType string) string {
	file := uuid.NewString() + extension(name, mimeType)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return file
	}
	return path.Join(folder, file)
}

// extension keeps the uploaded file's extension, falling back to one derived
// from the MIME type.
func extension(name, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && len(ext) <= 6 {
		return ext
	}
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// splitBucketURL parses scheme://bucket/key.
func splitBucketURL(scheme, url string) (bucket, key string, err error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(url, prefix) {
		return "", "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	parts := strings.SplitN(strings.TrimPrefix(url, prefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	return parts[0], parts[1], nil
}
