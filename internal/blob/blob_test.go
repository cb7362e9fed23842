package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		folder, name, mime string
		prefix, ext        string
	}{
		{"receipts", "nota.JPG", "image/jpeg", "receipts/", ".jpg"},
		{"/receipts/", "scan", "application/pdf", "receipts/", ".pdf"},
		{"", "photo", "image/png", "", ".png"},
		{"receipts", "archive.verylongext", "image/png", "receipts/", ".png"},
	}
	for _, tt := range tests {
		key := objectKey(tt.folder, tt.name, tt.mime)
		if !strings.HasPrefix(key, tt.prefix) || !strings.HasSuffix(key, tt.ext) {
			t.Errorf("objectKey(%q, %q) = %q, want prefix %q and ext %q", tt.folder, tt.name, key, tt.prefix, tt.ext)
		}
	}
	if objectKey("r", "a.jpg", "image/jpeg") == objectKey("r", "a.jpg", "image/jpeg") {
		t.Error("expected unique keys for identical uploads")
	}
}

func TestSplitBucketURL(t *testing.T) {
	bucket, key, err := splitBucketURL("gs", "gs://zetafin/receipts/a.pdf")
	if err != nil || bucket != "zetafin" || key != "receipts/a.pdf" {
		t.Fatalf("got %q %q %v", bucket, key, err)
	}
	for _, bad := range []string{"s3://zetafin/a.pdf", "gs://zetafin", "gs:///a.pdf", "https://x/y"} {
		if _, _, err := splitBucketURL("gs", bad); !errors.Is(err, ErrForeignURL) {
			t.Errorf("%q: expected ErrForeignURL, got %v", bad, err)
		}
	}
}

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://localhost:8080/files/")
	if err != nil {
		t.Fatal(err)
	}

	url, err := store.Upload(ctx, []byte("jpeg bytes"), "nota.jpg", "image/jpeg", "receipts")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/files/receipts/") || !strings.HasSuffix(url, ".jpg") {
		t.Fatalf("unexpected url %q", url)
	}

	rel := strings.TrimPrefix(url, "http://localhost:8080/files/")
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
		t.Fatalf("file not written under base dir: %v", err)
	}

	data, err := store.Download(ctx, url)
	if err != nil || string(data) != "jpeg bytes" {
		t.Fatalf("download = %q, %v", data, err)
	}

	deleted, err := store.Delete(ctx, url)
	if err != nil || !deleted {
		t.Fatalf("delete = %v, %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, url)
	if err != nil || deleted {
		t.Fatalf("second delete = %v, %v", deleted, err)
	}
}

func TestLocal_RejectsForeignURLs(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir(), "http://localhost/files")
	if err != nil {
		t.Fatal(err)
	}
	for _, url := range []string{
		"http://elsewhere/files/receipts/a.jpg",
		"http://localhost/files/../secret",
		"http://localhost/files/",
	} {
		if _, err := store.Download(ctx, url); !errors.Is(err, ErrForeignURL) {
			t.Errorf("Download(%q): expected ErrForeignURL, got %v", url, err)
		}
		if _, err := store.Delete(ctx, url); !errors.Is(err, ErrForeignURL) {
			t.Errorf("Delete(%q): expected ErrForeignURL, got %v", url, err)
		}
	}
}

// fakeS3 keeps objects in memory keyed by bucket/key.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := *in.Bucket + "/" + *in.Key
	f.objects[k] = data
	f.types[k] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3(fake, "zetafin-receipts")

	url, err := store.Upload(ctx, []byte("%PDF"), "nota.pdf", "application/pdf", "receipts")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "s3://zetafin-receipts/receipts/") {
		t.Fatalf("unexpected url %q", url)
	}
	key := strings.TrimPrefix(url, "s3://")
	if fake.types[key] != "application/pdf" {
		t.Errorf("content type = %q", fake.types[key])
	}

	data, err := store.Download(ctx, url)
	if err != nil || string(data) != "%PDF" {
		t.Fatalf("download = %q, %v", data, err)
	}

	deleted, err := store.Delete(ctx, url)
	if err != nil || !deleted {
		t.Fatalf("delete = %v, %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, url)
	if err != nil || deleted {
		t.Fatalf("delete of missing object = %v, %v", deleted, err)
	}

	if _, err := store.Download(ctx, url); err == nil {
		t.Error("expected error downloading a deleted object")
	}
	if _, err := store.Delete(ctx, "gs://zetafin-receipts/x"); !errors.Is(err, ErrForeignURL) {
		t.Errorf("expected ErrForeignURL, got %v", err)
	}
}
