package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mediabridge/internal/infra"
)

// Remote result URLs expire after a while on most generative-media services,
// so archiving downloads each asset and stores a durable copy.

// S3Archiver copies result media into an S3-compatible bucket.
type S3Archiver struct {
	client     *minio.Client
	bucket     string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewS3Archiver connects to the configured endpoint and ensures the bucket
// exists.
func NewS3Archiver(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*S3Archiver, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect s3: %w", err)
	}
	found, err := client.BucketExists(ctx, cfg.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !found {
		if err := client.MakeBucket(ctx, cfg.S3Bucket, minio.MakeBucketOptions{Region: cfg.S3Region}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}
	return &S3Archiver{
		client:     client,
		bucket:     cfg.S3Bucket,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}, nil
}

// Archive downloads each result URL and uploads a copy under
// runs/<runID>/<filename>. It returns the stored object keys.
func (a *S3Archiver) Archive(ctx context.Context, runID string, urls []string) ([]string, error) {
	keys := make([]string, 0, len(urls))
	for i, rawURL := range urls {
		data, contentType, err := download(ctx, a.httpClient, rawURL)
		if err != nil {
			return keys, err
		}
		key := "runs/" + runID + "/" + filenameFor(rawURL, contentType, i)
		_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			return keys, fmt.Errorf("storage: upload %s: %w", key, err)
		}
		if a.logger != nil {
			a.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("storage: archived asset")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// FileArchiver stores result media on the local filesystem via a FileStore.
type FileArchiver struct {
	store      *FileStore
	httpClient *http.Client
}

// NewFileArchiver wraps a FileStore as an archiver.
func NewFileArchiver(store *FileStore) *FileArchiver {
	return &FileArchiver{
		store:      store,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Archive downloads each result URL into runs/<runID>/ under the store root.
func (a *FileArchiver) Archive(ctx context.Context, runID string, urls []string) ([]string, error) {
	keys := make([]string, 0, len(urls))
	for i, rawURL := range urls {
		data, contentType, err := download(ctx, a.httpClient, rawURL)
		if err != nil {
			return keys, err
		}
		key, err := a.store.Put(ctx, "runs/"+runID+"/"+filenameFor(rawURL, contentType, i), data)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func download(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage: download asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("storage: download status %d for %s", resp.StatusCode, rawURL)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("storage: read asset: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func filenameFor(rawURL, contentType string, index int) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." && strings.Contains(base, ".") {
			return base
		}
	}
	ext := ".bin"
	switch {
	case strings.HasPrefix(contentType, "image/"):
		ext = "." + strings.TrimPrefix(contentType, "image/")
	case strings.HasPrefix(contentType, "video/"):
		ext = "." + strings.TrimPrefix(contentType, "video/")
	case strings.HasPrefix(contentType, "audio/"):
		ext = "." + strings.TrimPrefix(contentType, "audio/")
	}
	return fmt.Sprintf("asset-%d%s", index, ext)
}
