package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	firebasestorage "firebase.google.com/go/v4/storage"
	"go.uber.org/zap"

	"ai-tools-server/internal/models"
)

// ProgressFunc receives upload progress as a whole percentage from 0 to 100.
type ProgressFunc func(percent int)

// FileStorage persists binary payloads (generated and uploaded images) and
// returns a URL the client can fetch them from.
type FileStorage interface {
	// Upload stores the content of r under destPath. size is the total
	// payload length in bytes and is required for progress reporting;
	// onProgress may be nil.
	Upload(ctx context.Context, r io.Reader, size int64, destPath string, onProgress ProgressFunc) (string, error)
}

// --- Local Disk Storage ---

type localFileStorage struct {
	savePath string
	baseURL  string
	logger   *zap.Logger
}

// NewLocalFileStorage stores files under savePath and serves them from
// baseURL. The directory is created on first use.
func NewLocalFileStorage(savePath, baseURL string, logger *zap.Logger) FileStorage {
	return &localFileStorage{
		savePath: savePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger.Named("LocalFileStorage"),
	}
}

func (s *localFileStorage) Upload(ctx context.Context, r io.Reader, size int64, destPath string, onProgress ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.savePath, filepath.FromSlash(destPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create storage directory: %v", models.ErrStorageFailed, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create file: %v", models.ErrStorageFailed, err)
	}
	defer file.Close()

	written, err := io.Copy(file, newProgressReader(r, size, onProgress))
	if err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("%w: failed to write file: %v", models.ErrStorageFailed, err)
	}

	s.logger.Debug("File saved",
		zap.String("path", fullPath),
		zap.Int64("size_bytes", written),
	)
	return s.baseURL + "/" + destPath, nil
}

// --- Firebase Storage ---

type firebaseFileStorage struct {
	client *firebasestorage.Client
	bucket string
	logger *zap.Logger
}

// NewFirebaseFileStorage uploads files to the given Firebase Storage bucket
// and returns public download URLs.
func NewFirebaseFileStorage(client *firebasestorage.Client, bucket string, logger *zap.Logger) FileStorage {
	return &firebaseFileStorage{
		client: client,
		bucket: bucket,
		logger: logger.Named("FirebaseFileStorage"),
	}
}

func (s *firebaseFileStorage) Upload(ctx context.Context, r io.Reader, size int64, destPath string, onProgress ProgressFunc) (string, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve bucket: %v", models.ErrStorageFailed, err)
	}

	w := bucket.Object(destPath).NewWriter(ctx)
	if _, err := io.Copy(w, newProgressReader(r, size, onProgress)); err != nil {
		w.Close()
		return "", fmt.Errorf("%w: failed to upload object: %v", models.ErrStorageFailed, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to finalize upload: %v", models.ErrStorageFailed, err)
	}

	publicURL := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, destPath)
	s.logger.Debug("Object uploaded",
		zap.String("bucket", s.bucket),
		zap.String("path", destPath),
	)
	return publicURL, nil
}

// --- Progress Reader ---

// progressReader reports read progress as a percentage of the expected size.
// It reports a given percentage at most once and always ends at 100 when the
// stream is fully consumed.
type progressReader struct {
	inner        io.Reader
	total        int64
	read         int64
	lastReported int
	onProgress   ProgressFunc
}

func newProgressReader(r io.Reader, total int64, onProgress ProgressFunc) io.Reader {
	if onProgress == nil || total <= 0 {
		return r
	}
	return &progressReader{inner: r, total: total, lastReported: -1, onProgress: onProgress}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.inner.Read(buf)
	if n > 0 {
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.lastReported {
			p.lastReported = percent
			p.onProgress(percent)
		}
	}
	return n, err
}
