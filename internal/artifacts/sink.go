// Package artifacts stores failure evidence (screenshots, videos, traces, reports)
// in a local directory or an S3-compatible bucket.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kuitang/knowledge-e2e/internal/config"
)

// Sink stores named artifacts. name is a slash-separated relative key such as
// "screenshots/TestSources_Create.png". Put returns where the artifact ended up.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._/-]+`)

// CleanName turns an arbitrary string (usually a test name) into a safe artifact key.
// Runs of unsafe characters collapse to '_' and parent references are dropped.
func CleanName(name string) string {
	cleaned := unsafeKeyChars.ReplaceAllString(name, "_")
	cleaned = path.Clean("/" + cleaned)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "_"
	}
	return cleaned
}

// DirSink writes artifacts under a root directory.
type DirSink struct {
	Root string
}

// NewDirSink returns a sink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Root: dir}
}

// Put writes data to Root/name, creating parent directories.
func (s *DirSink) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	target := filepath.Join(s.Root, filepath.FromSlash(CleanName(name)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create directory for %q: %w", name, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %q: %w", name, err)
	}
	return target, nil
}

// FromConfig returns the S3 sink when ARTIFACTS_BUCKET is set, otherwise a directory
// sink rooted at ARTIFACTS_DIR.
func FromConfig(ctx context.Context, cfg *config.Config) (Sink, error) {
	if cfg.ArtifactsBucket == "" {
		return NewDirSink(cfg.ArtifactsDir), nil
	}
	return NewS3Sink(ctx, S3Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.ArtifactsBucket,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
}
