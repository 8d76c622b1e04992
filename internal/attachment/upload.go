// Package attachment uploads locally picked images before they are sent.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"schoolbus/internal/api"
	"schoolbus/internal/metrics"
)

// ErrNotImage is returned for files without an image extension.
var ErrNotImage = errors.New("file is not an image")

// ImageRef points at a local image.
type ImageRef struct {
	Path string
}

func (r ImageRef) IsZero() bool { return r.Path == "" }

func (r ImageRef) Name() string { return filepath.Base(r.Path) }

// Uploader posts file content and returns its remote URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, content io.Reader) (string, error)
}

// Coordinator turns an ImageRef into a remote URL. It never retries.
type Coordinator struct {
	uploader Uploader
	metrics  *metrics.Collector
}

func NewCoordinator(u Uploader, m *metrics.Collector) *Coordinator {
	return &Coordinator{uploader: u, metrics: m}
}

// Upload returns the remote URL of img. Every error wraps api.ErrUpload.
func (c *Coordinator) Upload(ctx context.Context, img ImageRef) (string, error) {
	url, err := c.upload(ctx, img)
	if c.metrics != nil {
		c.metrics.Uploads.WithLabelValues(metrics.Result(err)).Inc()
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", api.ErrUpload, err)
	}
	return url, nil
}

func (c *Coordinator) upload(ctx context.Context, img ImageRef) (string, error) {
	if err := Validate(img); err != nil {
		return "", err
	}
	f, err := os.Open(img.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", img.Path, err)
	}
	defer f.Close()

	return c.uploader.Upload(ctx, img.Name(), f)
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

// Validate checks that img names an image file.
func Validate(img ImageRef) error {
	if img.IsZero() {
		return errors.New("no image selected")
	}
	if !imageExts[strings.ToLower(filepath.Ext(img.Path))] {
		return fmt.Errorf("%s: %w", img.Name(), ErrNotImage)
	}
	return nil
}
