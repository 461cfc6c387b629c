// Package export moves a finished song out of the wizard: to disk, to the
// system player, to S3, or into a CSV listing.
package export

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultFileName is used when the asset URL has no usable basename.
const DefaultFileName = "song.wav"

// Downloader streams an asset URL into a writer.
type Downloader interface {
	Download(ctx context.Context, assetURL string, w io.Writer) (int64, error)
}

// FileName derives the local file name for an asset URL.
func FileName(assetURL string) string {
	raw := strings.TrimSpace(assetURL)
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	base := path.Base(raw)
	switch base {
	case "", ".", "/":
		return DefaultFileName
	}
	if path.Ext(base) == "" {
		return base + ".wav"
	}
	return base
}

// Download writes the asset at assetURL into dir and returns the file path.
// The file only appears once fully written.
func Download(ctx context.Context, d Downloader, assetURL, dir string) (string, error) {
	if d == nil {
		return "", fmt.Errorf("export: downloader is required")
	}
	if strings.TrimSpace(assetURL) == "" {
		return "", fmt.Errorf("export: asset url is required")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create %s: %w", dir, err)
	}
	dest := filepath.Join(dir, FileName(assetURL))
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("export: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := d.Download(ctx, assetURL, tmp); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("export: move download to %s: %w", dest, err)
	}
	return dest, nil
}
