package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"time"

	"github.com/desertthunder/rankwatch/internal/shared"
)

// Snapshotter captures evidence screenshots as low-quality JPEGs.
type Snapshotter struct {
	Dir     string
	Quality int
	Now     func() time.Time
}

// NewSnapshotter returns a Snapshotter writing into dir.
func NewSnapshotter(dir string, quality int) *Snapshotter {
	return &Snapshotter{Dir: dir, Quality: quality, Now: time.Now}
}

// Filename builds yymmdd_HHMMSS_<area>_<keyword>.jpg with unsafe characters replaced.
func (s *Snapshotter) Filename(area, keyword string) string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return fmt.Sprintf("%s_%s_%s.jpg",
		now().Format("060102_150405"),
		shared.SanitizeFilename(area),
		shared.SanitizeFilename(keyword),
	)
}

// Capture screenshots the session and writes the JPEG, returning its path.
//
// A nil Snapshotter captures nothing and returns an empty path.
func (s *Snapshotter) Capture(ctx context.Context, sess Session, area, keyword string) (string, error) {
	if s == nil {
		return "", nil
	}
	raw, err := sess.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	data, err := EncodeJPEG(raw, s.Quality)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, s.Filename(area, keyword))
	if err := shared.WriteFileAtomic(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// EncodeJPEG flattens a PNG onto white and re-encodes it at quality.
func EncodeJPEG(pngData []byte, quality int) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Over)

	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
