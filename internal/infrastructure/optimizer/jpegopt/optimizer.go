// Package jpegopt shrinks capture images before upload by capping their
// dimensions and re-encoding as JPEG.
package jpegopt

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/docuflow/capture/internal/core/domain"
	"github.com/docuflow/capture/internal/core/ports"
)

type Config struct {
	MaxDimension int
	Quality      int
}

func DefaultConfig() Config {
	return Config{
		MaxDimension: 2048,
		Quality:      82,
	}
}

func (c *Config) normalize() {
	if c.MaxDimension <= 0 {
		c.MaxDimension = DefaultConfig().MaxDimension
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultConfig().Quality
	}
}

type Optimizer struct {
	cfg Config
}

func New(cfg Config) *Optimizer {
	cfg.normalize()
	return &Optimizer{cfg: cfg}
}

// Optimize re-encodes raster captures. PDFs pass through untouched since the
// backend processes them natively.
func (o *Optimizer) Optimize(_ context.Context, data []byte, info ports.ImageInfo) (ports.OptimizedImage, error) {
	started := time.Now()

	if info.Format == "pdf" {
		return ports.OptimizedImage{
			Data: data,
			Metrics: domain.OptimizationMetrics{
				OriginalBytes:  int64(len(data)),
				OptimizedBytes: int64(len(data)),
				Duration:       time.Since(started),
			},
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ports.OptimizedImage{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	scaled := scaleDown(src, o.cfg.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: o.cfg.Quality}); err != nil {
		return ports.OptimizedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}

	optimized := buf.Bytes()
	// Re-encoding a small or already tight image can grow it; keep the
	// original in that case.
	width, height := scaled.Bounds().Dx(), scaled.Bounds().Dy()
	if int64(len(optimized)) >= int64(len(data)) && width == bounds.Dx() && height == bounds.Dy() {
		optimized = data
		width, height = bounds.Dx(), bounds.Dy()
	}

	metrics := domain.OptimizationMetrics{
		OriginalBytes:   int64(len(data)),
		OptimizedBytes:  int64(len(optimized)),
		OriginalWidth:   bounds.Dx(),
		OriginalHeight:  bounds.Dy(),
		OptimizedWidth:  width,
		OptimizedHeight: height,
		Duration:        time.Since(started),
	}
	if metrics.OriginalBytes > 0 {
		metrics.ReductionPct = 100 * float64(metrics.OriginalBytes-metrics.OptimizedBytes) / float64(metrics.OriginalBytes)
	}
	return ports.OptimizedImage{Data: optimized, Metrics: metrics}, nil
}

// scaleDown resizes with nearest-neighbour sampling when either dimension
// exceeds the cap. Extraction quality tolerates it and it avoids another
// dependency.
func scaleDown(src image.Image, maxDimension int) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return src
	}

	scale := float64(maxDimension) / float64(width)
	if height > width {
		scale = float64(maxDimension) / float64(height)
	}
	outWidth := int(float64(width) * scale)
	outHeight := int(float64(height) * scale)
	if outWidth < 1 {
		outWidth = 1
	}
	if outHeight < 1 {
		outHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, outWidth, outHeight))
	for y := 0; y < outHeight; y++ {
		srcY := bounds.Min.Y + y*height/outHeight
		for x := 0; x < outWidth; x++ {
			srcX := bounds.Min.X + x*width/outWidth
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}
