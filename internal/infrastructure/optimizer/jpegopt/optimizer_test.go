package jpegopt

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/docuflow/capture/internal/core/ports"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestOptimizeCapsDimensions(t *testing.T) {
	data := encodePNG(t, 400, 200)

	opt := New(Config{MaxDimension: 100, Quality: 80})
	out, err := opt.Optimize(context.Background(), data, ports.ImageInfo{Format: "png", Width: 400, Height: 200})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if out.Metrics.OptimizedWidth != 100 || out.Metrics.OptimizedHeight != 50 {
		t.Fatalf("unexpected optimized dimensions: %dx%d", out.Metrics.OptimizedWidth, out.Metrics.OptimizedHeight)
	}
	if out.Metrics.OriginalWidth != 400 || out.Metrics.OriginalHeight != 200 {
		t.Fatalf("unexpected original dimensions: %dx%d", out.Metrics.OriginalWidth, out.Metrics.OriginalHeight)
	}
	if len(out.Data) == 0 {
		t.Fatalf("expected optimized payload")
	}
}

func TestOptimizePassesPDFThrough(t *testing.T) {
	data := []byte("%PDF-1.7 payload")

	opt := New(DefaultConfig())
	out, err := opt.Optimize(context.Background(), data, ports.ImageInfo{Format: "pdf", Pages: 1})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if !bytes.Equal(out.Data, data) {
		t.Fatalf("expected pdf payload untouched")
	}
	if out.Metrics.OptimizedBytes != int64(len(data)) {
		t.Fatalf("unexpected metrics: %+v", out.Metrics)
	}
}

func TestOptimizeRejectsCorruptImage(t *testing.T) {
	opt := New(DefaultConfig())
	if _, err := opt.Optimize(context.Background(), []byte("not an image"), ports.ImageInfo{Format: "jpeg"}); err == nil {
		t.Fatalf("expected error")
	}
}
