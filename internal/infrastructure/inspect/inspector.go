// Package inspect sniffs capture payloads and reports their format and
// dimensions before anything is sent upstream.
package inspect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/docuflow/capture/internal/core/domain"
	"github.com/docuflow/capture/internal/core/ports"
)

var (
	jpegMagic = []byte{0xff, 0xd8, 0xff}
	pngMagic  = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	pdfMagic  = []byte("%PDF-")
)

type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

// Inspect identifies the payload by magic bytes, never by filename
// extension. The filename is only used in error messages.
func (i *Inspector) Inspect(data []byte, filename string) (ports.ImageInfo, error) {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return inspectRaster(data, "jpeg", filename)
	case bytes.HasPrefix(data, pngMagic):
		return inspectRaster(data, "png", filename)
	case bytes.HasPrefix(data, pdfMagic):
		return inspectPDF(data, filename)
	default:
		verr := domain.ValidationError(fmt.Sprintf("unrecognized file content in %s", filename))
		verr.UserMessage = "We couldn't read this file. Please use a JPEG, PNG, or PDF."
		return ports.ImageInfo{}, verr
	}
}

func inspectRaster(data []byte, format, filename string) (ports.ImageInfo, error) {
	cfg, decoded, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		verr := domain.ValidationError(fmt.Sprintf("corrupt %s data in %s", format, filename))
		verr.UserMessage = "This image appears to be damaged. Please capture it again."
		verr.Err = err
		return ports.ImageInfo{}, verr
	}
	if decoded != format {
		// Magic bytes and decoder disagree; trust the decoder.
		format = decoded
	}
	return ports.ImageInfo{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Pages:  1,
	}, nil
}

// The pdf library panics on some malformed inputs, so parsing is fenced
// with a recover.
func inspectPDF(data []byte, filename string) (info ports.ImageInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			verr := domain.ValidationError(fmt.Sprintf("unreadable pdf in %s: %v", filename, r))
			verr.UserMessage = "This PDF appears to be damaged. Please export it again."
			err = verr
		}
	}()

	reader, readErr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if readErr != nil {
		verr := domain.ValidationError(fmt.Sprintf("unreadable pdf in %s", filename))
		verr.UserMessage = "This PDF appears to be damaged. Please export it again."
		verr.Err = readErr
		return ports.ImageInfo{}, verr
	}
	pages := reader.NumPage()
	if pages < 1 {
		verr := domain.ValidationError(fmt.Sprintf("pdf %s has no pages", filename))
		verr.UserMessage = "This PDF has no pages to process."
		return ports.ImageInfo{}, verr
	}
	return ports.ImageInfo{
		Format: "pdf",
		Pages:  pages,
	}, nil
}

// FormatFromFilename is a fallback hint for upload metadata when the
// caller only has a name.
func FormatFromFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "png"
	case strings.HasSuffix(lower, ".pdf"):
		return "pdf"
	default:
		return ""
	}
}
