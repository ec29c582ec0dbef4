package pipeline

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	// Registered decoders for incoming frames.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// minFrameBytes rejects payloads too small to hold any real image.
const minFrameBytes = 64

// DefaultMaxPixels bounds decoded frame size to 16 megapixels.
const DefaultMaxPixels = 16 << 20

// Frame is one encoded camera image. It is owned by the caller for the
// duration of a single inference call.
type Frame struct {
	Data   []byte
	Format string // Hint only: "jpeg", "png", "webp"... Empty means sniff.

	err error // set when the transport payload itself was malformed
}

var (
	// ErrEmptyFrame is returned for missing or truncated frame payloads.
	ErrEmptyFrame = errors.New("pipeline: empty frame")

	// ErrFrameTooLarge is returned when a frame header declares more pixels
	// than the configured limit.
	ErrFrameTooLarge = errors.New("pipeline: frame too large")
)

// DecodeError reports a frame that could not be turned into pixels.
type DecodeError struct {
	Format string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("pipeline: decode %s frame: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("pipeline: decode frame: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode returns the frame's pixels, bounded by DefaultMaxPixels.
func (f Frame) Decode() (image.Image, error) {
	return f.DecodeLimit(DefaultMaxPixels)
}

// DecodeLimit returns the frame's pixels. The header is read first and
// frames declaring more than maxPixels are rejected before any pixel
// buffer is allocated.
func (f Frame) DecodeLimit(maxPixels int) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.Data) < minFrameBytes {
		return nil, &DecodeError{Format: f.Format, Err: ErrEmptyFrame}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, &DecodeError{Format: f.Format, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Format: format, Err: ErrEmptyFrame}
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &DecodeError{
			Format: format,
			Err:    fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrFrameTooLarge, cfg.Width, cfg.Height, maxPixels),
		}
	}
	img, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, &DecodeError{Format: f.Format, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Format: format, Err: ErrEmptyFrame}
	}
	return img, nil
}

// FrameFromBase64 decodes a base64 payload, accepting both bare strings and
// data URLs such as "data:image/jpeg;base64,...".
func FrameFromBase64(b64 string) (Frame, error) {
	b64 = strings.TrimSpace(b64)
	format := ""
	if strings.HasPrefix(b64, "data:") {
		header, payload, ok := strings.Cut(b64, ",")
		if !ok {
			return Frame{}, &DecodeError{Err: errors.New("malformed data URL")}
		}
		mime, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
		format = strings.TrimPrefix(mime, "image/")
		b64 = payload
	}

	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		// Some browsers strip padding.
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(b64); rawErr != nil {
			return Frame{}, &DecodeError{Format: format, Err: err}
		}
	}
	return Frame{Data: data, Format: format}, nil
}
