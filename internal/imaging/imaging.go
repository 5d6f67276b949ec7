// Package imaging normalizes item photos before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxUploadBytes caps the size of an uploaded photo.
const MaxUploadBytes = 10 << 20

var (
	ErrTooLarge          = errors.New("photo too large")
	ErrUnsupportedFormat = errors.New("unsupported photo format")
)

// Options control photo normalization.
type Options struct {
	// MaxDimension bounds the longer side of the stored photo.
	MaxDimension int
	Quality      int
}

// DefaultOptions suit catalog photos of small pieces, where detail matters.
var DefaultOptions = Options{MaxDimension: 1600, Quality: 85}

// Photo is a normalized item photo, always JPEG.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// ProcessPhoto sniffs the upload (JPEG or PNG only, by content rather than
// by client headers), flattens transparency onto white, downscales it to
// fit opts.MaxDimension and re-encodes it as JPEG.
func ProcessPhoto(r io.Reader, opts Options) (*Photo, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultOptions.MaxDimension
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultOptions.Quality
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}

	switch detected := http.DetectContentType(data); detected {
	case "image/jpeg", "image/png":
	default:
		return nil, fmt.Errorf("%w: %s (JPEG and PNG accepted)", ErrUnsupportedFormat, detected)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), opts.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg", Width: w, Height: h}, nil
}

// fit scales w x h down, keeping the aspect ratio, so neither side exceeds
// limit. Images already within bounds are never upscaled.
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
