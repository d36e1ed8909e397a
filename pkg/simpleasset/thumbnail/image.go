package thumbnail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/tendant/simple-asset/pkg/simpleasset"
	"golang.org/x/image/draw"
)

// DefaultMaxPixels is the largest source picture decoded when no limit is given.
const DefaultMaxPixels = 40_000_000

// ErrImageTooLarge is returned when the declared dimensions exceed MaxPixels.
var ErrImageTooLarge = errors.New("image dimensions too large")

// Image produces thumbnails for photos by scaling the picture down.
type Image struct {
	// MaxWidth caps the thumbnail width; the aspect ratio is kept.
	MaxWidth int
	// MaxPixels caps width*height of the source, checked from the header before decoding.
	MaxPixels int64
	Quality   int
}

var _ simpleasset.ThumbnailGenerator = (*Image)(nil)

// NewImage returns a photo thumbnailer producing JPEGs at most maxWidth pixels wide
// from pictures of at most maxPixels pixels.
func NewImage(maxWidth int, maxPixels int64) *Image {
	if maxWidth <= 0 {
		maxWidth = 640
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Image{MaxWidth: maxWidth, MaxPixels: maxPixels, Quality: 85}
}

// ExtractThumbnail decodes a JPEG or PNG and returns a scaled JPEG. Width and height
// describe the original picture.
func (g *Image) ExtractThumbnail(ctx context.Context, mediaPath string) (*simpleasset.Thumbnail, error) {
	f, err := os.Open(mediaPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	limit := g.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, limit)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	dstW, dstH := w, h
	if w > g.MaxWidth {
		dstW = g.MaxWidth
		dstH = max(1, h*g.MaxWidth/w)
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: g.Quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return &simpleasset.Thumbnail{
		Image:       buf.Bytes(),
		ContentType: "image/jpeg",
		Width:       w,
		Height:      h,
	}, nil
}
