package thumbnail

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// Router sends media to the generator matching its sniffed content type.
type Router struct {
	Video simpleasset.ThumbnailGenerator
	Image simpleasset.ThumbnailGenerator
}

var _ simpleasset.ThumbnailGenerator = (*Router)(nil)

// NewRouter builds a router. Either generator may be nil to disable that kind.
func NewRouter(video, image simpleasset.ThumbnailGenerator) *Router {
	return &Router{Video: video, Image: image}
}

func (r *Router) ExtractThumbnail(ctx context.Context, mediaPath string) (*simpleasset.Thumbnail, error) {
	mt, err := mimetype.DetectFile(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("detect media type: %w", err)
	}

	kind, _, _ := strings.Cut(mt.String(), "/")
	var gen simpleasset.ThumbnailGenerator
	switch kind {
	case "video":
		gen = r.Video
	case "image":
		gen = r.Image
	}
	if gen == nil {
		return nil, fmt.Errorf("no thumbnail generator for %s", mt.String())
	}
	return gen.ExtractThumbnail(ctx, mediaPath)
}
