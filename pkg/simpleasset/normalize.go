package simpleasset

import (
	"fmt"
	"strings"
)

const (
	// MediaPrefix is the locator prefix of uploaded media files.
	MediaPrefix = "/videos/"
	// ThumbnailPrefix is the locator prefix of thumbnail images.
	ThumbnailPrefix = "/images/videos/"
)

func formatResolution(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}

// NormalizeContentType lowercases a content type and strips its parameters.
// image/jpg is folded into image/jpeg.
func NormalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

// normalizeExtension returns a lowercase ".ext" made of ASCII letters and digits, or "".
func normalizeExtension(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}

// ValidLocator reports whether loc is a store-relative locator under a known prefix
// that cannot escape it.
func ValidLocator(loc string) bool {
	if !strings.HasPrefix(loc, MediaPrefix) && !strings.HasPrefix(loc, ThumbnailPrefix) {
		return false
	}
	for _, seg := range strings.Split(loc, "/") {
		if seg == ".." || seg == "." {
			return false
		}
	}
	return !strings.Contains(loc, "\\")
}
