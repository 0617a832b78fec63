package processor

import (
	"path/filepath"
	"strings"

	"github.com/mediavault/mediavault/internal/models"
)

// DefaultMimeType is returned for extensions outside the supported set.
const DefaultMimeType = "application/octet-stream"

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".dng":  "image/dng",
	".mp4":  "video/mp4",
	".avi":  "video/avi",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".heic": true, ".heif": true, ".dng": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".wmv": true, ".flv": true, ".webm": true,
}

// MimeTypeFor maps a file path to its MIME type by extension.
func MimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := mimeByExt[ext]; ok {
		return mime
	}
	return DefaultMimeType
}

// ClassifyPath maps a file path to its media type by extension. The second
// return is false for unsupported extensions.
func ClassifyPath(path string) (models.MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExts[ext]:
		return models.MediaTypeImage, true
	case videoExts[ext]:
		return models.MediaTypeVideo, true
	default:
		return "", false
	}
}
