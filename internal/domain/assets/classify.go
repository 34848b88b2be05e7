package assets

import (
	"fmt"
	"path"
	"strings"
	"time"
)

var documentMIMEs = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/csv": true,
}

var archiveMIMEs = map[string]bool{
	"application/zip":              true,
	"application/gzip":             true,
	"application/x-tar":            true,
	"application/x-7z-compressed":  true,
	"application/x-rar-compressed": true,
}

// Classify maps a MIME type to an asset type bucket.
func Classify(mimeType string) Type {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return TypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return TypeVideo
	case strings.HasPrefix(mimeType, "text/") && !documentMIMEs[mimeType]:
		return TypeDocument
	case documentMIMEs[mimeType]:
		return TypeDocument
	case archiveMIMEs[mimeType]:
		return TypeArchive
	default:
		return TypeOther
	}
}

// StoragePath builds the content-addressed location for an asset:
// assets/<type>/<yyyy>/<mm>/<dd>/<hash[:2]>/<hash><ext>
// The two-character fan-out keeps directory sizes bounded.
func StoragePath(assetType Type, hash, fileName string, uploadedAt time.Time) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("assets/%s/%04d/%02d/%02d/%s/%s%s",
		assetType,
		uploadedAt.Year(), int(uploadedAt.Month()), uploadedAt.Day(),
		hash[:2], hash, ext)
}
