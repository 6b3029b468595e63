package utils

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

const octetStream = "application/octet-stream"

// DetectMimeAndExt analyzes a byte slice to determine both its MIME type and standard extension.
// It returns ("application/octet-stream", ".bin") if identification fails.
func DetectMimeAndExt(data []byte) (string, string) {
	mimeType := octetStream
	if len(data) > 0 {
		mimeType = http.DetectContentType(data)
	}
	return mimeType, mimeToExt(mimeType)
}

// ResolveMediaType picks the media type of an upload: the declared type
// unless it is empty or generic, then the file extension, then the
// content itself.
func ResolveMediaType(declared, fileName string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != octetStream {
		return declared
	}
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		if byExt := extensionTypes[ext]; byExt != "" {
			return byExt
		}
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	mimeType, _ := DetectMimeAndExt(data)
	return mimeType
}

// extensionTypes covers the upload types whose registration varies between
// systems' mime tables.
var extensionTypes = map[string]string{
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// mimeToExt converts a MIME type to its first standard extension, defaulting to ".bin".
func mimeToExt(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(base)
	if base == octetStream {
		return ".bin"
	}
	for ext, mt := range extensionTypes {
		if mt == base && ext != ".jpeg" && ext != ".tiff" {
			return ext
		}
	}
	exts, err := mime.ExtensionsByType(base)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
