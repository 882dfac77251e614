// Package imaging gates admission of raw image payloads and derives the
// disposable preview handles attached to admitted records.
package imaging

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tuanvc/snaptext/internal/errors"
)

// MaxImageBytes is the admission size ceiling for a single payload.
const MaxImageBytes = 10 << 20 // 10 MiB

// Upload is a raw image payload plus the two declared attributes the
// validation gate needs. Clipboard paste and file upload both reduce to
// this shape.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Rejection reports why one payload was refused admission.
type Rejection struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// acceptedExtensions maps each accepted content type to its known
// filename extensions.
var acceptedExtensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg", ".jpe", ".jfif"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/bmp":  {".bmp", ".dib"},
	"image/tiff": {".tif", ".tiff"},
	"image/webp": {".webp"},
}

// contentTypeAliases folds the nonstandard spellings browsers and older
// tools still emit into their canonical types.
var contentTypeAliases = map[string]string{
	"image/jpg":      "image/jpeg",
	"image/pjpeg":    "image/jpeg",
	"image/x-png":    "image/png",
	"image/x-ms-bmp": "image/bmp",
	"image/x-bmp":    "image/bmp",
	"image/x-tiff":   "image/tiff",
}

// NormalizeContentType lowercases a declared content type, strips any
// parameters, and folds known aliases.
func NormalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if canonical, ok := contentTypeAliases[ct]; ok {
		return canonical
	}
	return ct
}

// Validate runs the four admission checks in order and returns the first
// failure, or nil when the payload is admissible. The checks are ordered
// so each payload gets the most specific rejection reason: size ceiling,
// emptiness, declared format, then filename extension.
func Validate(u Upload) *errors.AppError {
	if len(u.Data) > MaxImageBytes {
		return errors.ErrImageTooLarge
	}
	if len(u.Data) == 0 {
		return errors.ErrImageEmpty
	}

	ct := NormalizeContentType(u.ContentType)
	exts, ok := acceptedExtensions[ct]
	if !ok {
		return errors.ErrUnsupportedFormat
	}

	ext := strings.ToLower(filepath.Ext(u.Filename))
	for _, known := range exts {
		if ext == known {
			return nil
		}
	}
	return errors.ErrInvalidExtension
}

// AcceptedTypes returns the canonical accepted content types.
func AcceptedTypes() []string {
	types := make([]string, 0, len(acceptedExtensions))
	for ct := range acceptedExtensions {
		types = append(types, ct)
	}
	return types
}

// ExtensionFor returns the primary filename extension for a content
// type, or empty when the type is not accepted. Pasted payloads arrive
// nameless and get their filename synthesized from this.
func ExtensionFor(ct string) string {
	exts, ok := acceptedExtensions[NormalizeContentType(ct)]
	if !ok {
		return ""
	}
	return exts[0]
}

var extContentTypes = func() map[string]string {
	m := make(map[string]string)
	for ct, exts := range acceptedExtensions {
		for _, ext := range exts {
			m[ext] = ct
		}
	}
	return m
}()

// DetectContentType infers a content type for payloads that arrive
// without one, such as files named on the command line. The filename
// extension wins; otherwise the payload bytes are sniffed.
func DetectContentType(filename string, data []byte) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if ct, ok := extContentTypes[ext]; ok {
			return ct
		}
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return ""
}
