package media

import "strings"

// Class is the outcome of classifying a content type.
type Class int

const (
	Unsupported Class = iota
	TerminalImage
	TerminalVideo
	ScrapableHTML
)

func (c Class) String() string {
	switch c {
	case TerminalImage:
		return "image"
	case TerminalVideo:
		return "video"
	case ScrapableHTML:
		return "html"
	default:
		return "unsupported"
	}
}

// IsTerminal returns true if content of this class can be saved as-is.
func (c Class) IsTerminal() bool {
	return c == TerminalImage || c == TerminalVideo
}

// KnownContentTypes maps every content type slurp understands, in normalized
// form, to the file extension used when saving it.
var KnownContentTypes = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"video/webm":               ".webm",
	"video/mp4":                ".mp4",
	"text/html;charset=utf-8":  ".html",
	"text/plain;charset=utf-8": ".txt",
}

// NormalizeContentType lowercases ct and strips all whitespace, so that
// "text/html; charset=UTF-8" becomes "text/html;charset=utf-8".
func NormalizeContentType(ct string) string {
	return strings.ToLower(strings.Join(strings.Fields(ct), ""))
}

// Classify decides what to do with a response of the given content type.
// Only exact matches against KnownContentTypes are recognized.
func Classify(ct string) Class {
	ct = NormalizeContentType(ct)
	if _, ok := KnownContentTypes[ct]; !ok {
		return Unsupported
	}

	switch {
	case strings.HasPrefix(ct, "image/"):
		return TerminalImage
	case strings.HasPrefix(ct, "video/"):
		return TerminalVideo
	case strings.HasPrefix(ct, "text/"):
		return ScrapableHTML
	default:
		return Unsupported
	}
}

// Extension returns the file extension for the given content type, or ".dat"
// if the type is unknown.
func Extension(ct string) string {
	if ext, ok := KnownContentTypes[NormalizeContentType(ct)]; ok {
		return ext
	}
	return ".dat"
}
