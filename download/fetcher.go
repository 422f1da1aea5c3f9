package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ccollins476ad/slurp/fileutil"
	"github.com/flytam/filenamify"
	log "github.com/sirupsen/logrus"
)

// TimestampLayout is the ISO-8601 layout used as the filename prefix.
const TimestampLayout = "2006-01-02T15:04:05"

// MaxFilenameBytes is the longest filename most filesystems accept.
const MaxFilenameBytes = 255

const chunkSize = 32 * 1024

// Record describes the local copy of a media file.
type Record struct {
	Filename string // Relative to the fetcher's directory
	Bytes    int64  // Bytes written; zero when Skipped
	Skipped  bool   // True if the file was already on disk
}

// FetchError reports a failed download along with how much of the body
// made it to disk before the failure.
type FetchError struct {
	Filename string
	Written  int64
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("download failed: file=%s written=%d: %v", e.Filename, e.Written, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher saves media files into a single directory.
type Fetcher struct {
	dir string // constant
	hc  *http.Client
}

func NewFetcher(dir string, hc *http.Client) *Fetcher {
	return &Fetcher{
		dir: dir,
		hc:  hc,
	}
}

// Path returns the full path of the given filename inside the fetcher's
// directory.
func (f *Fetcher) Path(filename string) string {
	return filepath.Join(f.dir, filename)
}

// Fetch downloads url=u to the given filename. It is a no-op that reports
// Skipped if the file already exists, regardless of its content. A failure
// after the file was created leaves the partial file on disk.
func (f *Fetcher) Fetch(ctx context.Context, u string, filename string) (*Record, error) {
	destPath := f.Path(filename)
	if fileutil.FileExists(destPath) {
		log.Debugf("skipping %s: file already exists: %s", u, destPath)
		return &Record{Filename: filename, Skipped: true}, nil
	}

	body, err := GetBody(ctx, f.hc, u, nil)
	if err != nil {
		return nil, &FetchError{Filename: filename, Err: err}
	}
	defer body.Close()

	fp, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &FetchError{Filename: filename, Err: err}
	}
	defer fp.Close()

	log.Debugf("downloading %s --> %s", u, destPath)
	written, err := io.CopyBuffer(fp, NewContextReader(ctx, body), make([]byte, chunkSize))
	if err != nil {
		return nil, &FetchError{Filename: filename, Written: written, Err: err}
	}

	if err := fp.Close(); err != nil {
		return nil, &FetchError{Filename: filename, Written: written, Err: err}
	}

	return &Record{Filename: filename, Bytes: written}, nil
}

// SaveFile writes b to the given path, relative to the fetcher's directory,
// creating intermediate directories as needed.
func (f *Fetcher) SaveFile(relPath string, b []byte) error {
	destPath := f.Path(relPath)
	if err := fileutil.EnsureDir(filepath.Dir(destPath)); err != nil {
		return err
	}
	log.Debugf("saving %s", destPath)
	return os.WriteFile(destPath, b, 0644)
}

// SanitizeTitle converts a post title into a string that is safe to embed in
// a filename.
func SanitizeTitle(title string) (string, error) {
	title = strings.Trim(title, ".! ")
	title = strings.NewReplacer(" ", "_", "/", "_").Replace(title)
	if title == "" {
		return "untitled", nil
	}
	return filenamify.Filenamify(title, filenamify.Options{Replacement: "_"})
}

// Filename returns the local filename for a post's media file. It is a pure
// function of its arguments: two posts with identical timestamp, author and
// title share a filename.
func Filename(created time.Time, author string, title string, ext string) (string, error) {
	st, err := SanitizeTitle(title)
	if err != nil {
		return "", fmt.Errorf("failed to sanitize title: title=%q: %w", title, err)
	}

	sa, err := filenamify.Filenamify(author, filenamify.Options{Replacement: "_"})
	if err != nil {
		return "", fmt.Errorf("failed to sanitize author: author=%q: %w", author, err)
	}

	prefix := created.UTC().Format(TimestampLayout) + "_" + sa + "_"
	st = truncateBytes(st, MaxFilenameBytes-len(prefix)-len(ext))

	return prefix + st + ext, nil
}

// truncateBytes shortens s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
