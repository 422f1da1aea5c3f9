// Package redgifs handles a platform whose pages only reveal their media
// after running javascript. Such pages are saved for manual inspection
// rather than resolved.
package redgifs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/reddit"
	log "github.com/sirupsen/logrus"
)

// ScratchDir is the directory, relative to the output directory, that
// unresolvable pages are saved to.
const ScratchDir = "scratch"

// ErrManualInspection is returned after a page was saved to the scratch
// directory. The error text names the saved file.
var ErrManualInspection = errors.New("page needs manual inspection")

// Saver writes a file relative to some base directory.
type Saver interface {
	SaveFile(relPath string, b []byte) error
}

// Resolver saves javascript-rendered pages to a scratch directory. It never
// produces a url. It implements the media.Resolver interface.
type Resolver struct {
	hc    *http.Client
	saver Saver
}

func NewResolver(hc *http.Client, saver Saver) *Resolver {
	return &Resolver{
		hc:    hc,
		saver: saver,
	}
}

func (r *Resolver) Name() string {
	return "redgifs"
}

func (r *Resolver) Match(u string) bool {
	return media.HostHasSuffix(u, "redgifs.com")
}

// Resolve downloads the raw page to the scratch directory and returns no
// url. On success the returned error wraps ErrManualInspection.
func (r *Resolver) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	b, err := download.Get(ctx, r.hc, p.URL, nil)
	if err != nil {
		return "", err
	}

	filename, err := download.Filename(p.Created, p.Author, p.Title, ".html")
	if err != nil {
		return "", err
	}
	relPath := filepath.Join(ScratchDir, filename)

	if err := r.saver.SaveFile(relPath, b); err != nil {
		return "", err
	}

	log.Debugf("saved page for inspection: url=%s saved=%s", p.URL, relPath)
	return "", fmt.Errorf("%w: saved=%s", ErrManualInspection, relPath)
}
