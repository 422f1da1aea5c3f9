// Package probe drives a single post from its original link to a saved
// media file: probe the url with HEAD, follow redirects, resolve html pages
// to media urls, and download terminal media.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/reddit"
	"github.com/ccollins476ad/slurp/web"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxHops bounds the number of redirects and resolutions followed for
// a single post.
const DefaultMaxHops = 10

var (
	ErrMissingContentType = errors.New("missing content type")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrResolution         = errors.New("resolution failed")
	ErrTooManyRedirects   = errors.New("too many redirects")
)

// Target is the result of probing a url.
type Target struct {
	URL         string
	ContentType string // As declared by the server; empty if absent.
	Location    string // Redirect target; empty if none.
}

// Outcome describes a post that reached a saved (or already saved) file.
type Outcome struct {
	URL         string // Final media url.
	ContentType string
	Class       media.Class
	Record      *download.Record
	Hops        int
}

// Resolver produces the next url to probe for a post whose current url is an
// html page. media.Chain implements it.
type Resolver interface {
	Resolve(ctx context.Context, p *reddit.Post) (string, error)
	FallbackURL(u string, code int) string
}

// Processor runs posts through the probe/resolve/fetch loop. It processes
// one post at a time.
type Processor struct {
	hc       *http.Client
	resolver Resolver
	fetcher  *download.Fetcher
	maxHops  int
}

func NewProcessor(hc *http.Client, resolver Resolver, fetcher *download.Fetcher, maxHops int) *Processor {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Processor{
		hc:       hc,
		resolver: resolver,
		fetcher:  fetcher,
		maxHops:  maxHops,
	}
}

// Probe issues a HEAD request for u and reports what it found.
func (pr *Processor) Probe(ctx context.Context, u string) (*Target, error) {
	rsp, err := download.Head(ctx, pr.hc, u, nil)
	if err != nil {
		return nil, err
	}

	t := &Target{
		URL:         u,
		ContentType: rsp.Header.Get("Content-Type"),
	}
	if loc := rsp.Header.Get("Location"); loc != "" {
		t.Location = web.Absolute(u, loc)
	}
	return t, nil
}

// Process follows the post's url until it reaches downloadable media, then
// saves it. p.URL is updated as redirects and resolutions are followed.
//
// The returned error wraps one of: download.ErrConnection,
// *download.StatusError, ErrMissingContentType, ErrUnknownContentType,
// ErrResolution, ErrTooManyRedirects, or *download.FetchError.
func (pr *Processor) Process(ctx context.Context, p *reddit.Post) (*Outcome, error) {
	retried := false

	for hops := 0; ; hops++ {
		if hops > pr.maxHops {
			return nil, fmt.Errorf("%w: hops=%d url=%s", ErrTooManyRedirects, hops-1, p.URL)
		}

		log.Debugf("probing: hop=%d url=%s", hops, p.URL)
		t, err := pr.Probe(ctx, p.URL)
		if err != nil {
			var se *download.StatusError
			if errors.As(err, &se) && !retried {
				if alt := pr.resolver.FallbackURL(p.URL, se.Code); alt != "" {
					log.Infof("retrying with fallback: status=%d %s --> %s", se.Code, p.URL, alt)
					retried = true
					p.URL = alt
					continue
				}
			}
			return nil, err
		}

		if t.Location != "" {
			log.Debugf("redirect: %s --> %s", p.URL, t.Location)
			p.URL = t.Location
			continue
		}

		if t.ContentType == "" {
			return nil, fmt.Errorf("%w: url=%s", ErrMissingContentType, p.URL)
		}

		class := media.Classify(t.ContentType)
		switch {
		case class.IsTerminal():
			rec, err := pr.fetch(ctx, p, t.ContentType)
			if err != nil {
				return nil, err
			}
			return &Outcome{
				URL:         p.URL,
				ContentType: t.ContentType,
				Class:       class,
				Record:      rec,
				Hops:        hops,
			}, nil

		case class == media.ScrapableHTML:
			next, err := pr.resolver.Resolve(ctx, p)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("%w: %w", ErrResolution, err)
			}
			if next == p.URL {
				return nil, fmt.Errorf("%w: resolved to itself: url=%s", ErrResolution, p.URL)
			}
			p.URL = next

		default:
			return nil, fmt.Errorf("%w: content_type=%q url=%s", ErrUnknownContentType, t.ContentType, p.URL)
		}
	}
}

func (pr *Processor) fetch(ctx context.Context, p *reddit.Post, contentType string) (*download.Record, error) {
	filename, err := download.Filename(p.Created, p.Author, p.Title, media.Extension(contentType))
	if err != nil {
		return nil, err
	}
	return pr.fetcher.Fetch(ctx, p.URL, filename)
}
