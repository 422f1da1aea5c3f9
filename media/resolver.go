package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/ccollins476ad/slurp/reddit"
	log "github.com/sirupsen/logrus"
)

// ErrUnresolved indicates that no resolver could turn a post's url into a
// media url.
var ErrUnresolved = errors.New("no media url found")

// Resolver turns an indirect link (an html page, an embed) into the next url
// to probe. Most resolver implementations only know how to handle a
// particular web site (e.g., imgur).
type Resolver interface {
	// Name identifies the resolver in log messages.
	Name() string

	// Match returns true if the resolver knows how to handle url=u.
	Match(u string) bool

	// Resolve returns the next url to probe for the given post. It returns
	// the empty string and a nil error if it found nothing, which is not a
	// failure.
	Resolve(ctx context.Context, p *reddit.Post) (string, error)
}

// StatusFallback is implemented by resolvers that can guess an alternate url
// when a url they match answers with an error status.
type StatusFallback interface {
	FallbackURL(u string, code int) string
}

// Chain is an ordered list of resolvers. New sites are supported by adding
// a resolver to the chain.
type Chain []Resolver

// Resolve tries each resolver that matches the post's current url, in
// order, and returns the first url produced. It returns an error wrapping
// ErrUnresolved if none produce one.
func (c Chain) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	var lastErr error
	matched := 0

	for _, r := range c {
		if !r.Match(p.URL) {
			continue
		}
		matched++

		log.Debugf("resolving: resolver=%s url=%s", r.Name(), p.URL)
		next, err := r.Resolve(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			log.WithError(err).Debugf("resolver failed: resolver=%s url=%s", r.Name(), p.URL)
			lastErr = fmt.Errorf("%s: %w", r.Name(), err)
			continue
		}
		if next != "" {
			log.Debugf("resolved: resolver=%s %s --> %s", r.Name(), p.URL, next)
			return next, nil
		}
	}

	if matched == 0 {
		return "", fmt.Errorf("%w: no resolver for url=%s", ErrUnresolved, p.URL)
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: url=%s: %w", ErrUnresolved, p.URL, lastErr)
	}
	return "", fmt.Errorf("%w: url=%s", ErrUnresolved, p.URL)
}

// FallbackURL asks each matching resolver that implements StatusFallback for
// an alternate url. It returns the empty string if none has a guess.
func (c Chain) FallbackURL(u string, code int) string {
	for _, r := range c {
		sf, ok := r.(StatusFallback)
		if !ok || !r.Match(u) {
			continue
		}
		if alt := sf.FallbackURL(u, code); alt != "" {
			return alt
		}
	}
	return ""
}
