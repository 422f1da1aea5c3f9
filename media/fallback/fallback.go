// Package fallback resolves posts using the media metadata reddit attaches
// to them.
package fallback

import (
	"context"

	"github.com/ccollins476ad/slurp/reddit"
)

// Resolver returns the post's embedded fallback url. It matches every url,
// so it belongs at the end of a chain.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Name() string {
	return "fallback"
}

func (r *Resolver) Match(u string) bool {
	return true
}

// Resolve returns the post's fallback media url. A post without one is not
// an error; it simply has no media.
func (r *Resolver) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	return p.FallbackURL(), nil
}
