// Package gfycat resolves animated-gif hosting pages (gfycat, and .gifv pages
// of the same shape) to a direct video stream.
package gfycat

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/reddit"
	"github.com/ccollins476ad/slurp/web"
	log "github.com/sirupsen/logrus"
	"mvdan.cc/xurls/v2"
)

const (
	container = "main.component-container"
	cdnHost   = "giant.gfycat.com"
)

// VideoPreferences lists stream types in order of preference.
var VideoPreferences = []string{"video/webm", "video/mp4"}

var (
	hosts         = []string{"gfycat.com", "www.gfycat.com"}
	videoSuffixes = []string{".webm", ".mp4"}
)

// Resolver scrapes video pages for a direct stream url. It implements the
// media.Resolver and media.StatusFallback interfaces.
type Resolver struct {
	hc *http.Client
}

func NewResolver(hc *http.Client) *Resolver {
	return &Resolver{
		hc: hc,
	}
}

func (r *Resolver) Name() string {
	return "gfycat"
}

func (r *Resolver) Match(u string) bool {
	return media.HostIs(u, hosts...) || media.PathHasSuffix(u, ".gifv")
}

// Resolve reads the page at the post's url and looks for a stream, trying in
// order: <source> tags in the page's main container (webm preferred), the
// og:video meta tag, video urls anywhere in the page text, and finally a
// rewrite of the page url to its cdn equivalent.
func (r *Resolver) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	b, err := download.Get(ctx, r.hc, p.URL, nil)
	if err != nil {
		return "", err
	}

	doc, err := web.Parse(ctx, bytes.NewReader(b))
	if err != nil {
		return "", err
	}

	sources := web.VideoSources(doc, container)
	for _, pref := range VideoPreferences {
		if src, ok := sources[pref]; ok {
			return web.Absolute(p.URL, src), nil
		}
	}

	for _, prop := range []string{"og:video", "og:video:secure_url", "og:video:url"} {
		if v := web.MetaContent(doc, prop); v != "" {
			log.Debugf("no source tag, using %s: %s", prop, v)
			return web.Absolute(p.URL, v), nil
		}
	}

	if v := videoLinkInText(b); v != "" {
		log.Debugf("no source tag or og:video, using link from page text: %s", v)
		return v, nil
	}

	guess := rewrite(p.URL)
	log.Debugf("no video found in page, guessing: %s --> %s", p.URL, guess)
	return guess, nil
}

// FallbackURL guesses a direct stream url for pages that answer with a rate
// limit or gateway error.
func (r *Resolver) FallbackURL(u string, code int) string {
	if code != http.StatusTooManyRequests && code != http.StatusBadGateway {
		return ""
	}

	if media.PathHasSuffix(u, ".gifv") {
		return rewrite(u)
	}

	pu, err := url.Parse(u)
	if err != nil {
		return ""
	}
	id := strings.Trim(pu.Path, "/")
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return "https://" + cdnHost + "/" + id + ".webm"
}

// videoLinkInText returns the first url in b that points at a video file,
// preferring webm.
func videoLinkInText(b []byte) string {
	links := xurls.Strict().FindAllString(string(b), -1)
	for _, suffix := range videoSuffixes {
		for _, l := range links {
			if media.PathHasSuffix(l, suffix) {
				return l
			}
		}
	}
	return ""
}

// rewrite maps a page url to a likely direct stream url: .gifv pages become
// .mp4 files, and anything else is moved to the "giant." cdn subdomain.
func rewrite(u string) string {
	pu, err := url.Parse(u)
	if err != nil || pu.Host == "" {
		return ""
	}
	if strings.HasSuffix(strings.ToLower(pu.Path), ".gifv") {
		pu.Path = pu.Path[:len(pu.Path)-len(".gifv")] + ".mp4"
		pu.RawQuery = ""
		return pu.String()
	}
	pu.Host = "giant." + strings.TrimPrefix(pu.Host, "www.")
	return pu.String()
}
