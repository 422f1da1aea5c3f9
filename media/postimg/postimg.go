package postimg

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/reddit"
	"github.com/ccollins476ad/slurp/web"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

var linkRegexp = regexp.MustCompile(`background-image:url\('(https://i.postimg.cc/[^']+)'\)`)

type ImageLink struct {
	ShortName string
	FullName  string
}

func (il *ImageLink) IsPopulated() bool {
	return il.ShortName != "" && il.FullName != ""
}

// Resolver turns postimg pages and galleries into direct image links. It
// implements the media.Resolver interface.
type Resolver struct {
	hc *http.Client
}

func NewResolver(hc *http.Client) *Resolver {
	return &Resolver{
		hc: hc,
	}
}

func (r *Resolver) Name() string {
	return "postimg"
}

func (r *Resolver) Match(u string) bool {
	return media.HostIs(u, "postimg.cc", "www.postimg.cc")
}

// Resolve returns the first full-size image of a postimg gallery, or the
// image shown on a single postimg page.
func (r *Resolver) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	body, err := download.GetBody(ctx, r.hc, p.URL, nil)
	if err != nil {
		return "", err
	}
	defer body.Close()

	doc, err := web.Parse(ctx, body)
	if err != nil {
		return "", err
	}

	if strings.Contains(p.URL, "postimg.cc/gallery/") {
		links := parseAlbum(doc)
		if len(links) == 0 {
			return "", fmt.Errorf("postimg gallery contains 0 image links")
		}
		if len(links) > 1 {
			log.Infof("postimg gallery has %d images, keeping the first", len(links))
		}
		return links[0].FullName, nil
	}

	if og := web.MetaContent(doc, "og:image"); og != "" {
		return og, nil
	}
	return "", nil
}

// parseAlbum extracts the urls of all images from a postimg album.
func parseAlbum(doc *html.Node) []ImageLink {
	var links []ImageLink

	web.ForEachNode(doc, func(n *html.Node) error {
		if n.Type != html.ElementNode || n.Data != "a" {
			return nil
		}

		link := ImageLink{ShortName: web.Attr(n, "href")}
		matches := linkRegexp.FindStringSubmatch(web.Attr(n, "style"))
		if len(matches) > 0 {
			link.FullName = matches[1]
		}

		if link.IsPopulated() {
			links = append(links, link)
		}

		return nil
	})

	return links
}
