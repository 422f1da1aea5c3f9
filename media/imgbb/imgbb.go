package imgbb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/reddit"
	"github.com/ccollins476ad/slurp/web"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// Resolver turns imgbb pages into direct image links. It implements the
// media.Resolver interface.
type Resolver struct {
	hc *http.Client
}

func NewResolver(hc *http.Client) *Resolver {
	return &Resolver{
		hc: hc,
	}
}

func (r *Resolver) Name() string {
	return "imgbb"
}

func (r *Resolver) Match(u string) bool {
	return media.HostIs(u, "ibb.co", "www.ibb.co")
}

// Resolve returns the image embedded in an imgbb image page, or the first
// image of an imgbb album.
func (r *Resolver) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	doc, err := r.readPage(ctx, p.URL)
	if err != nil {
		return "", err
	}

	pu, err := url.Parse(p.URL)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(pu.Path, "/album/") {
		return firstAlbumImage(doc)
	}
	return pageImage(doc)
}

func (r *Resolver) readPage(ctx context.Context, u string) (*html.Node, error) {
	body, err := download.GetBody(ctx, r.hc, u, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return web.Parse(ctx, body)
}

// embeddedImageURLs returns the absolute urls of all images in an imgbb page.
func embeddedImageURLs(doc *html.Node) []string {
	var urls []string

	rawURLs := web.EmbeddedImageURLs(doc)
	for _, ru := range rawURLs {
		if strings.HasPrefix(ru, "https://") {
			urls = append(urls, ru)
		}
	}

	return urls
}

// firstAlbumImage extracts the url of the first image in an imgbb album.
func firstAlbumImage(doc *html.Node) (string, error) {
	urls := embeddedImageURLs(doc)
	if len(urls) == 0 {
		return "", fmt.Errorf("imgbb album contains 0 embedded image urls")
	}
	if len(urls) > 1 {
		log.Infof("imgbb album has %d images, keeping the first", len(urls))
	}
	return urls[0], nil
}

// pageImage extracts the url of the single image on an imgbb image page.
func pageImage(doc *html.Node) (string, error) {
	if og := web.MetaContent(doc, "og:image"); og != "" {
		return og, nil
	}

	var targetURL string
	for _, iu := range embeddedImageURLs(doc) {
		if targetURL != "" {
			return "", fmt.Errorf("imgbb page contains multiple image links: first=%s second=%s", targetURL, iu)
		}
		targetURL = iu
	}
	if targetURL == "" {
		return "", fmt.Errorf("imgbb page lacks image link")
	}

	return targetURL, nil
}
