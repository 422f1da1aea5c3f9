package web

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ccollins476ad/slurp/download"
	"golang.org/x/net/html"
)

// Parse reads an html document from r. Malformed markup is tolerated; the
// parser repairs it the way a browser would.
func Parse(ctx context.Context, r io.Reader) (*html.Node, error) {
	return html.Parse(download.NewContextReader(ctx, r))
}

// Attr returns the value of the named attribute of n, or the empty string.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ForEachNode applies a function to the given node and each of its
// descendants.
func ForEachNode(node *html.Node, fn func(n *html.Node) error) error {
	var iter func(n *html.Node) error
	iter = func(n *html.Node) error {
		err := fn(n)
		if err != nil {
			return err
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			err := iter(c)
			if err != nil {
				return err
			}
		}

		return nil
	}

	return iter(node)
}

// NodesWithDataVal returns a slice of all descendant element nodes whose
// "data" field (i.e., tag name) has the given value.
func NodesWithDataVal(node *html.Node, dataName string) []*html.Node {
	var nodes []*html.Node

	ForEachNode(node, func(n *html.Node) error {
		if n.Type == html.ElementNode && n.Data == dataName {
			nodes = append(nodes, n)
		}
		return nil
	})

	return nodes
}

// MetaContent returns the content of the first <meta> tag whose property
// (or name) attribute equals prop. It returns the empty string if there is
// no such tag.
func MetaContent(doc *html.Node, prop string) string {
	for _, n := range NodesWithDataVal(doc, "meta") {
		if Attr(n, "property") == prop || Attr(n, "name") == prop {
			if c := Attr(n, "content"); c != "" {
				return c
			}
		}
	}
	return ""
}

// EmbeddedImageURLs returns a slice of all image URLs embedded in the given
// html document.
func EmbeddedImageURLs(doc *html.Node) []string {
	var urls []string
	for _, n := range NodesWithDataVal(doc, "img") {
		if src := Attr(n, "src"); src != "" {
			urls = append(urls, src)
		}
	}
	return urls
}

// VideoSources collects the <source> tags nested in elements matching the
// given container selector. It returns a map of declared type (lowercased)
// to src. When a type appears more than once, the first src wins.
func VideoSources(doc *html.Node, container string) map[string]string {
	sources := map[string]string{}

	gq := goquery.NewDocumentFromNode(doc)
	gq.Find(container).Find("source").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		src, _ := s.Attr("src")
		typ = strings.ToLower(strings.TrimSpace(typ))
		if src == "" {
			return
		}
		if _, ok := sources[typ]; !ok {
			sources[typ] = src
		}
	})

	return sources
}

// Absolute resolves ref against base. It returns ref unchanged if either
// fails to parse.
func Absolute(base string, ref string) string {
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}
