package imgur

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/reddit"
	"github.com/koffeinsource/go-imgur"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultClientID is the imgur api client id used when the configuration
	// does not supply one.
	DefaultClientID = "ab1802d70cb1deb"

	apiURL = "https://api.imgur.com/3"

	directHost = "i.imgur.com"
)

var hosts = []string{"imgur.com", "www.imgur.com", "m.imgur.com"}

type albumInfoDataWrapper struct {
	AI      *imgur.AlbumInfo `json:"data"`
	Success bool             `json:"success"`
	Status  int              `json:"status"`
}

// Resolver turns imgur page links into direct image links. It implements the
// media.Resolver interface.
type Resolver struct {
	hc       *http.Client
	clientID string
	apiURL   string
}

func NewResolver(hc *http.Client, clientID string) *Resolver {
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &Resolver{
		hc:       hc,
		clientID: clientID,
		apiURL:   apiURL,
	}
}

func (r *Resolver) Name() string {
	return "imgur"
}

func (r *Resolver) Match(u string) bool {
	return media.HostIs(u, hosts...)
}

// Resolve maps imgur page urls to direct image urls:
//
//	https://imgur.com/<id>           --> https://i.imgur.com/<id>.jpg
//	https://imgur.com/<id>.<ext>     --> https://i.imgur.com/<id>.<ext>
//	https://imgur.com/a/<hash>       --> first image of the album
//	https://imgur.com/gallery/<hash> --> first image of the gallery
func (r *Resolver) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	pu, err := url.Parse(p.URL)
	if err != nil {
		return "", err
	}

	trimmed := strings.Trim(pu.Path, "/")
	switch {
	case strings.HasPrefix(trimmed, "a/"):
		return r.firstAlbumImage(ctx, strings.TrimPrefix(trimmed, "a/"))
	case strings.HasPrefix(trimmed, "gallery/"):
		return r.firstAlbumImage(ctx, strings.TrimPrefix(trimmed, "gallery/"))
	case trimmed == "" || strings.Contains(trimmed, "/"):
		return "", nil
	}

	direct := "https://" + directHost + "/" + trimmed
	if path.Ext(trimmed) == "" {
		direct += ".jpg"
	}
	return direct, nil
}

// albumLinks reads the imgur album with the given hash and returns the urls
// of all its images.
func (r *Resolver) albumLinks(ctx context.Context, hash string) ([]string, error) {
	if i := strings.LastIndex(hash, "-"); i >= 0 {
		// Gallery urls may carry a title slug: "<words>-<hash>".
		trimmed := hash[i+1:]
		log.Debugf("removing imgur album prefix: %s --> %s", hash, trimmed)
		hash = trimmed
	}
	if hash == "" {
		return nil, fmt.Errorf("empty imgur album hash")
	}

	header := http.Header{
		"Authorization": []string{"Client-ID " + r.clientID},
		"Referer":       []string{"https://imgur.com/"},
	}
	b, err := download.Get(ctx, r.hc, r.apiURL+"/album/"+hash, header)
	if err != nil {
		return nil, err
	}

	aidw := &albumInfoDataWrapper{}
	if err := json.Unmarshal(b, aidw); err != nil {
		return nil, fmt.Errorf("failed to decode album info: %w", err)
	}
	if !aidw.Success || aidw.AI == nil {
		return nil, fmt.Errorf("album info response has success=false: status=%d", aidw.Status)
	}

	var links []string
	for _, img := range aidw.AI.Images {
		log.Debugf("detected imgur album image link: %s", img.Link)
		links = append(links, img.Link)
	}

	return links, nil
}

func (r *Resolver) firstAlbumImage(ctx context.Context, hash string) (string, error) {
	links, err := r.albumLinks(ctx, hash)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return "", fmt.Errorf("imgur album contains 0 images: hash=%s", hash)
	}
	if len(links) > 1 {
		log.Infof("imgur album has %d images, keeping the first: hash=%s", len(links), hash)
	}
	return links[0], nil
}
