package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ccollins476ad/slurp/download"
	log "github.com/sirupsen/logrus"
)

const (
	authURL = "https://www.reddit.com/api/v1/access_token"
	apiURL  = "https://oauth.reddit.com"

	// Reddit refuses to return more than this many posts per page.
	maxPageSize = 100
)

// Sort selects the ordering of a listing.
type Sort string

const (
	Hot Sort = "hot" // Currently trending.
	New Sort = "new" // Newest first.
)

// Query names a listing to read. Exactly one of Channel and User should be
// set; Channel takes precedence.
type Query struct {
	Channel string
	User    string
	Sort    Sort
	Limit   int
}

// Name returns the subreddit or user name the query reads from.
func (q Query) Name() string {
	if q.Channel != "" {
		return q.Channel
	}
	return q.User
}

func (q Query) path() (string, url.Values) {
	vals := url.Values{}
	if q.Channel != "" {
		return "/r/" + url.PathEscape(q.Channel) + "/" + string(q.Sort), vals
	}
	vals.Set("sort", string(q.Sort))
	return "/user/" + url.PathEscape(q.User) + "/submitted", vals
}

// Client reads listings using reddit's application-only OAuth flow.
type Client struct {
	clientID     string
	clientSecret string
	hc           *http.Client
	authURL      string
	apiURL       string

	mtx     sync.Mutex // Protects the token fields.
	token   string
	expires time.Time
}

func NewClient(clientID string, clientSecret string, hc *http.Client) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		hc:           hc,
		authURL:      authURL,
		apiURL:       apiURL,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a bearer token, requesting a new one if there is none
// or the current one has expired.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	log.Debugf("requesting reddit access token")

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", download.UserAgent)

	rsp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request access token: %w", err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("access token request failed: status=%s", rsp.Status)
	}

	tr := &tokenResponse{}
	if err := json.NewDecoder(rsp.Body).Decode(tr); err != nil {
		return "", fmt.Errorf("failed to decode access token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("access token request rejected: error=%s", tr.Error)
	}

	c.token = tr.AccessToken
	// Renew a minute early.
	c.expires = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)

	return c.token, nil
}

// ErrStop may be returned by an Each callback to end iteration early without
// an error.
var ErrStop = errors.New("stop iteration")

// Each reads up to q.Limit posts from the listing named by q, in listing
// order, and calls fn for each one. Pages are fetched lazily, so fn runs for
// the first page's posts before the second page is requested. Iteration
// stops at the first error returned by fn.
func (c *Client) Each(ctx context.Context, q Query, fn func(p *Post) error) error {
	if q.Channel == "" && q.User == "" {
		return fmt.Errorf("query lacks channel and user")
	}
	if q.Sort == "" {
		q.Sort = New
	}

	after := ""
	seen := 0
	for seen < q.Limit {
		pageSize := min(q.Limit-seen, maxPageSize)

		l, err := c.page(ctx, q, pageSize, after)
		if err != nil {
			return err
		}

		for _, child := range l.Data.Children {
			if seen >= q.Limit {
				break
			}
			seen++

			err := fn(child.Data.post())
			if errors.Is(err, ErrStop) {
				return nil
			}
			if err != nil {
				return err
			}
		}

		after = l.Data.After
		if after == "" || len(l.Data.Children) == 0 {
			break
		}
	}

	return nil
}

func (c *Client) page(ctx context.Context, q Query, pageSize int, after string) (*listing, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	path, vals := q.path()
	vals.Set("limit", strconv.Itoa(pageSize))
	vals.Set("raw_json", "1")
	if after != "" {
		vals.Set("after", after)
	}
	u := c.apiURL + path + "?" + vals.Encode()

	header := http.Header{"Authorization": []string{"bearer " + tok}}
	b, err := download.Get(ctx, c.hc, u, header)
	if err != nil {
		return nil, fmt.Errorf("failed to read listing: name=%s: %w", q.Name(), err)
	}

	l := &listing{}
	if err := json.Unmarshal(b, l); err != nil {
		return nil, fmt.Errorf("failed to decode listing: name=%s: %w", q.Name(), err)
	}

	log.Debugf("read listing page: name=%s posts=%d after=%s", q.Name(), len(l.Data.Children), l.Data.After)
	return l, nil
}

type listing struct {
	Data struct {
		After    string  `json:"after"`
		Children []child `json:"children"`
	} `json:"data"`
}

type child struct {
	Data submission `json:"data"`
}

type submission struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	URL         string  `json:"url"`
	CreatedUTC  float64 `json:"created_utc"`
	Media       *Media  `json:"media"`
	SecureMedia *Media  `json:"secure_media"`
	Preview     *struct {
		VideoPreview *Video `json:"reddit_video_preview"`
	} `json:"preview"`
}

func (s submission) post() *Post {
	p := &Post{
		ID:          s.ID,
		Title:       s.Title,
		Author:      s.Author,
		Created:     time.Unix(int64(s.CreatedUTC), 0).UTC(),
		URL:         s.URL,
		Media:       s.Media,
		SecureMedia: s.SecureMedia,
	}
	if s.Preview != nil {
		p.VideoPreview = s.Preview.VideoPreview
	}
	return p
}
