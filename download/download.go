package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
)

// UserAgent is sent with every request that does not set its own.
const UserAgent = "slurp/0.1 (reddit media downloader)"

// ErrConnection indicates that a request never produced a response (dns
// failure, refused connection, timeout, etc.).
var ErrConnection = errors.New("connection error")

// StatusError is returned for responses with a non-success status code.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error status: url=%s status=%s", e.URL, e.Status)
}

// Host returns the host portion of u, or u itself if it cannot be parsed.
func Host(u string) string {
	pu, err := url.Parse(u)
	if err != nil || pu.Host == "" {
		return u
	}
	return pu.Host
}

func newRequest(ctx context.Context, method string, u string, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	return req, nil
}

func do(hc *http.Client, req *http.Request) (*http.Response, error) {
	rsp, err := hc.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: host=%s: %v", ErrConnection, req.URL.Host, err)
	}
	return rsp, nil
}

// GetBody performs an http GET with url=u using the suppplied client and
// header. The caller must close the returned body.
func GetBody(ctx context.Context, hc *http.Client, u string, header http.Header) (io.ReadCloser, error) {
	log.Debugf("get: %s", u)

	req, err := newRequest(ctx, http.MethodGet, u, header)
	if err != nil {
		return nil, err
	}

	rsp, err := do(hc, req)
	if err != nil {
		return nil, err
	}

	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		rsp.Body.Close()
		return nil, &StatusError{URL: u, Code: rsp.StatusCode, Status: rsp.Status}
	}

	return rsp.Body, nil
}

// Get calls GetBody(), then reads the full response and returns the result.
// The client's timeout bounds the whole exchange.
func Get(ctx context.Context, hc *http.Client, u string, header http.Header) ([]byte, error) {
	body, err := GetBody(ctx, hc, u, header)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return io.ReadAll(NewContextReader(ctx, body))
}

// Head performs an http HEAD with url=u. Redirects are not followed: a 3xx
// response is returned as-is so the caller can inspect its Location header.
// Responses with status >= 400 produce a *StatusError. The returned
// response's body is already closed.
func Head(ctx context.Context, hc *http.Client, u string, header http.Header) (*http.Response, error) {
	log.Debugf("head: %s", u)

	req, err := newRequest(ctx, http.MethodHead, u, header)
	if err != nil {
		return nil, err
	}

	nofollow := *hc
	nofollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	rsp, err := do(&nofollow, req)
	if err != nil {
		return nil, err
	}
	rsp.Body.Close()

	if rsp.StatusCode >= 400 {
		return nil, &StatusError{URL: u, Code: rsp.StatusCode, Status: rsp.Status}
	}

	return rsp, nil
}
