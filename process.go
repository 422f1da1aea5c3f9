package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ccollins476ad/slurp/config"
	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/fileutil"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/media/fallback"
	"github.com/ccollins476ad/slurp/media/gfycat"
	"github.com/ccollins476ad/slurp/media/imgbb"
	"github.com/ccollins476ad/slurp/media/imgur"
	"github.com/ccollins476ad/slurp/media/postimg"
	"github.com/ccollins476ad/slurp/media/redgifs"
	"github.com/ccollins476ad/slurp/metrics"
	"github.com/ccollins476ad/slurp/probe"
	"github.com/ccollins476ad/slurp/reddit"
	log "github.com/sirupsen/logrus"
)

// Feed yields the posts of a listing in order.
type Feed interface {
	Each(ctx context.Context, q reddit.Query, fn func(p *reddit.Post) error) error
}

// PostProcessor takes a single post to completion.
type PostProcessor interface {
	Process(ctx context.Context, p *reddit.Post) (*probe.Outcome, error)
}

// newResolverChain returns the resolvers slurp tries, in order, when a post
// links to an html page.
func newResolverChain(hc *http.Client, f *download.Fetcher, creds *config.Credentials) media.Chain {
	return media.Chain{
		imgur.NewResolver(hc, creds.ImgurClientID),
		gfycat.NewResolver(hc),
		imgbb.NewResolver(hc),
		postimg.NewResolver(hc),
		redgifs.NewResolver(hc, f),
		fallback.NewResolver(),
	}
}

// slurp wires up the feed, resolvers, and fetcher for the configured
// listing, then processes every post.
func slurp(ctx context.Context, cfg *Config, creds *config.Credentials, transport http.RoundTripper) error {
	hc := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	storeDir := cfg.StoreDir()
	if err := fileutil.EnsureDir(storeDir); err != nil {
		return err
	}

	f := download.NewFetcher(storeDir, hc)
	pr := probe.NewProcessor(hc, newResolverChain(hc, f, creds), f, cfg.MaxHops)
	feed := reddit.NewClient(creds.ClientID, creds.ClientSecret, hc)

	q := cfg.Query()
	m := metrics.NewRun(q.Name())

	err := processPosts(ctx, feed, pr, q, m)
	log.Infof("finished: name=%s %s", q.Name(), m.Summary())

	if cfg.MetricsFile != "" {
		if merr := m.WriteTextfile(cfg.MetricsFile, time.Now()); merr != nil {
			log.WithError(merr).Errorf("failed to write metrics: path=%s", cfg.MetricsFile)
		}
	}

	return err
}

// processPosts calls processPost() for each post in the listing, strictly in
// listing order. A failed post never stops the run; only a feed error or
// cancellation does.
func processPosts(ctx context.Context, feed Feed, pr PostProcessor, q reddit.Query, m *metrics.Run) error {
	return feed.Each(ctx, q, func(p *reddit.Post) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.URL == "" {
			log.Debugf("skipping post without url: id=%s title=%q", p.ID, p.Title)
			return nil
		}

		return processPost(ctx, pr, p, m)
	})
}

// processPost runs a single post and logs its outcome. It returns an error
// only if the run was canceled.
func processPost(ctx context.Context, pr PostProcessor, p *reddit.Post, m *metrics.Run) error {
	orig := p.URL
	log.Debugf("processing post: id=%s title=%q url=%s", p.ID, p.Title, orig)

	out, err := pr.Process(ctx, p)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logFailure(p, orig, err, m)
		return nil
	}

	if out.Record.Skipped {
		m.Record(metrics.Skipped)
		log.Infof("already have: file=%s title=%q", out.Record.Filename, p.Title)
		return nil
	}

	m.Record(metrics.Downloaded)
	m.AddBytes(out.Record.Bytes)
	log.Infof("downloaded: file=%s bytes=%d url=%s", out.Record.Filename, out.Record.Bytes, out.URL)
	return nil
}

func logFailure(p *reddit.Post, orig string, err error, m *metrics.Run) {
	var (
		se *download.StatusError
		fe *download.FetchError
	)

	switch {
	case errors.Is(err, probe.ErrUnknownContentType),
		errors.Is(err, probe.ErrMissingContentType),
		errors.Is(err, probe.ErrResolution):
		m.Record(metrics.Unsupported)
		log.Errorf("unsupported: title=%q url=%s: %v", p.Title, orig, err)

	case errors.As(err, &fe):
		m.Record(metrics.Failed)
		log.Errorf("download failed: title=%q file=%s written=%d: %v", p.Title, fe.Filename, fe.Written, fe.Err)

	case errors.Is(err, download.ErrConnection):
		m.Record(metrics.Failed)
		log.Errorf("connection error for %s: title=%q", download.Host(p.URL), p.Title)

	case errors.As(err, &se):
		m.Record(metrics.Failed)
		log.Errorf("error status: title=%q url=%s status=%d", p.Title, se.URL, se.Code)

	default:
		m.Record(metrics.Failed)
		log.Errorf("failed: title=%q url=%s: %v", p.Title, orig, err)
	}
}
