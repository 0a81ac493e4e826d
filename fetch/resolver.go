package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/errortypes"
	"golang.org/x/sync/errgroup"
)

// ContentTypeCheck decides whether a response content type is acceptable for a document.
// A nil check accepts everything.
type ContentTypeCheck func(contentType string) bool

// RejectHTML refuses documents served as HTML, which is how most soft-404 pages come back.
func RejectHTML(contentType string) bool {
	return !strings.Contains(strings.ToLower(contentType), "text/html")
}

// Resolver picks the first reachable, in-scope URL among several candidates for one logical document.
type Resolver struct {
	client       *Client
	probeTimeout time.Duration
	fetchTimeout time.Duration
}

func NewResolver(client *Client, probeTimeout, fetchTimeout time.Duration) *Resolver {
	return &Resolver{
		client:       client,
		probeTimeout: probeTimeout,
		fetchTimeout: fetchTimeout,
	}
}

// Resolve probes every candidate concurrently with HEAD, then GETs the reachable ones in their original
// order. The first response whose final host is scopeDomain (or one of its subdomains) wins.
//
// When no HEAD probe succeeds every candidate is tried with GET, since some servers refuse HEAD.
func (r *Resolver) Resolve(ctx context.Context, scopeDomain string, candidates []string, accept ContentTypeCheck) (*Response, error) {
	if len(candidates) == 0 {
		return nil, &errortypes.BadInput{Message: "no candidate urls"}
	}

	reachable := r.probe(ctx, candidates)
	ordered := make([]string, 0, len(candidates))
	for i, candidate := range candidates {
		if reachable[i] {
			ordered = append(ordered, candidate)
		}
	}
	if len(ordered) == 0 {
		glog.V(2).Infof("no HEAD probe succeeded for %s, falling back to GET", scopeDomain)
		ordered = candidates
	}

	// The most specific failure seen is reported if no candidate is accepted.
	var failure error
	for _, candidate := range ordered {
		resp, err := r.client.Get(ctx, candidate, r.fetchTimeout)
		if err != nil {
			glog.V(2).Infof("candidate %s rejected: %v", candidate, err)
			if _, ok := err.(*errortypes.TooManyRedirects); ok && failure == nil {
				failure = err
			}
			continue
		}
		if !InScope(resp.URL, scopeDomain) {
			glog.Warningf("candidate %s redirected out of scope to %s", candidate, resp.URL)
			continue
		}
		if accept != nil && !accept(resp.ContentType) {
			failure = &errortypes.InvalidContentType{
				Message:     fmt.Sprintf("%s was served with unexpected content type %q", resp.URL, resp.ContentType),
				ContentType: resp.ContentType,
			}
			continue
		}
		return resp, nil
	}

	if failure != nil {
		return nil, failure
	}
	return nil, &errortypes.NotFound{Message: fmt.Sprintf("no reachable document for %s", scopeDomain)}
}

func (r *Resolver) probe(ctx context.Context, candidates []string) []bool {
	reachable := make([]bool, len(candidates))
	var g errgroup.Group
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			if _, err := r.client.Head(ctx, candidate, r.probeTimeout); err == nil {
				reachable[i] = true
			}
			return nil
		})
	}
	g.Wait()
	return reachable
}

// InScope reports whether rawURL points at domain itself or one of its subdomains.
func InScope(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}
