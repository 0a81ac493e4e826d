package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/errortypes"
	"golang.org/x/net/context/ctxhttp"
)

// Response is a fully read remote document.
type Response struct {
	// URL is the final URL, after redirects were followed.
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client performs GET and HEAD requests which are bounded by an explicit timeout.
//
// Every failure is reported as one of the errortypes: Timeout, NetworkError, NonOkStatus,
// TooManyRedirects or InvalidFormat (body over the size limit).
type Client struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewClient returns a Client which follows at most maxRedirects redirects per request
// and refuses bodies larger than maxBodyBytes. A maxBodyBytes of zero disables the limit.
func NewClient(httpClient *http.Client, maxRedirects int, maxBodyBytes int64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	// Copy so that CheckRedirect does not leak into a client shared with other code.
	c := *httpClient
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return &errortypes.TooManyRedirects{
				Message: fmt.Sprintf("stopped after %d redirects while fetching %s", maxRedirects, via[0].URL),
			}
		}
		return nil
	}
	return &Client{
		client:       &c,
		maxBodyBytes: maxBodyBytes,
	}
}

// Get fetches url. The request is aborted once timeout elapses.
func (c *Client) Get(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	return c.do(ctx, http.MethodGet, url, timeout)
}

// Head probes url for existence without downloading the body.
func (c *Client) Head(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	return c.do(ctx, http.MethodHead, url, timeout)
}

func (c *Client) do(ctx context.Context, method, url string, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("invalid url %q: %v", url, err)}
	}

	httpResp, err := ctxhttp.Do(ctx, c.client, httpReq)
	if err != nil {
		return nil, classifyError(ctx, url, err)
	}
	defer httpResp.Body.Close()

	resp := &Response{
		URL:         httpResp.Request.URL.String(),
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
	}

	if method != http.MethodHead {
		body, err := c.readBody(httpResp.Body)
		if err != nil {
			if _, ok := err.(*errortypes.InvalidFormat); ok {
				return nil, err
			}
			return nil, classifyError(ctx, url, err)
		}
		resp.Body = body
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, errortypes.NewNonOkStatus(url, httpResp.StatusCode)
	}

	if glog.V(2) {
		glog.Infof("%s %s -> %d (%s, %d bytes)", method, url, resp.StatusCode, resp.URL, len(resp.Body))
	}
	return resp, nil
}

func (c *Client) readBody(body io.Reader) ([]byte, error) {
	if c.maxBodyBytes <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, c.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBodyBytes {
		return nil, &errortypes.InvalidFormat{Message: fmt.Sprintf("document is larger than %d bytes", c.maxBodyBytes)}
	}
	return data, nil
}

// classifyError maps a transport error onto the fetch error taxonomy.
func classifyError(ctx context.Context, url string, err error) error {
	var tooMany *errortypes.TooManyRedirects
	if errors.As(err, &tooMany) {
		return tooMany
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &errortypes.Timeout{Message: fmt.Sprintf("timed out fetching %s", url)}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errortypes.Timeout{Message: fmt.Sprintf("timed out fetching %s: %v", url, err)}
	}
	return &errortypes.NetworkError{Message: fmt.Sprintf("error fetching %s: %v", url, err)}
}
