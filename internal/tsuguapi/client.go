// Package tsuguapi is the HTTP JSON client for the Tsugu render backend and
// the userdata backend. All domain work (image rendering, gacha simulation,
// tier prediction, player verification) happens server-side; this client only
// shapes requests and decodes the two reply envelopes.
package tsuguapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"
	"go.uber.org/zap"

	"github.com/uika/tsugu-go-bot/internal/obslog"
	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

type Client struct {
	backendURL  string
	userdataURL string

	direct  *fasthttp.Client
	proxied *fasthttp.Client

	backendProxied  bool
	userdataProxied bool

	timeout  time.Duration
	platform string

	useEasyBG bool
	compress  bool
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithPlatform(platform string) Option {
	return func(c *Client) { c.platform = platform }
}

// WithProxy routes backend and/or userdata traffic through an HTTP proxy.
func WithProxy(proxyURL string, backend, userdata bool) Option {
	return func(c *Client) {
		if strings.TrimSpace(proxyURL) == "" {
			return
		}
		c.proxied = &fasthttp.Client{
			Dial:            fasthttpproxy.FasthttpHTTPDialer(proxyURL),
			ReadTimeout:     c.direct.ReadTimeout,
			WriteTimeout:    c.direct.WriteTimeout,
			MaxConnsPerHost: c.direct.MaxConnsPerHost,
		}
		c.backendProxied = backend
		c.userdataProxied = userdata
	}
}

// WithRenderOptions sets the background/compression flags forwarded on every
// render request.
func WithRenderOptions(useEasyBG, compress bool) Option {
	return func(c *Client) {
		c.useEasyBG = useEasyBG
		c.compress = compress
	}
}

func NewClient(backendURL, userdataURL string, opts ...Option) *Client {
	c := &Client{
		backendURL:  strings.TrimRight(backendURL, "/"),
		userdataURL: strings.TrimRight(userdataURL, "/"),
		direct: &fasthttp.Client{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 64,
		},
		timeout:  10 * time.Second,
		platform: "red",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Platform() string { return c.platform }

type backendKind int

const (
	renderBackend backendKind = iota
	userdataBackend
)

func (c *Client) httpFor(kind backendKind) *fasthttp.Client {
	if c.proxied != nil {
		if (kind == renderBackend && c.backendProxied) || (kind == userdataBackend && c.userdataProxied) {
			return c.proxied
		}
	}
	return c.direct
}

func (c *Client) baseFor(kind backendKind) string {
	if kind == userdataBackend {
		return c.userdataURL
	}
	return c.backendURL
}

// post issues one JSON POST and returns the raw body. A parseable
// `status: failed` envelope becomes a *tsugudto.BackendError regardless of
// HTTP status; other non-2xx replies are transport errors. No retries: a
// failed command call is reported to the user, never replayed.
func (c *Client) post(ctx context.Context, kind backendKind, path string, in any) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	requestID := uuid.NewString()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseFor(kind) + path)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Request-Id", requestID)

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	if err := c.httpFor(kind).DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		obslog.L().Debug("tsugu_request_failed",
			zap.String("path", path), zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body := append([]byte(nil), resp.Body()...)

	var envelope tsugudto.Result
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Status == tsugudto.StatusFailed {
		return nil, &tsugudto.BackendError{Message: envelope.DataText()}
	}

	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return nil, fmt.Errorf("tsugu api error: status=%d body=%s", status, truncate(string(body), 512))
	}
	return body, nil
}

// postList decodes the ordered content-item list the render backend returns.
func (c *Client) postList(ctx context.Context, path string, in any) ([]tsugudto.ContentItem, error) {
	body, err := c.post(ctx, renderBackend, path, in)
	if err != nil {
		return nil, err
	}
	var items []tsugudto.ContentItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return items, nil
}

// postResult decodes a structured userdata-backend envelope, unwrapping the
// success payload into out when given.
func (c *Client) postResult(ctx context.Context, path string, in any, out any) error {
	body, err := c.post(ctx, userdataBackend, path, in)
	if err != nil {
		return err
	}
	var envelope tsugudto.Result
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
