package client

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/takutakahashi/ghclient/pkg/auth"
	"github.com/takutakahashi/ghclient/pkg/credential"
)

// Option configures a Client
type Option func(*Client)

// WithStrategy authenticates every request with s
func WithStrategy(s auth.Strategy) Option {
	return func(c *Client) { c.strategy = s }
}

// WithResolver looks a token up on first use when no strategy is set
func WithResolver(r *credential.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithBaseURL points the client at GitHub Enterprise or a test server
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}
