// Package client sends authenticated REST requests to GitHub and turns failed
// responses into classified errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/auth"
	"github.com/takutakahashi/ghclient/pkg/credential"
	"github.com/takutakahashi/ghclient/pkg/logger"
	"github.com/takutakahashi/ghclient/pkg/utils"
)

const (
	DefaultBaseURL   = "https://api.github.com"
	DefaultUserAgent = "ghclient"
	APIVersion       = "2022-11-28"

	mediaType = "application/vnd.github+json"
)

// Client represents a GitHub REST client
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	log        *zerolog.Logger

	resolver   *credential.Resolver
	classifier *apierror.Classifier

	mu       sync.Mutex
	strategy auth.Strategy
	resolved bool

	// refreshMu serializes Refresh, which strategies do not lock themselves
	refreshMu sync.Mutex
}

// Response is a successful reply
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// New builds a Client. Without WithStrategy the token comes from the
// resolver, if one is set, and the client goes anonymous when none is found.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = utils.NewHTTPClient(utils.DefaultHTTPTimeout)
	}
	if c.log == nil {
		c.log = logger.Named("client")
	}
	c.classifier = apierror.NewClassifier(authState{c})
	return c
}

// Strategy returns the active strategy after first-use resolution, or nil
// when anonymous
func (c *Client) Strategy(ctx context.Context) (auth.Strategy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.strategy != nil || c.resolved || c.resolver == nil {
		return c.strategy, nil
	}
	token, err := c.resolver.Resolve(ctx, false)
	if err != nil {
		return nil, err
	}
	c.resolved = true
	if token != "" {
		c.strategy = auth.NewStaticToken(token)
	}
	return c.strategy, nil
}

// Do sends method path with body JSON-encoded (nil for none) and decodes a
// 2xx reply into out (nil to skip). Errors are never retried.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Response, error) {
	requestID := uuid.NewString()
	log := c.log.With().Str("request_id", requestID).Str("method", method).Str("path", path).Logger()

	withContext := func(e *apierror.Error) *apierror.Error {
		return e.AddContext("request_id", requestID).AddContext("method", method).AddContext("path", path)
	}

	strategy, err := c.Strategy(ctx)
	if err != nil {
		return nil, err
	}
	if strategy != nil {
		if err := c.refresh(ctx, strategy, &log); err != nil {
			if e, ok := apierror.As(err); ok {
				return nil, withContext(e)
			}
			return nil, err
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strategy != nil {
		c.refreshMu.Lock()
		header, err := strategy.AuthorizationHeader()
		c.refreshMu.Unlock()
		if err != nil {
			if e, ok := apierror.As(err); ok {
				return nil, withContext(e)
			}
			return nil, err
		}
		req.Header.Set("Authorization", header)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("request failed")
		return nil, withContext(c.classifier.ClassifyTransport(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, withContext(c.classifier.ClassifyTransport(err))
	}
	log.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, withContext(c.classifier.Classify(apierror.Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       data,
		}))
	}

	if out != nil && len(data) > 0 && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data, RequestID: requestID}, nil
}

func (c *Client) refresh(ctx context.Context, s auth.Strategy, log *zerolog.Logger) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if !s.NeedsRefresh() || !canRefresh(s) {
		return nil
	}
	log.Debug().Str("strategy", s.Type()).Msg("refreshing credentials")
	return s.Refresh(ctx)
}

// canRefresh is false for an installation-mode App with no issuer, which
// keeps sending its App JWT until a token is set by hand
func canRefresh(s auth.Strategy) bool {
	switch v := s.(type) {
	case *auth.GitHubApp:
		return v.HasIssuer()
	default:
		return true
	}
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// Rate is one quota bucket from /rate_limit
type Rate struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Used      int   `json:"used"`
	Reset     int64 `json:"reset"`
}

// ResetTime converts Reset to a time
func (r Rate) ResetTime() time.Time { return time.Unix(r.Reset, 0) }

// RateLimits is the /rate_limit document
type RateLimits struct {
	Resources map[string]Rate `json:"resources"`
	Rate      Rate            `json:"rate"`
}

// RateLimit fetches the caller's current quotas. The call itself does not
// count against the core quota.
func (c *Client) RateLimit(ctx context.Context) (*RateLimits, error) {
	var limits RateLimits
	if _, err := c.Do(ctx, http.MethodGet, "/rate_limit", nil, &limits); err != nil {
		return nil, err
	}
	return &limits, nil
}

// authState feeds the classifier from the client's current credentials
type authState struct{ c *Client }

func (a authState) IsAuthenticated() bool {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	return a.c.strategy != nil
}

// AuthenticationStatus names the resolver's source only when the active
// strategy came from it
func (a authState) AuthenticationStatus() string {
	a.c.mu.Lock()
	s, fromResolver := a.c.strategy, a.c.resolved
	a.c.mu.Unlock()
	if s == nil {
		return "No authentication configured"
	}
	if r := a.c.resolver; fromResolver && r != nil && r.IsAuthenticated() {
		return r.AuthenticationStatus()
	}
	return "Authenticated with " + auth.Describe(s)
}

func (a authState) AuthenticationHelp() string {
	if r := a.c.resolver; r != nil {
		return r.AuthenticationHelp()
	}
	return ""
}
