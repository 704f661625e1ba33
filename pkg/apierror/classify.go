package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// AuthenticatedLimit is the hourly quota assumed for authenticated callers
	AuthenticatedLimit = 5000
	// UnauthenticatedLimit is the hourly quota of anonymous callers
	UnauthenticatedLimit = 60

	headerRemaining = "X-RateLimit-Remaining"
	headerLimit     = "X-RateLimit-Limit"
	headerReset     = "X-RateLimit-Reset"

	fallbackHelp = "Run `gh auth login`, or set the GITHUB_TOKEN or GH_TOKEN environment variable."
)

// AuthState describes the caller's authentication so messages can name the
// active source or explain how to authenticate
type AuthState interface {
	IsAuthenticated() bool
	AuthenticationStatus() string
	AuthenticationHelp() string
}

// StaticAuthState is a fixed AuthState
type StaticAuthState struct {
	Authenticated bool
	Status        string
	Help          string
}

// IsAuthenticated implements AuthState
func (s StaticAuthState) IsAuthenticated() bool { return s.Authenticated }

// AuthenticationStatus implements AuthState
func (s StaticAuthState) AuthenticationStatus() string { return s.Status }

// AuthenticationHelp implements AuthState
func (s StaticAuthState) AuthenticationHelp() string { return s.Help }

// Response is the part of a failed HTTP exchange the classifier inspects
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Cause is the transport error observed alongside the response, if any
	Cause error
}

// Classifier maps failed responses onto the taxonomy
type Classifier struct {
	Auth AuthState
	Now  func() time.Time
}

// NewClassifier returns a Classifier using auth for message augmentation
func NewClassifier(auth AuthState) *Classifier {
	return &Classifier{Auth: auth, Now: time.Now}
}

// body is the REST error document
type body struct {
	Message          string
	DocumentationURL string
	Errors           []FieldError
}

// Classify returns exactly one *Error for r. It never panics and never fails:
// an absent or malformed body degrades to the status text.
func (c *Classifier) Classify(r Response) *Error {
	b := parseBody(r.Body)
	msg := b.Message
	if msg == "" {
		msg = http.StatusText(r.StatusCode)
	}
	if msg == "" {
		msg = "unknown error"
	}

	var e *Error
	switch r.StatusCode {
	case http.StatusUnauthorized:
		e = c.authentication(msg)
	case http.StatusForbidden:
		if isRateLimited(msg, r.Header) {
			e = c.rateLimit(r.Header)
		} else {
			e = c.permission(msg)
		}
	case http.StatusNotFound:
		e = New(KindNotFound, fmt.Sprintf("Resource not found: %s. Check the owner, repository and path, or whether the resource is private.", msg))
	case http.StatusUnprocessableEntity:
		e = validation(msg, b.Errors)
	case http.StatusTooManyRequests:
		e = c.rateLimit(r.Header)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		e = New(KindNetwork, fmt.Sprintf("GitHub API server error (%d): %s. The service may be temporarily unavailable; try again later.", r.StatusCode, msg))
		e.cause = r.Cause
	default:
		e = New(KindAPI, fmt.Sprintf("GitHub API request failed with status %d: %s", r.StatusCode, msg))
		e.cause = r.Cause
	}

	e.StatusCode = r.StatusCode
	e.DocumentationURL = b.DocumentationURL
	if e.Errors == nil {
		e.Errors = b.Errors
	}
	e.AddContext("api_message", b.Message)
	if b.DocumentationURL != "" {
		e.AddContext("documentation_url", b.DocumentationURL)
		e.Message += "\nDocumentation: " + b.DocumentationURL
	}
	if rid := r.Header.Get("X-GitHub-Request-Id"); rid != "" {
		e.AddContext("github_request_id", rid)
	}
	return e
}

// ClassifyTransport maps a transport failure with no usable response
func (c *Classifier) ClassifyTransport(err error) *Error {
	msg := "GitHub API request failed: could not reach the server. Check your network connection and the API base URL."
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "GitHub API request timed out. Check your network connection or raise the client timeout."
	}
	return Wrap(err, KindNetwork, msg)
}

func (c *Classifier) authenticated() bool {
	return c.Auth != nil && c.Auth.IsAuthenticated()
}

func (c *Classifier) help() string {
	if c.Auth == nil || c.Auth.AuthenticationHelp() == "" {
		return fallbackHelp
	}
	return c.Auth.AuthenticationHelp()
}

func (c *Classifier) status() string {
	return strings.TrimSuffix(strings.TrimSpace(c.Auth.AuthenticationStatus()), ".")
}

func (c *Classifier) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Classifier) authentication(msg string) *Error {
	if c.authenticated() {
		e := New(KindAuthentication, fmt.Sprintf(
			"Authentication failed: %s. %s. The token may be invalid, expired or revoked; generate a new one and try again.",
			msg, c.status()))
		return e.AddContext("auth_status", c.Auth.AuthenticationStatus())
	}
	return New(KindAuthentication, fmt.Sprintf("Authentication required: %s.\n\n%s", msg, c.help()))
}

func (c *Classifier) permission(msg string) *Error {
	if c.authenticated() {
		e := New(KindPermission, fmt.Sprintf(
			"Permission denied: %s. Your token may lack required scopes for this operation. %s.",
			msg, c.status()))
		return e.AddContext("auth_status", c.Auth.AuthenticationStatus())
	}
	return New(KindPermission, fmt.Sprintf(
		"Permission denied: %s. This resource may require authentication.\n\n%s", msg, c.help()))
}

func (c *Classifier) rateLimit(h http.Header) *Error {
	now := c.now()
	rl := ParseRateLimit(h, c.authenticated(), now)

	wait := rl.Reset.Sub(now)
	base := fmt.Sprintf("GitHub API rate limit exceeded: %d/%d requests remaining. The limit resets at %s (%s).",
		rl.Remaining, rl.Limit, rl.Reset.UTC().Format(time.RFC1123), humanizeWait(wait))

	var msg string
	if c.authenticated() {
		msg = base + " Cache responses where possible and back off until the reset time."
	} else {
		msg = fmt.Sprintf("%s You're on the %d/hour unauthenticated tier; authenticating raises it to %d/hour.\n\n%s",
			base, UnauthenticatedLimit, AuthenticatedLimit, c.help())
	}

	e := New(KindRateLimit, msg)
	e.RateLimit = &rl
	e.AddContext("rate_limit_remaining", rl.Remaining)
	e.AddContext("rate_limit_limit", rl.Limit)
	e.AddContext("rate_limit_reset", rl.Reset)
	return e
}

func validation(msg string, entries []FieldError) *Error {
	var sb strings.Builder
	sb.WriteString("Validation failed: ")
	sb.WriteString(msg)
	for _, fe := range entries {
		sb.WriteString("\n  - ")
		sb.WriteString(formatFieldError(fe))
	}
	e := New(KindValidation, sb.String())
	e.Errors = entries
	return e
}

func formatFieldError(fe FieldError) string {
	var s string
	switch {
	case fe.Field != "" && fe.Code != "":
		s = fe.Field + ": " + fe.Code
	case fe.Field != "":
		s = fe.Field
	case fe.Code != "":
		s = fe.Code
	default:
		s = fe.Message
		fe.Message = ""
	}
	if fe.Resource != "" {
		s += " (resource: " + fe.Resource + ")"
	}
	if fe.Message != "" {
		s += " - " + fe.Message
	}
	return s
}

// isRateLimited applies the 403 tie-break: either signal is enough
func isRateLimited(msg string, h http.Header) bool {
	if strings.Contains(strings.ToLower(msg), "rate limit") {
		return true
	}
	v := strings.TrimSpace(h.Get(headerRemaining))
	if v == "" {
		return false
	}
	n, err := strconv.Atoi(v)
	return err == nil && n == 0
}

// ParseRateLimit reads the rate-limit headers, filling gaps with the tier
// default limit and a reset one hour from now
func ParseRateLimit(h http.Header, authenticated bool, now time.Time) RateLimit {
	rl := RateLimit{Limit: UnauthenticatedLimit, Reset: now.Add(time.Hour)}
	if authenticated {
		rl.Limit = AuthenticatedLimit
	}
	if n, ok := atoi(h.Get(headerRemaining)); ok {
		rl.Remaining = n
	}
	if n, ok := atoi(h.Get(headerLimit)); ok && n > 0 {
		rl.Limit = n
	}
	if n, ok := atoi(h.Get(headerReset)); ok && n > 0 {
		rl.Reset = time.Unix(int64(n), 0)
	}
	return rl
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func humanizeWait(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	if d < time.Minute {
		return "in less than a minute"
	}
	m := int(math.Ceil(d.Minutes()))
	if m == 1 {
		return "in 1 minute"
	}
	return fmt.Sprintf("in %d minutes", m)
}

func parseBody(raw []byte) body {
	var doc struct {
		Message          string            `json:"message"`
		DocumentationURL string            `json:"documentation_url"`
		Errors           []json.RawMessage `json:"errors"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return body{}
	}

	out := body{Message: doc.Message, DocumentationURL: doc.DocumentationURL}
	for _, item := range doc.Errors {
		var fe FieldError
		if err := json.Unmarshal(item, &fe); err == nil {
			out.Errors = append(out.Errors, fe)
			continue
		}
		// some endpoints send plain strings
		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			out.Errors = append(out.Errors, FieldError{Message: s})
		}
	}
	return out
}
