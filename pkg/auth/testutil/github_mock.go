// Package testutil provides an in-process fake of the GitHub endpoints the
// client talks to, plus RSA key helpers for App tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GitHubMockServer provides a configurable mock GitHub server for testing
type GitHubMockServer struct {
	server *httptest.Server
	mu     sync.RWMutex

	// Configurable responses
	AccessTokens       map[string]*TokenResponse
	InstallationTokens map[int64]*InstallationTokenResponse
	RepoInstallations  map[string]int64
	OrgInstallations   map[string]int64
	Routes             map[string]http.HandlerFunc
	RateLimit          RateLimitState
	// JSONTokenResponses makes the token endpoint answer in JSON instead of
	// the form encoding GitHub uses for Accept: application/x-www-form-urlencoded
	JSONTokenResponses bool

	// Error simulation
	Errors        map[string]ErrorResponse
	ResponseDelay time.Duration

	// Request tracking
	RequestLog []RequestInfo
}

// TokenResponse represents OAuth token exchange response
type TokenResponse struct {
	AccessToken      string `json:"access_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	Scope            string `json:"scope,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// InstallationTokenResponse mirrors POST /app/installations/{id}/access_tokens
type InstallationTokenResponse struct {
	Token               string            `json:"token"`
	ExpiresAt           time.Time         `json:"expires_at"`
	Permissions         map[string]string `json:"permissions,omitempty"`
	RepositorySelection string            `json:"repository_selection,omitempty"`
}

// RateLimitState backs GET /rate_limit
type RateLimitState struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// ErrorResponse is served instead of the normal handler for a path
type ErrorResponse struct {
	Status  int
	Body    string
	Headers map[string]string
}

// RequestInfo tracks request details
type RequestInfo struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
	Time    time.Time
}

// NewGitHubMockServer creates a new mock GitHub server
func NewGitHubMockServer() *GitHubMockServer {
	mock := &GitHubMockServer{
		AccessTokens:       make(map[string]*TokenResponse),
		InstallationTokens: make(map[int64]*InstallationTokenResponse),
		RepoInstallations:  make(map[string]int64),
		OrgInstallations:   make(map[string]int64),
		Routes:             make(map[string]http.HandlerFunc),
		Errors:             make(map[string]ErrorResponse),
		RateLimit:          RateLimitState{Limit: 5000, Remaining: 4999, Reset: time.Now().Add(time.Hour)},
		RequestLog:         make([]RequestInfo, 0),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

// URL returns the mock server URL
func (m *GitHubMockServer) URL() string {
	return m.server.URL
}

// Client returns an http.Client wired to the server
func (m *GitHubMockServer) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server
func (m *GitHubMockServer) Close() {
	m.server.Close()
}

// SetAccessToken configures token exchange response for a given code
func (m *GitHubMockServer) SetAccessToken(code string, response *TokenResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AccessTokens[code] = response
}

// SetInstallationToken configures the token minted for an installation
func (m *GitHubMockServer) SetInstallationToken(id int64, response *InstallationTokenResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InstallationTokens[id] = response
}

// SetRepoInstallation maps owner/repo to an installation id
func (m *GitHubMockServer) SetRepoInstallation(fullName string, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RepoInstallations[fullName] = id
}

// SetOrgInstallation maps an org to an installation id
func (m *GitHubMockServer) SetOrgInstallation(org string, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrgInstallations[org] = id
}

// Handle registers h for "METHOD /path"
func (m *GitHubMockServer) Handle(method, path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Routes[method+" "+path] = h
}

// SetError configures an error response for a path
func (m *GitHubMockServer) SetError(path string, resp ErrorResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[path] = resp
}

// SetRateLimit configures GET /rate_limit
func (m *GitHubMockServer) SetRateLimit(state RateLimitState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimit = state
}

// SetResponseDelay configures a delay for all responses
func (m *GitHubMockServer) SetResponseDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseDelay = delay
}

// GetRequestLog returns all logged requests
func (m *GitHubMockServer) GetRequestLog() []RequestInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestInfo{}, m.RequestLog...)
}

// LastRequest returns the most recent request, if any
func (m *GitHubMockServer) LastRequest() (RequestInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.RequestLog) == 0 {
		return RequestInfo{}, false
	}
	return m.RequestLog[len(m.RequestLog)-1], true
}

// handler processes incoming requests
func (m *GitHubMockServer) handler(w http.ResponseWriter, r *http.Request) {
	body := m.logRequest(r)

	m.mu.RLock()
	delay := m.ResponseDelay
	m.mu.RUnlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	// GHE serves the REST API under /api/v3
	path := strings.TrimPrefix(r.URL.Path, "/api/v3")

	m.mu.RLock()
	errResp, hasErr := m.Errors[path]
	route, hasRoute := m.Routes[r.Method+" "+path]
	m.mu.RUnlock()

	if hasErr {
		for k, v := range errResp.Headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(errResp.Status)
		if errResp.Body != "" {
			_, _ = io.WriteString(w, errResp.Body)
		} else {
			writeJSON(w, map[string]string{"message": http.StatusText(errResp.Status)})
		}
		return
	}
	if hasRoute {
		route(w, r)
		return
	}

	switch {
	case path == "/login/oauth/access_token" && r.Method == http.MethodPost:
		m.handleAccessToken(w, body)
	case path == "/rate_limit":
		m.handleRateLimit(w)
	case strings.HasPrefix(path, "/app/installations/") && strings.HasSuffix(path, "/access_tokens"):
		m.handleInstallationToken(w, r, path)
	case strings.HasPrefix(path, "/repos/") && strings.HasSuffix(path, "/installation"):
		fullName := strings.TrimSuffix(strings.TrimPrefix(path, "/repos/"), "/installation")
		m.handleInstallationLookup(w, r, m.lookupRepo(fullName))
	case strings.HasPrefix(path, "/orgs/") && strings.HasSuffix(path, "/installation"):
		org := strings.TrimSuffix(strings.TrimPrefix(path, "/orgs/"), "/installation")
		m.handleInstallationLookup(w, r, m.lookupOrg(org))
	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{
			"message":           "Not Found",
			"documentation_url": "https://docs.github.com/rest",
		})
	}
}

func (m *GitHubMockServer) handleAccessToken(w http.ResponseWriter, body []byte) {
	form, _ := url.ParseQuery(string(body))
	code := form.Get("code")

	m.mu.RLock()
	response, exists := m.AccessTokens[code]
	asJSON := m.JSONTokenResponses
	m.mu.RUnlock()

	// GitHub reports exchange failures with 200 and an error field
	if !exists {
		response = &TokenResponse{
			Error:            "bad_verification_code",
			ErrorDescription: "The code passed is incorrect or expired.",
		}
	}

	if asJSON {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, response)
		return
	}

	values := url.Values{}
	for k, v := range map[string]string{
		"access_token":      response.AccessToken,
		"token_type":        response.TokenType,
		"scope":             response.Scope,
		"error":             response.Error,
		"error_description": response.ErrorDescription,
	} {
		if v != "" {
			values.Set(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	_, _ = io.WriteString(w, values.Encode())
}

func (m *GitHubMockServer) handleRateLimit(w http.ResponseWriter) {
	m.mu.RLock()
	state := m.RateLimit
	m.mu.RUnlock()

	core := map[string]any{
		"limit":     state.Limit,
		"remaining": state.Remaining,
		"used":      state.Limit - state.Remaining,
		"reset":     state.Reset.Unix(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(state.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(state.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(state.Reset.Unix(), 10))
	writeJSON(w, map[string]any{
		"resources": map[string]any{"core": core},
		"rate":      core,
	})
}

func (m *GitHubMockServer) handleInstallationToken(w http.ResponseWriter, r *http.Request, path string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"message": "A JSON web token could not be decoded"})
		return
	}

	idStr := strings.TrimSuffix(strings.TrimPrefix(path, "/app/installations/"), "/access_tokens")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
		return
	}

	m.mu.RLock()
	resp, ok := m.InstallationTokens[id]
	m.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, resp)
}

func (m *GitHubMockServer) handleInstallationLookup(w http.ResponseWriter, r *http.Request, id int64) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"message": "A JSON web token could not be decoded"})
		return
	}
	if id == 0 {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"id": id, "app_id": 1})
}

func (m *GitHubMockServer) lookupRepo(fullName string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RepoInstallations[fullName]
}

func (m *GitHubMockServer) lookupOrg(org string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.OrgInstallations[org]
}

func (m *GitHubMockServer) logRequest(r *http.Request) []byte {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestLog = append(m.RequestLog, RequestInfo{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
		Time:    time.Now(),
	})
	return body
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(fmt.Sprintf("testutil: encode response: %v", err))
	}
}

// Preset configurations for common test scenarios

// SetupRateLimitedResponse makes path answer like an exhausted quota
func (m *GitHubMockServer) SetupRateLimitedResponse(path string, reset time.Time) {
	m.SetError(path, ErrorResponse{
		Status: http.StatusForbidden,
		Body:   `{"message":"API rate limit exceeded for 203.0.113.7.","documentation_url":"https://docs.github.com/rest/overview/resources-in-the-rest-api#rate-limiting"}`,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "60",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(reset.Unix(), 10),
		},
	})
}

// SetupServerError makes path answer with status
func (m *GitHubMockServer) SetupServerError(path string, status int) {
	m.SetError(path, ErrorResponse{Status: status})
}
