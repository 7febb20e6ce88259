// Package client is the consumer side of the issue tracker API: a typed HTTP
// client, a session that tracks authentication state, and a cache of issues
// that follows the session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is used when no API URL is configured.
	DefaultBaseURL = "http://localhost:5000"

	requestTimeout = 10 * time.Second
)

// API provides typed access to the issue tracker REST API.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*API)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *API) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewAPI constructs an API client pointing at the provided base URL.
func NewAPI(base string, opts ...Option) (*API, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &API{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
	Details []string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if len(e.Details) > 0 {
		return fmt.Sprintf("api request failed (%d): %s: %s", e.Status, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *API) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Error)
	apiErr.Details = payload.Details
	return apiErr
}

// User reflects API user payloads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginResponse captures the token payload emitted by the API.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates an account. It does not log in.
func (c *API) Register(ctx context.Context, email, password string) (User, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, "", &resp); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// Login exchanges credentials for a token.
func (c *API) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// Me returns the user the token belongs to.
func (c *API) Me(ctx context.Context, token string) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, token, &resp); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// Issue reflects API issue payloads.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IssueInput is the body of create and update calls. Nil fields are omitted,
// which on update leaves the stored value unchanged.
type IssueInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Severity    *string `json:"severity,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// ListIssues returns every issue.
func (c *API) ListIssues(ctx context.Context, token string) ([]Issue, error) {
	var issues []Issue
	if err := c.do(ctx, http.MethodGet, "/api/getallissues", nil, token, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// GetIssue returns one issue.
func (c *API) GetIssue(ctx context.Context, token, id string) (Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodGet, "/api/getissuebyid/"+url.PathEscape(id), nil, token, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// CreateIssue creates an issue and returns it as stored.
func (c *API) CreateIssue(ctx context.Context, token string, in IssueInput) (Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodPost, "/api/createissue", in, token, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// UpdateIssue applies a partial update and returns the merged issue.
func (c *API) UpdateIssue(ctx context.Context, token, id string, in IssueInput) (Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodPut, "/api/updateissue/"+url.PathEscape(id), in, token, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// DeleteIssue removes an issue.
func (c *API) DeleteIssue(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/deleteissue/"+url.PathEscape(id), nil, token, nil)
}
