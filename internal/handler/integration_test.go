package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
)

type apiClient struct {
	t     *testing.T
	base  string
	token string
}

func (c *apiClient) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

type issueJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

func TestIntegration_APIRegisterLoginCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &apiClient{t: t, base: srv.URL}

	// 1. Register.
	resp, data := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "a@x.io", "password": "secret1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", resp.StatusCode, data)
	}
	reg := decode[map[string]any](t, data)
	if reg["message"] == nil || reg["user"] == nil {
		t.Fatalf("register: expected message and user, got %s", data)
	}

	// 2. Duplicate registration conflicts.
	resp, _ = c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "A@x.io", "password": "other-password",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", resp.StatusCode)
	}

	// 3. Login.
	resp, data = c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "a@x.io", "password": "secret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", resp.StatusCode, data)
	}
	login := decode[struct {
		Token string `json:"token"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}](t, data)
	if login.Token == "" || login.User.Email != "a@x.io" {
		t.Fatalf("login: unexpected body %s", data)
	}
	c.token = login.Token

	// 4. /me resolves the token.
	resp, _ = c.do(http.MethodGet, "/api/auth/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}

	// 5. Create with defaults.
	resp, data = c.do(http.MethodPost, "/api/createissue", map[string]string{
		"title": "Crash", "description": "on save",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, data)
	}
	created := decode[issueJSON](t, data)
	if created.ID == "" || created.Severity != "Low" || created.Priority != "Low" || created.Status != "Open" {
		t.Fatalf("create: unexpected issue %+v", created)
	}

	// 6. List contains it.
	resp, data = c.do(http.MethodGet, "/api/getallissues", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	list := decode[[]issueJSON](t, data)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list: expected the created issue, got %+v", list)
	}

	// 7. Partial update keeps untouched fields.
	resp, data = c.do(http.MethodPut, "/api/updateissue/"+created.ID, map[string]string{
		"status": "In Progress",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", resp.StatusCode, data)
	}
	updated := decode[issueJSON](t, data)
	if updated.Status != "In Progress" || updated.Title != "Crash" || updated.CreatedAt != created.CreatedAt {
		t.Fatalf("update: unexpected issue %+v", updated)
	}

	// 8. Delete, then get and delete again report 404.
	resp, data = c.do(http.MethodDelete, "/api/deleteissue/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", resp.StatusCode, data)
	}
	if msg := decode[map[string]string](t, data)["message"]; msg == "" {
		t.Fatal("delete: expected a message")
	}

	resp, _ = c.do(http.MethodGet, "/api/getissuebyid/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
	resp, _ = c.do(http.MethodDelete, "/api/deleteissue/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestIntegration_ListWithoutTokenIs401(t *testing.T) {
	srv, auth := newTestServer(t)
	token := registerAndLogin(t, auth, "seed@example.com")

	seed := &apiClient{t: t, base: srv.URL, token: token}
	if resp, _ := seed.do(http.MethodPost, "/api/createissue", map[string]string{
		"title": "Secret", "description": "do not leak",
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed create: expected 201, got %d", resp.StatusCode)
	}

	anon := &apiClient{t: t, base: srv.URL}
	resp, data := anon.do(http.MethodGet, "/api/getallissues", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if strings.Contains(string(data), "Secret") {
		t.Fatalf("401 body leaked issue data: %s", data)
	}
}

func TestIntegration_APIErrors(t *testing.T) {
	srv, auth := newTestServer(t)
	c := &apiClient{t: t, base: srv.URL, token: registerAndLogin(t, auth, "errors@example.com")}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		errMsg string
	}{
		{"bad severity", http.MethodPost, "/api/createissue",
			map[string]string{"title": "T", "description": "D", "severity": "Critical"},
			http.StatusBadRequest, "Validation Error"},
		{"missing title", http.MethodPost, "/api/createissue",
			map[string]string{"description": "D"},
			http.StatusBadRequest, "Validation Error"},
		{"empty status on create", http.MethodPost, "/api/createissue",
			map[string]string{"title": "T", "description": "D", "status": ""},
			http.StatusBadRequest, "Validation Error"},
		{"password over 72 bytes", http.MethodPost, "/api/auth/register",
			map[string]string{"email": "long@example.com", "password": strings.Repeat("p", 73)},
			http.StatusBadRequest, "Validation Error"},
		{"malformed id", http.MethodGet, "/api/getissuebyid/not-a-uuid", nil,
			http.StatusBadRequest, "Invalid ID"},
		{"unknown id", http.MethodGet, "/api/getissuebyid/8d7b4f0e-2f37-4b8a-9c55-6a1f0d3e9b21", nil,
			http.StatusNotFound, "Issue not found"},
		{"update unknown id", http.MethodPut, "/api/updateissue/8d7b4f0e-2f37-4b8a-9c55-6a1f0d3e9b21",
			map[string]string{"title": "x"},
			http.StatusNotFound, "Issue not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.t = t
			resp, data := c.do(tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.StatusCode, data)
			}
			if got := decode[map[string]any](t, data)["error"]; got != tt.errMsg {
				t.Fatalf("expected error %q, got %v", tt.errMsg, got)
			}
		})
	}
}

func TestIntegration_UpdateWithEmptyEnumsIs400(t *testing.T) {
	srv, auth := newTestServer(t)
	c := &apiClient{t: t, base: srv.URL, token: registerAndLogin(t, auth, "enums@example.com")}

	resp, data := c.do(http.MethodPost, "/api/createissue", map[string]string{
		"title": "T", "description": "D", "severity": "High", "status": "Closed",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, data)
	}
	created := decode[issueJSON](t, data)

	resp, data = c.do(http.MethodPut, "/api/updateissue/"+created.ID, map[string]string{"status": "", "severity": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("update: expected 400, got %d: %s", resp.StatusCode, data)
	}
	if details, _ := decode[map[string]any](t, data)["details"].([]any); len(details) != 2 {
		t.Fatalf("expected severity and status details, got %s", data)
	}

	resp, data = c.do(http.MethodGet, "/api/getissuebyid/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	got := decode[issueJSON](t, data)
	if got.Severity != "High" || got.Status != "Closed" {
		t.Fatalf("stored issue changed to %s/%s", got.Severity, got.Status)
	}
}

func TestIntegration_LoginFailures(t *testing.T) {
	srv, auth := newTestServer(t)
	registerAndLogin(t, auth, "known@example.com")
	c := &apiClient{t: t, base: srv.URL}

	for _, creds := range []map[string]string{
		{"email": "known@example.com", "password": "wrong"},
		{"email": "unknown@example.com", "password": "secret1"},
	} {
		resp, data := c.do(http.MethodPost, "/api/auth/login", creds)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if strings.Contains(string(data), "token") {
			t.Fatalf("failed login must not return a token: %s", data)
		}
	}
}

func TestIntegration_PagesRegisterLoginCreateLogout(t *testing.T) {
	srv, _ := newTestServer(t)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("create cookie jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // don't follow redirects automatically
		},
	}

	// 1. Anonymous visitors are sent to the login page.
	resp, err := client.Get(srv.URL + "/issues")
	if err != nil {
		t.Fatalf("GET /issues: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	// 2. Register.
	resp, err = client.PostForm(srv.URL+"/register", url.Values{
		"email":    {"pages@example.com"},
		"password": {"secret1"},
	})
	if err != nil {
		t.Fatalf("POST /register: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("register: expected 303 redirect, got %d", resp.StatusCode)
	}

	// 3. Login sets the auth cookie.
	resp, err = client.PostForm(srv.URL+"/login", url.Values{
		"email":    {"pages@example.com"},
		"password": {"secret1"},
	})
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login: expected 303 redirect, got %d", resp.StatusCode)
	}

	// 4. Invalid form input renders inline errors.
	resp, err = client.PostForm(srv.URL+"/issues", url.Values{
		"title":    {""},
		"severity": {"Low"},
	})
	if err != nil {
		t.Fatalf("POST /issues: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid create: expected 422, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "title is required") {
		t.Fatalf("expected inline validation error, got:\n%s", body)
	}

	// 5. Valid create redirects to the detail page.
	resp, err = client.PostForm(srv.URL+"/issues", url.Values{
		"title":       {"Broken link"},
		"description": {"Footer link 404s"},
		"severity":    {"Medium"},
		"priority":    {"High"},
		"status":      {"Open"},
	})
	if err != nil {
		t.Fatalf("POST /issues: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("create: expected 303, got %d", resp.StatusCode)
	}
	detail := resp.Header.Get("Location")
	if !strings.HasPrefix(detail, "/issues/") {
		t.Fatalf("create: expected redirect to detail page, got %s", detail)
	}

	// 6. The list shows the new issue.
	resp, err = client.Get(srv.URL + "/issues")
	if err != nil {
		t.Fatalf("GET /issues: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Broken link") {
		t.Fatalf("list: expected issue in page, got %d", resp.StatusCode)
	}

	// 7. Deleting over SSE removes the row.
	id := strings.TrimPrefix(detail, "/issues/")
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/issues/"+id, nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE /issues/%s: %v", id, err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("delete: expected SSE response, got %s", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(body), "issue-"+id) {
		t.Fatalf("delete: expected row removal event, got:\n%s", body)
	}

	// 8. Logout clears the cookie.
	resp, err = client.PostForm(srv.URL+"/logout", nil)
	if err != nil {
		t.Fatalf("POST /logout: %v", err)
	}
	resp.Body.Close()

	resp, err = client.Get(srv.URL + "/issues")
	if err != nil {
		t.Fatalf("GET /issues: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("after logout: expected redirect, got %d", resp.StatusCode)
	}
}
