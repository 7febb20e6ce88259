package client_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msomdec/issue-tracker/internal/client"
)

const (
	fakeEmail    = "a@x.io"
	fakePassword = "secret1"
	fakeToken    = "good-token"
)

// fakeAPI is a scripted stand-in for the server. It accepts one account
// and one token, and can hold list requests until released.
type fakeAPI struct {
	mu        sync.Mutex
	issues    []client.Issue
	listCalls int
	listGate  chan struct{}
	expired   bool
	nextID    int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *client.API) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)

	api, err := client.NewAPI(srv.URL)
	require.NoError(t, err)
	return f, api
}

func (f *fakeAPI) setIssues(issues ...client.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = issues
}

func (f *fakeAPI) holdList() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.listGate = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeAPI) expireTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = true
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	expired := f.expired
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+fakeToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return false
	}
	if expired {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
		return false
	}
	return true
}

func (f *fakeAPI) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["email"] == fakeEmail {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "User already exists"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "User registered successfully",
			"user":    client.User{ID: "u-2", Email: req["email"]},
		})
	})

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["email"] != fakeEmail || req["password"] != fakePassword {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, client.LoginResponse{
			Token: fakeToken,
			User:  client.User{ID: "u-1", Email: fakeEmail},
		})
	})

	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": client.User{ID: "u-1", Email: fakeEmail}})
	})

	mux.HandleFunc("GET /api/getallissues", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listCalls++
		gate := f.listGate
		f.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if !f.authorized(w, r) {
			return
		}
		f.mu.Lock()
		issues := append([]client.Issue{}, f.issues...)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, issues)
	})

	mux.HandleFunc("POST /api/createissue", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		var in client.IssueInput
		json.NewDecoder(r.Body).Decode(&in)
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Validation Error",
				"details": []string{"title is required"},
			})
			return
		}
		f.mu.Lock()
		f.nextID++
		issue := client.Issue{
			ID:        "new-" + strconv.Itoa(f.nextID),
			Title:     *in.Title,
			Severity:  "Low",
			Priority:  "Low",
			Status:    "Open",
			CreatedAt: time.Now().UTC(),
		}
		if in.Description != nil {
			issue.Description = *in.Description
		}
		f.issues = append([]client.Issue{issue}, f.issues...)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, issue)
	})

	mux.HandleFunc("PUT /api/updateissue/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		var in client.IssueInput
		json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.issues {
			if f.issues[i].ID == r.PathValue("id") {
				if in.Status != nil {
					f.issues[i].Status = *in.Status
				}
				if in.Title != nil {
					f.issues[i].Title = *in.Title
				}
				writeJSON(w, http.StatusOK, f.issues[i])
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Issue not found"})
	})

	mux.HandleFunc("DELETE /api/deleteissue/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.issues {
			if f.issues[i].ID == r.PathValue("id") {
				f.issues = append(f.issues[:i], f.issues[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]string{"message": "Issue deleted successfully"})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Issue not found"})
	})

	return mux
}

func ptr[T any](v T) *T { return &v }
