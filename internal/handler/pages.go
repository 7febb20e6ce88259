package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/issue-tracker/internal/domain"
	"github.com/msomdec/issue-tracker/internal/service"
	"github.com/msomdec/issue-tracker/internal/view"
)

// PageHandler serves the server-rendered HTML pages.
type PageHandler struct {
	auth         *service.AuthService
	issues       *service.IssueService
	cookieSecure bool
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(auth *service.AuthService, issues *service.IssueService, cookieSecure bool) *PageHandler {
	return &PageHandler{auth: auth, issues: issues, cookieSecure: cookieSecure}
}

// HandleRoot sends visitors to the issue list, which in turn redirects
// anonymous visitors to the login page.
func (h *PageHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		view.ErrorPage(http.StatusNotFound, "Not Found", "The page you requested does not exist.").Render(r.Context(), w)
		return
	}
	http.Redirect(w, r, "/issues", http.StatusSeeOther)
}

// HandleLoginPage renders the login form.
func (h *PageHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	var form view.AuthForm
	q := r.URL.Query()
	switch {
	case q.Get("expired") == "1":
		form.Notice = "Your session has expired. Please log in again."
	case q.Get("registered") == "1":
		form.Notice = "Account created. Please log in."
	}
	view.LoginPage(form).Render(r.Context(), w)
}

// HandleLogin processes the login form, setting the auth cookie on success.
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	token, _, err := h.auth.Login(r.Context(), email, r.FormValue("password"))
	if err != nil {
		form := view.AuthForm{Email: email}
		var verr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			form.Errors = []string{"Invalid credentials"}
			w.WriteHeader(http.StatusBadRequest)
		case errors.As(err, &verr):
			form.Errors = verr.Details
			w.WriteHeader(http.StatusBadRequest)
		default:
			slog.Error("login user", "error", err)
			form.Errors = []string{"An unexpected error occurred. Please try again."}
			w.WriteHeader(http.StatusInternalServerError)
		}
		view.LoginPage(form).Render(r.Context(), w)
		return
	}

	h.setAuthCookie(w, token, h.auth.TokenTTL())
	http.Redirect(w, r, "/issues", http.StatusSeeOther)
}

// HandleRegisterPage renders the registration form.
func (h *PageHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	view.RegisterPage(view.AuthForm{}).Render(r.Context(), w)
}

// HandleRegister processes the registration form. A new account must still
// log in, so success redirects to the login page.
func (h *PageHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	_, err := h.auth.Register(r.Context(), email, r.FormValue("password"))
	if err != nil {
		form := view.AuthForm{Email: email}
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			form.Errors = verr.Details
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, domain.ErrDuplicateEmail):
			form.Errors = []string{"User already exists"}
			w.WriteHeader(http.StatusConflict)
		default:
			slog.Error("register user", "error", err)
			form.Errors = []string{"An unexpected error occurred. Please try again."}
			w.WriteHeader(http.StatusInternalServerError)
		}
		view.RegisterPage(form).Render(r.Context(), w)
		return
	}

	http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
}

// HandleLogout clears the auth cookie. Tokens are stateless, so nothing is
// revoked on the server.
func (h *PageHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setAuthCookie(w, "", -1)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleIssueList renders every issue.
func (h *PageHandler) HandleIssueList(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	issues, err := h.issues.List(r.Context())
	if err != nil {
		h.renderError(w, r, "list issues", err)
		return
	}
	view.IssueListPage(user.Email, issues).Render(r.Context(), w)
}

// HandleIssueNew renders an empty issue form with the defaults preselected.
func (h *PageHandler) HandleIssueNew(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	defaults := domain.NewIssue()
	form := view.IssueForm{
		Severity: string(defaults.Severity),
		Priority: string(defaults.Priority),
		Status:   string(defaults.Status),
	}
	view.IssueFormPage(user.Email, form).Render(r.Context(), w)
}

// HandleIssueCreate processes the new-issue form.
func (h *PageHandler) HandleIssueCreate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	form := parseIssueForm(r)

	issue, err := h.issues.Create(r.Context(), formPatch(form))
	if err != nil {
		h.renderFormError(w, r, user, form, "create issue", err)
		return
	}

	http.Redirect(w, r, "/issues/"+issue.ID, http.StatusSeeOther)
}

// HandleIssueView renders a single issue.
func (h *PageHandler) HandleIssueView(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	issue, err := h.issues.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, "get issue", err)
		return
	}
	view.IssueDetailPage(user.Email, issue).Render(r.Context(), w)
}

// HandleIssueEdit renders the edit form for an existing issue.
func (h *PageHandler) HandleIssueEdit(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	issue, err := h.issues.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, "get issue", err)
		return
	}
	view.IssueFormPage(user.Email, view.IssueFormFromIssue(issue)).Render(r.Context(), w)
}

// HandleIssueUpdate processes the edit form.
func (h *PageHandler) HandleIssueUpdate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	form := parseIssueForm(r)
	form.ID = r.PathValue("id")

	issue, err := h.issues.Update(r.Context(), form.ID, formPatch(form))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidID) {
			h.renderError(w, r, "update issue", err)
			return
		}
		h.renderFormError(w, r, user, form, "update issue", err)
		return
	}

	http.Redirect(w, r, "/issues/"+issue.ID, http.StatusSeeOther)
}

// HandleIssueDelete deletes an issue in response to a datastar request. The
// SSE response removes the issue's element from the page, or redirects to
// the list when the request came from the detail page.
func (h *PageHandler) HandleIssueDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.issues.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "Not Found", http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidID):
			http.Error(w, "Bad Request", http.StatusBadRequest)
		default:
			slog.Error("delete issue", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	sse := datastar.NewSSE(w, r)
	if r.URL.Query().Get("from") == "detail" {
		sse.Redirect("/issues")
		return
	}
	sse.RemoveElementByID(view.IssueRowID(id))
}

func (h *PageHandler) setAuthCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		view.ErrorPage(http.StatusNotFound, "Not Found", "That issue does not exist.").Render(r.Context(), w)
	case errors.Is(err, domain.ErrInvalidID):
		w.WriteHeader(http.StatusBadRequest)
		view.ErrorPage(http.StatusBadRequest, "Invalid ID", "That is not a valid issue ID.").Render(r.Context(), w)
	default:
		slog.Error(op, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		view.ErrorPage(http.StatusInternalServerError, "Something went wrong", "An unexpected error occurred.").Render(r.Context(), w)
	}
}

func (h *PageHandler) renderFormError(w http.ResponseWriter, r *http.Request, user *domain.User, form view.IssueForm, op string, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		form.Errors = verr.Details
		w.WriteHeader(http.StatusUnprocessableEntity)
	} else {
		slog.Error(op, "error", err)
		form.Errors = []string{"An unexpected error occurred."}
		w.WriteHeader(http.StatusInternalServerError)
	}
	view.IssueFormPage(user.Email, form).Render(r.Context(), w)
}

func parseIssueForm(r *http.Request) view.IssueForm {
	return view.IssueForm{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Severity:    r.FormValue("severity"),
		Priority:    r.FormValue("priority"),
		Status:      r.FormValue("status"),
	}
}

// formPatch sets every field of the issue from a submitted form. The form
// always posts all of them.
func formPatch(f view.IssueForm) domain.IssuePatch {
	severity := domain.Level(f.Severity)
	priority := domain.Level(f.Priority)
	status := domain.Status(f.Status)
	return domain.IssuePatch{
		Title:       &f.Title,
		Description: &f.Description,
		Severity:    &severity,
		Priority:    &priority,
		Status:      &status,
	}
}
