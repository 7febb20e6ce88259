package handler

import (
	"errors"
	"net/http"

	"github.com/msomdec/issue-tracker/internal/domain"
	"github.com/msomdec/issue-tracker/internal/service"
)

// IssueHandler serves the issue CRUD API. Every route is mounted behind
// RequireAuth.
type IssueHandler struct {
	issues *service.IssueService
}

// NewIssueHandler creates a new IssueHandler.
func NewIssueHandler(issues *service.IssueService) *IssueHandler {
	return &IssueHandler{issues: issues}
}

// HandleCreate creates an issue.
// POST /api/createissue
func (h *IssueHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	issue, err := h.issues.Create(r.Context(), req.toPatch())
	if err != nil {
		h.writeIssueError(w, "create issue", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIssueDTO(issue))
}

// HandleList returns every issue.
// GET /api/getallissues
func (h *IssueHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	issues, err := h.issues.List(r.Context())
	if err != nil {
		writeInternalError(w, "list issues", err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueDTOs(issues))
}

// HandleGet returns one issue.
// GET /api/getissuebyid/{id}
func (h *IssueHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	issue, err := h.issues.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeIssueError(w, "get issue", err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueDTO(issue))
}

// HandleUpdate applies a partial update. Fields absent from the body keep
// their stored value.
// PUT /api/updateissue/{id}
func (h *IssueHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	issue, err := h.issues.Update(r.Context(), r.PathValue("id"), req.toPatch())
	if err != nil {
		h.writeIssueError(w, "update issue", err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueDTO(issue))
}

// HandleDelete removes an issue.
// DELETE /api/deleteissue/{id}
func (h *IssueHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.issues.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeIssueError(w, "delete issue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Issue deleted successfully",
	})
}

func (h *IssueHandler) writeIssueError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "Invalid ID")
	case errors.Is(err, domain.ErrInvalidInput):
		writeValidationError(w, err)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Issue not found")
	default:
		writeInternalError(w, op, err)
	}
}
