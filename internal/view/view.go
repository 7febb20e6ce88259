// Package view holds the server-rendered HTML components for the issue
// tracker pages. Components are written in .templ files; run templ generate
// after editing them.
package view

//go:generate templ generate

import (
	"fmt"
	"strings"

	"github.com/a-h/templ"

	"github.com/msomdec/issue-tracker/internal/domain"
)

// AuthForm carries the values and problems of a login or register form so a
// failed submission can be redisplayed.
type AuthForm struct {
	Email  string
	Errors []string
	Notice string
}

// IssueForm carries the values of the create/edit form. ID is empty when
// creating a new issue.
type IssueForm struct {
	ID          string
	Title       string
	Description string
	Severity    string
	Priority    string
	Status      string
	Errors      []string
}

// IssueFormFromIssue fills a form with an existing issue's values.
func IssueFormFromIssue(issue *domain.Issue) IssueForm {
	return IssueForm{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Severity:    string(issue.Severity),
		Priority:    string(issue.Priority),
		Status:      string(issue.Status),
	}
}

func (f IssueForm) heading() string {
	if f.ID != "" {
		return "Edit issue"
	}
	return "New issue"
}

func (f IssueForm) action() string {
	if f.ID != "" {
		return "/issues/" + f.ID
	}
	return "/issues"
}

func (f IssueForm) submitLabel() string {
	if f.ID != "" {
		return "Save changes"
	}
	return "Create issue"
}

// IssueRowID is the DOM id of an issue's row in the list, used as the
// target when a row is removed over SSE.
func IssueRowID(id string) string {
	return "issue-" + id
}

// deleteAction is the datastar expression that confirms and then sends a
// DELETE to path. The path is embedded as a JSON string literal.
func deleteAction(path string) (string, error) {
	target, err := templ.JSONString(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("confirm('Delete this issue?') && @delete(%s)", target), nil
}

func badgeClass(kind, value string) string {
	slug := strings.ToLower(strings.ReplaceAll(value, " ", "-"))
	return strings.Join([]string{"badge", kind, kind + "-" + slug}, " ")
}

func levelOptions() []string {
	opts := make([]string, len(domain.Levels))
	for i, l := range domain.Levels {
		opts[i] = string(l)
	}
	return opts
}

func statusOptions() []string {
	opts := make([]string, len(domain.Statuses))
	for i, s := range domain.Statuses {
		opts[i] = string(s)
	}
	return opts
}
