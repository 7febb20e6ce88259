package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Level is used for both severity and priority.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Levels lists the accepted severity and priority values in display order.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh}

func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusTesting    Status = "Testing"
	StatusResolved   Status = "Resolved"
	StatusClosed     Status = "Closed"
)

// Statuses lists the accepted status values in workflow order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusTesting, StatusResolved, StatusClosed}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusTesting, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Issue is a tracked unit of work. Issues have no owner: every
// authenticated user shares the same collection.
type Issue struct {
	ID          string
	Title       string
	Description string
	Severity    Level
	Priority    Level
	Status      Status
	CreatedAt   time.Time
}

// IssuePatch carries a partial update. Nil fields keep their current value.
type IssuePatch struct {
	Title       *string
	Description *string
	Severity    *Level
	Priority    *Level
	Status      *Status
}

// Apply copies every non-nil field of the patch onto the issue.
func (p IssuePatch) Apply(issue *Issue) {
	if p.Title != nil {
		issue.Title = *p.Title
	}
	if p.Description != nil {
		issue.Description = *p.Description
	}
	if p.Severity != nil {
		issue.Severity = *p.Severity
	}
	if p.Priority != nil {
		issue.Priority = *p.Priority
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
}

// NewIssue returns an issue carrying the default severity, priority and
// status. Fields supplied at creation are applied on top of it, so only
// absent enums keep their defaults.
func NewIssue() *Issue {
	return &Issue{Severity: LevelLow, Priority: LevelLow, Status: StatusOpen}
}

// Normalize trims the text fields. Enum fields are left as given so that an
// empty value fails Validate.
func (i *Issue) Normalize() {
	i.Title = strings.TrimSpace(i.Title)
	i.Description = strings.TrimSpace(i.Description)
}

// Validate reports every invalid field as a *ValidationError.
func (i *Issue) Validate() error {
	var details []string
	if i.Title == "" {
		details = append(details, "title is required")
	}
	if i.Description == "" {
		details = append(details, "description is required")
	}
	if !i.Severity.Valid() {
		details = append(details, fmt.Sprintf("%q is not a valid severity", i.Severity))
	}
	if !i.Priority.Valid() {
		details = append(details, fmt.Sprintf("%q is not a valid priority", i.Priority))
	}
	if !i.Status.Valid() {
		details = append(details, fmt.Sprintf("%q is not a valid status", i.Status))
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// IssueRepository defines persistence operations for issues.
// Update replaces every field except ID and CreatedAt; concurrent
// updates are last-writer-wins.
type IssueRepository interface {
	Create(ctx context.Context, issue *Issue) error
	List(ctx context.Context) ([]Issue, error)
	GetByID(ctx context.Context, id string) (*Issue, error)
	Update(ctx context.Context, issue *Issue) error
	Delete(ctx context.Context, id string) error
}
