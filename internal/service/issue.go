package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msomdec/issue-tracker/internal/domain"
)

// IssueService handles issue CRUD and validation. Issues form one shared
// collection, so no operation takes an owner.
type IssueService struct {
	issues domain.IssueRepository
	now    func() time.Time
}

// NewIssueService creates a new IssueService.
func NewIssueService(issues domain.IssueRepository) *IssueService {
	return &IssueService{issues: issues, now: time.Now}
}

// Create builds an issue from the supplied fields, defaulting any absent
// enum, and persists it with a fresh ID and creation timestamp.
func (s *IssueService) Create(ctx context.Context, fields domain.IssuePatch) (*domain.Issue, error) {
	issue := domain.NewIssue()
	fields.Apply(issue)
	issue.Normalize()
	if err := issue.Validate(); err != nil {
		return nil, err
	}

	issue.ID = uuid.NewString()
	issue.CreatedAt = s.now().UTC()
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return issue, nil
}

// List returns every issue, newest first.
func (s *IssueService) List(ctx context.Context) ([]domain.Issue, error) {
	return s.issues.List(ctx)
}

// GetByID returns an issue by ID.
func (s *IssueService) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.issues.GetByID(ctx, id)
}

// Update applies a partial patch and re-validates the merged issue.
func (s *IssueService) Update(ctx context.Context, id string, patch domain.IssuePatch) (*domain.Issue, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(issue)
	issue.Normalize()
	if err := issue.Validate(); err != nil {
		return nil, err
	}

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	return issue, nil
}

// Delete removes an issue. Deleting an ID that is already gone reports
// ErrNotFound.
func (s *IssueService) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.issues.Delete(ctx, id)
}

func validateID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidID, id)
	}
	return nil
}
