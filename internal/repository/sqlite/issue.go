package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/msomdec/issue-tracker/internal/domain"
)

// IssueRepository implements domain.IssueRepository using SQLite.
type IssueRepository struct {
	db *sql.DB
}

// NewIssueRepository creates a new SQLite-backed IssueRepository.
func NewIssueRepository(db *DB) *IssueRepository {
	return &IssueRepository{db: db.SqlDB}
}

const issueColumns = `id, title, description, severity, priority, status, created_at`

func (r *IssueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description,
		string(issue.Severity), string(issue.Priority), string(issue.Status), issue.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (r *IssueRepository) List(ctx context.Context) ([]domain.Issue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	issues := []domain.Issue{}
	for rows.Next() {
		var issue domain.Issue
		if err := scanIssue(rows, &issue); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (r *IssueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	issue := &domain.Issue{}
	row := r.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	if err := scanIssue(row, issue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (r *IssueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE issues SET title = ?, description = ?, severity = ?, priority = ?, status = ?
		 WHERE id = ?`,
		issue.Title, issue.Description,
		string(issue.Severity), string(issue.Priority), string(issue.Status), issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return requireAffected(result)
}

func (r *IssueRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	return requireAffected(result)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(s scanner, issue *domain.Issue) error {
	var severity, priority, status string
	if err := s.Scan(&issue.ID, &issue.Title, &issue.Description,
		&severity, &priority, &status, &issue.CreatedAt); err != nil {
		return err
	}
	issue.Severity = domain.Level(severity)
	issue.Priority = domain.Level(priority)
	issue.Status = domain.Status(status)
	return nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
