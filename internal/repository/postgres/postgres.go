// Package postgres implements the user and issue stores on PostgreSQL
// through pgx, with goose-managed embedded migrations.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/msomdec/issue-tracker/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// DB wraps a pgx pool and hands out repositories bound to it.
type DB struct {
	pool *pgxpool.Pool
}

var _ domain.Database = (*DB)(nil)

// New connects to the database at dsn and verifies the connection.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Migrate applies pending goose migrations embedded in the binary.
func (d *DB) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(d.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	slog.Info("applying migrations", "driver", "postgres")
	if err := goose.UpContext(runCtx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

func (d *DB) Users() domain.UserRepository {
	return &UserRepository{pool: d.pool}
}

func (d *DB) Issues() domain.IssueRepository {
	return &IssueRepository{pool: d.pool}
}

// UserRepository implements domain.UserRepository on PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`
	now := time.Now().UTC()
	if _, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.CreatedAt = now
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id::text, email, password_hash, created_at FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id::text, email, password_hash, created_at FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// IssueRepository implements domain.IssueRepository on PostgreSQL.
type IssueRepository struct {
	pool *pgxpool.Pool
}

const issueColumns = `id::text, title, description, severity, priority, status, created_at`

func (r *IssueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	const query = `INSERT INTO issues (id, title, description, severity, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, issue.ID, issue.Title, issue.Description,
		string(issue.Severity), string(issue.Priority), string(issue.Status), issue.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (r *IssueRepository) List(ctx context.Context) ([]domain.Issue, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	issues, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Issue, error) {
		var issue domain.Issue
		err := scanIssue(row, &issue)
		return issue, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan issues: %w", err)
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	return issues, nil
}

func (r *IssueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	var issue domain.Issue
	if err := scanIssue(r.pool.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id), &issue); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return &issue, nil
}

func (r *IssueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	const query = `UPDATE issues
		SET title = $2, description = $3, severity = $4, priority = $5, status = $6
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, issue.ID, issue.Title, issue.Description,
		string(issue.Severity), string(issue.Priority), string(issue.Status))
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *IssueRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanIssue(row pgx.Row, issue *domain.Issue) error {
	var severity, priority, status string
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description,
		&severity, &priority, &status, &issue.CreatedAt); err != nil {
		return err
	}
	issue.Severity = domain.Level(severity)
	issue.Priority = domain.Level(priority)
	issue.Status = domain.Status(status)
	return nil
}
