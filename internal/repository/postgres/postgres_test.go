package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/issue-tracker/internal/domain"
	"github.com/msomdec/issue-tracker/internal/repository/postgres"
)

// newTestDB connects to ISSUES_TEST_DATABASE_URL, skipping when it is unset.
func newTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	dsn := os.Getenv("ISSUES_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ISSUES_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestUsers_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	require.NoError(t, db.Users().Create(ctx, &domain.User{ID: uuid.NewString(), Email: email, PasswordHash: "h"}))
	err := db.Users().Create(ctx, &domain.User{ID: uuid.NewString(), Email: email, PasswordHash: "h2"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	got, err := db.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "h", got.PasswordHash)
}

func TestIssues_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := db.Issues()
	ctx := context.Background()

	issue := &domain.Issue{
		ID:          uuid.NewString(),
		Title:       "Bug",
		Description: "Crashes",
		Severity:    domain.LevelLow,
		Priority:    domain.LevelLow,
		Status:      domain.StatusOpen,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, issue))

	got, err := repo.GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.Title, got.Title)
	assert.True(t, issue.CreatedAt.Equal(got.CreatedAt))

	issue.Status = domain.StatusClosed
	require.NoError(t, repo.Update(ctx, issue))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	require.NoError(t, repo.Delete(ctx, issue.ID))
	assert.ErrorIs(t, repo.Delete(ctx, issue.ID), domain.ErrNotFound)
	_, err = repo.GetByID(ctx, issue.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
