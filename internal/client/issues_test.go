package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/issue-tracker/internal/client"
)

func newLoggedInCache(t *testing.T) (*fakeAPI, *client.Session, *client.IssueCache) {
	t.Helper()
	fake, api := newFakeAPI(t)
	sess := client.NewSession(api, &client.MemoryStore{})
	require.NoError(t, sess.Start(context.Background()))

	cache := client.NewIssueCache(api, sess)
	t.Cleanup(cache.Close)
	return fake, sess, cache
}

func seedIssues() []client.Issue {
	return []client.Issue{
		{ID: "i-2", Title: "Second", Severity: "Low", Priority: "Low", Status: "Open"},
		{ID: "i-1", Title: "First", Severity: "High", Priority: "Medium", Status: "Open"},
	}
}

func TestIssueCache_FetchesOnceAfterLogin(t *testing.T) {
	fake, sess, cache := newLoggedInCache(t)
	fake.setIssues(seedIssues()...)

	assert.False(t, cache.Snapshot().Loading, "anonymous session must not fetch")
	assert.Equal(t, 0, fake.calls())

	_, err := sess.Login(context.Background(), fakeEmail, fakePassword)
	require.NoError(t, err)
	cache.Wait()

	snap := cache.Snapshot()
	require.True(t, snap.Loaded)
	assert.False(t, snap.Loading)
	assert.Len(t, snap.Issues, 2)

	// Confirming an already verified session must not refetch.
	sess.Confirm()
	cache.Wait()
	assert.Equal(t, 1, fake.calls())
}

func TestIssueCache_RestoredSessionFetchesAndConfirms(t *testing.T) {
	fake, api := newFakeAPI(t)
	fake.setIssues(seedIssues()...)
	store := &client.MemoryStore{}
	require.NoError(t, store.Save(client.Credentials{Token: fakeToken}))

	sess := client.NewSession(api, store)
	cache := client.NewIssueCache(api, sess)
	defer cache.Close()
	assert.Equal(t, 0, fake.calls(), "loading session must not fetch")

	require.NoError(t, sess.Start(context.Background()))
	cache.Wait()

	assert.Len(t, cache.Snapshot().Issues, 2)
	assert.True(t, sess.Snapshot().Verified)
	assert.Equal(t, 1, fake.calls())
}

func TestIssueCache_SplicesWrites(t *testing.T) {
	fake, sess, cache := newLoggedInCache(t)
	fake.setIssues(seedIssues()...)
	_, err := sess.Login(context.Background(), fakeEmail, fakePassword)
	require.NoError(t, err)
	cache.Wait()

	created, err := cache.Create(context.Background(), client.IssueInput{
		Title:       ptr("Crash"),
		Description: ptr("on save"),
	})
	require.NoError(t, err)
	snap := cache.Snapshot()
	require.Len(t, snap.Issues, 3)
	assert.Equal(t, created.ID, snap.Issues[0].ID, "create prepends")

	updated, err := cache.Update(context.Background(), "i-1", client.IssueInput{Status: ptr("Resolved")})
	require.NoError(t, err)
	assert.Equal(t, "Resolved", updated.Status)
	snap = cache.Snapshot()
	require.Len(t, snap.Issues, 3)
	assert.Equal(t, "Resolved", snap.Issues[2].Status, "update replaces in place")

	require.NoError(t, cache.Delete(context.Background(), "i-2"))
	snap = cache.Snapshot()
	require.Len(t, snap.Issues, 2)
	for _, issue := range snap.Issues {
		assert.NotEqual(t, "i-2", issue.ID)
	}

	err = cache.Delete(context.Background(), "i-2")
	assert.True(t, client.IsNotFound(err), "second delete reports not found")
	assert.Len(t, cache.Snapshot().Issues, 2)

	assert.Equal(t, 1, fake.calls(), "writes must not refetch")
}

func TestIssueCache_LogoutDiscardsPendingFetch(t *testing.T) {
	fake, sess, cache := newLoggedInCache(t)
	fake.setIssues(seedIssues()...)
	release := fake.holdList()

	_, err := sess.Login(context.Background(), fakeEmail, fakePassword)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fake.calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, cache.Snapshot().Loading)

	require.NoError(t, sess.Logout())
	release()
	cache.Wait()

	snap := cache.Snapshot()
	assert.Empty(t, snap.Issues, "a fetch started before logout must not populate the cache")
	assert.False(t, snap.Loading)
	assert.False(t, snap.Loaded)
}

func TestIssueCache_UnauthorizedExpiresSession(t *testing.T) {
	fake, sess, cache := newLoggedInCache(t)
	fake.setIssues(seedIssues()...)
	_, err := sess.Login(context.Background(), fakeEmail, fakePassword)
	require.NoError(t, err)
	cache.Wait()
	require.Len(t, cache.Snapshot().Issues, 2)

	fake.expireTokens()
	_, err = cache.Create(context.Background(), client.IssueInput{Title: ptr("late"), Description: ptr("d")})
	require.ErrorIs(t, err, client.ErrSessionExpired)

	assert.Equal(t, client.StatusExpired, sess.Snapshot().Status)
	assert.Empty(t, cache.Snapshot().Issues, "expiry drops cached issues")
}

func TestIssueCache_FetchUnauthorizedExpiresSession(t *testing.T) {
	fake, api := newFakeAPI(t)
	fake.expireTokens()
	store := &client.MemoryStore{}
	require.NoError(t, store.Save(client.Credentials{Token: fakeToken}))

	sess := client.NewSession(api, store)
	cache := client.NewIssueCache(api, sess)
	defer cache.Close()

	require.NoError(t, sess.Start(context.Background()))
	cache.Wait()

	assert.Equal(t, client.StatusExpired, sess.Snapshot().Status)
	assert.False(t, cache.Snapshot().Loaded)
}

func TestIssueCache_SubscribersSeeChanges(t *testing.T) {
	fake, sess, cache := newLoggedInCache(t)
	fake.setIssues(seedIssues()...)

	counts := make(chan int, 16)
	unsubscribe := cache.Subscribe(func(s client.CacheSnapshot) {
		if s.Loaded {
			counts <- len(s.Issues)
		}
	})
	defer unsubscribe()

	_, err := sess.Login(context.Background(), fakeEmail, fakePassword)
	require.NoError(t, err)

	select {
	case n := <-counts:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("no loaded snapshot delivered")
	}
}
