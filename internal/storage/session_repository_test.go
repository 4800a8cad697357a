package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepository(t *testing.T) (*miniredis.Miniredis, *SessionRepository) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return mr, NewSessionRepository(client, time.Hour)
}

func sampleState(id, target string) *SessionState {
	now := time.Now().UTC().Truncate(time.Second)
	return &SessionState{
		SessionID:    id,
		TargetID:     target,
		URL:          "https://example.com",
		Title:        "Example",
		Domains:      []string{"Page", "Runtime"},
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusActive,
	}
}

// TestSaveAndGetSession tests a full round trip through Redis
func TestSaveAndGetSession(t *testing.T) {
	mr, repo := setupTestRepository(t)
	ctx := context.Background()

	state := sampleState("sess_a", "T1")
	require.NoError(t, repo.SaveSession(ctx, state))

	got, err := repo.GetSession(ctx, "sess_a")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	assert.True(t, mr.Exists("bridge:session:sess_a"))
	assert.Equal(t, time.Hour, mr.TTL("bridge:session:sess_a"))
}

// TestSaveSessionValidates tests that incomplete state is rejected
func TestSaveSessionValidates(t *testing.T) {
	_, repo := setupTestRepository(t)

	err := repo.SaveSession(context.Background(), &SessionState{SessionID: "sess_a"})
	assert.Error(t, err)
}

// TestGetSessionNotFound tests the sentinel error
func TestGetSessionNotFound(t *testing.T) {
	_, repo := setupTestRepository(t)

	_, err := repo.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCurrentSession tests that the last saved session is current
func TestCurrentSession(t *testing.T) {
	_, repo := setupTestRepository(t)
	ctx := context.Background()

	_, err := repo.CurrentSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SaveSession(ctx, sampleState("sess_a", "T1")))
	require.NoError(t, repo.SaveSession(ctx, sampleState("sess_b", "T2")))

	current, err := repo.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess_b", current.SessionID)
	assert.Equal(t, "T2", current.TargetID)

	require.NoError(t, repo.DeleteSession(ctx, "sess_b"))
	_, err = repo.CurrentSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestListSessionsDropsExpired tests that expired hashes leave the index
func TestListSessionsDropsExpired(t *testing.T) {
	mr, repo := setupTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, sampleState("sess_a", "T1")))
	require.NoError(t, repo.SaveSession(ctx, sampleState("sess_b", "T2")))

	sessions, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	mr.Del("bridge:session:sess_a")

	sessions, err = repo.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess_b", sessions[0].SessionID)

	members, err := mr.Members("bridge:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"sess_b"}, members)
}

// TestUpdateLastActivity tests the activity bump and TTL refresh
func TestUpdateLastActivity(t *testing.T) {
	mr, repo := setupTestRepository(t)
	ctx := context.Background()

	state := sampleState("sess_a", "T1")
	state.LastActivity = state.LastActivity.Add(-time.Hour)
	require.NoError(t, repo.SaveSession(ctx, state))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, repo.UpdateLastActivity(ctx, "sess_a"))
	assert.Equal(t, time.Hour, mr.TTL("bridge:session:sess_a"))

	got, err := repo.GetSession(ctx, "sess_a")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.After(state.LastActivity))
}

// TestSetStatus tests status updates and the missing-session error
func TestSetStatus(t *testing.T) {
	_, repo := setupTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, sampleState("sess_a", "T1")))
	require.NoError(t, repo.SetStatus(ctx, "sess_a", StatusClosed))

	got, err := repo.GetSession(ctx, "sess_a")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)

	assert.ErrorIs(t, repo.SetStatus(ctx, "missing", StatusClosed), ErrNotFound)
}

// TestSessionExpires tests the TTL on saved sessions
func TestSessionExpires(t *testing.T) {
	mr, repo := setupTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, sampleState("sess_a", "T1")))
	mr.FastForward(2 * time.Hour)

	_, err := repo.GetSession(ctx, "sess_a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.CurrentSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCookieJars tests save, load, list and delete of named jars
func TestCookieJars(t *testing.T) {
	_, repo := setupTestRepository(t)
	ctx := context.Background()

	cookies := []byte(`[{"name":"sid","value":"abc","domain":"example.com"},{"name":"theme","value":"dark","domain":"example.com"}]`)

	jar, err := repo.SaveCookieJar(ctx, "work", cookies)
	require.NoError(t, err)
	assert.Equal(t, 2, jar.Count)

	_, err = repo.SaveCookieJar(ctx, "personal", []byte(`[]`))
	require.NoError(t, err)

	got, err := repo.GetCookieJar(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, "work", got.Name)
	assert.Equal(t, 2, got.Count)
	assert.JSONEq(t, string(cookies), string(got.Cookies))

	names, err := repo.ListCookieJars(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"personal", "work"}, names)

	require.NoError(t, repo.DeleteCookieJar(ctx, "work"))
	_, err = repo.GetCookieJar(ctx, "work")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.DeleteCookieJar(ctx, "work"), ErrNotFound)

	names, err = repo.ListCookieJars(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"personal"}, names)
}

// TestSaveCookieJarRejectsBadInput tests jar validation
func TestSaveCookieJarRejectsBadInput(t *testing.T) {
	_, repo := setupTestRepository(t)
	ctx := context.Background()

	_, err := repo.SaveCookieJar(ctx, "", []byte(`[]`))
	assert.Error(t, err)

	_, err = repo.SaveCookieJar(ctx, "bad", []byte(`{"name":"sid"}`))
	assert.Error(t, err)
}
