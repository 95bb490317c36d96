package tokenstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "nested", "token.json"))
}

func TestLoadMissing(t *testing.T) {
	_, err := newStore(t).Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestSaveLoad(t *testing.T) {
	s := newStore(t)
	expiry := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", Expiry: expiry}

	require.NoError(t, s.Save(tok))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "access", loaded.AccessToken)
	assert.Equal(t, "refresh", loaded.RefreshToken)
	assert.True(t, expiry.Equal(loaded.Expiry))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files are cleaned up")
	}
}

func TestLoadRejectsEmptyToken(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"token_type":"Bearer"}`), 0o600))

	_, err := s.Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoToken))
}

func TestImport(t *testing.T) {
	s := newStore(t)

	tok, err := s.Import([]byte(`{"access_token":"a","refresh_token":"r","expiry":"2030-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "r", tok.RefreshToken)

	status, err := s.Inspect()
	require.NoError(t, err)
	assert.True(t, status.HasAccessToken)
	assert.True(t, status.HasRefreshToken)
	assert.False(t, status.Expired(time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, status.Expired(time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = s.Import([]byte(`{}`))
	assert.Error(t, err)
	_, err = s.Import([]byte(`not json`))
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(&oauth2.Token{AccessToken: "a"}))
	require.NoError(t, s.Remove())

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoToken)
	assert.NoError(t, s.Remove(), "removing twice is fine")
}

func TestOAuth2Config(t *testing.T) {
	cfg := OAuth2Config("client", "")
	assert.Equal(t, "client", cfg.ClientID)
	assert.Contains(t, cfg.Endpoint.TokenURL, "/consumers/")
	assert.Contains(t, cfg.Scopes, "offline_access")
}

type mockTokenSource struct {
	mu    sync.Mutex
	token *oauth2.Token
	err   error
	calls int
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.token, m.err
}

func (m *mockTokenSource) set(tok *oauth2.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = tok
}

func TestPersistingTokenSource(t *testing.T) {
	initial := &oauth2.Token{AccessToken: "initial"}
	refreshed := &oauth2.Token{AccessToken: "refreshed"}

	var saved []*oauth2.Token
	base := &mockTokenSource{token: initial}
	src := newPersistingTokenSource(base, initial, func(tok *oauth2.Token) error {
		saved = append(saved, tok)
		return nil
	}, nil)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "initial", tok.AccessToken)
	assert.Empty(t, saved, "an unchanged token is not persisted")

	base.set(refreshed)
	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tok.AccessToken)
	require.Len(t, saved, 1)
	assert.Same(t, refreshed, saved[0])

	_, err = src.Token()
	require.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.Equal(t, 3, base.calls)
}

func TestPersistingTokenSourceErrors(t *testing.T) {
	base := &mockTokenSource{err: errors.New("invalid_grant")}
	src := newPersistingTokenSource(base, nil, nil, nil)
	_, err := src.Token()
	assert.EqualError(t, err, "invalid_grant")

	// A failing save keeps the token usable.
	base = &mockTokenSource{token: &oauth2.Token{AccessToken: "new"}}
	src = newPersistingTokenSource(base, nil, func(*oauth2.Token) error { return errors.New("disk full") }, nil)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
}

func TestStoreTokenSourcePersistsRefresh(t *testing.T) {
	s := newStore(t)
	valid := &oauth2.Token{AccessToken: "still-valid", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, s.Save(valid))

	src, err := s.TokenSource(t.Context(), OAuth2Config("client", "consumers"), nil)
	require.NoError(t, err)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "still-valid", tok.AccessToken, "a valid token is used without refreshing")

	_, err = newStore(t).TokenSource(t.Context(), OAuth2Config("client", ""), nil)
	assert.ErrorIs(t, err, ErrNoToken)
}
