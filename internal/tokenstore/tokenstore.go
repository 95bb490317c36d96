// Package tokenstore keeps the OAuth2 token used by the CLI in a JSON file
// and refreshes it through golang.org/x/oauth2. Obtaining the first token
// happens elsewhere; `auth import` copies it in.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// Scopes requested when the token is refreshed.
var Scopes = []string{"offline_access", "Files.ReadWrite"}

// ErrNoToken is returned when the token file does not exist.
var ErrNoToken = errors.New("tokenstore: no token stored")

// Store is a token file guarded by an advisory lock next to it.
type Store struct {
	path string
}

// New returns a Store for path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path is the token file location.
func (s *Store) Path() string { return s.path }

// Load reads the stored token.
func (s *Store) Load() (*oauth2.Token, error) {
	unlock, err := s.lock(false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.read()
}

func (s *Store) read() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("tokenstore: reading %s: %w", s.path, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("tokenstore: decoding %s: %w", s.path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("tokenstore: %s holds neither an access nor a refresh token", s.path)
	}
	return &tok, nil
}

// Save writes tok atomically (temp file plus rename) with 0600 permissions.
func (s *Store) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("tokenstore: nil token")
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenstore: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("tokenstore: creating directory %s: %w", dir, err)
	}

	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenstore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(filePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: setting permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: writing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenstore: closing: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("tokenstore: renaming: %w", err)
	}
	success = true
	return nil
}

// Remove deletes the token file. A missing file is not an error.
func (s *Store) Remove() error {
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenstore: removing %s: %w", s.path, err)
	}
	return nil
}

// Import reads a token JSON produced by another tool and stores it.
func (s *Store) Import(data []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("tokenstore: decoding imported token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("tokenstore: imported token has neither access_token nor refresh_token")
	}
	if err := s.Save(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *Store) lock(exclusive bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerms); err != nil {
		return nil, fmt.Errorf("tokenstore: creating directory: %w", err)
	}
	lock := flock.New(s.path + ".lock")
	var err error
	if exclusive {
		err = lock.Lock()
	} else {
		err = lock.RLock()
	}
	if err != nil {
		return nil, fmt.Errorf("tokenstore: locking %s: %w", s.path, err)
	}
	return func() { _ = lock.Unlock() }, nil
}

// OAuth2Config returns the refresh configuration for a Microsoft identity
// platform app registration.
func OAuth2Config(clientID, tenant string) *oauth2.Config {
	if tenant == "" {
		tenant = "consumers"
	}
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: microsoft.AzureADEndpoint(tenant),
		Scopes:   Scopes,
	}
}

// TokenSource loads the stored token and returns a source that refreshes it
// with cfg and writes every refreshed token back to the store.
func (s *Store) TokenSource(ctx context.Context, cfg *oauth2.Config, logger *slog.Logger) (oauth2.TokenSource, error) {
	tok, err := s.Load()
	if err != nil {
		return nil, err
	}
	base := cfg.TokenSource(ctx, tok)
	return newPersistingTokenSource(base, tok, func(t *oauth2.Token) error {
		return s.Save(t)
	}, logger), nil
}

// persistingTokenSource wraps an oauth2.TokenSource and calls onNewToken
// whenever the access token changes.
type persistingTokenSource struct {
	base       oauth2.TokenSource
	mu         sync.Mutex
	lastToken  *oauth2.Token
	onNewToken func(*oauth2.Token) error
	logger     *slog.Logger
}

func newPersistingTokenSource(base oauth2.TokenSource, initial *oauth2.Token, onNew func(*oauth2.Token) error, logger *slog.Logger) *persistingTokenSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &persistingTokenSource{
		base:       base,
		lastToken:  initial,
		onNewToken: onNew,
		logger:     logger,
	}
}

// Token returns the current token. A failure to persist a refreshed token is
// logged; the token is still valid in memory.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	if s.lastToken == nil || s.lastToken.AccessToken != tok.AccessToken {
		s.lastToken = tok
		s.logger.Debug("access token refreshed", slog.Time("expiry", tok.Expiry))
		if s.onNewToken != nil {
			if err := s.onNewToken(tok); err != nil {
				s.logger.Warn("could not persist refreshed token", slog.String("error", err.Error()))
			}
		}
	}
	return tok, nil
}

// Status summarises a stored token without exposing its values.
type Status struct {
	HasAccessToken  bool
	HasRefreshToken bool
	Expiry          time.Time
}

// Expired reports whether the access token is past its expiry at now.
func (st Status) Expired(now time.Time) bool {
	return !st.Expiry.IsZero() && !st.Expiry.After(now)
}

// Inspect loads the token and reports what it contains.
func (s *Store) Inspect() (Status, error) {
	tok, err := s.Load()
	if err != nil {
		return Status{}, err
	}
	return Status{
		HasAccessToken:  tok.AccessToken != "",
		HasRefreshToken: tok.RefreshToken != "",
		Expiry:          tok.Expiry,
	}, nil
}
