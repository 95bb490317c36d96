package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/internal/config"
	"github.com/tonimelisma/onedrive-personal/internal/logger"
	"github.com/tonimelisma/onedrive-personal/internal/tokenstore"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestApp returns an App with a token store in a temporary directory.
func newTestApp(t *testing.T) (*app.App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.Default()
	cfg.Auth.TokenFile = filepath.Join(t.TempDir(), "token.json")
	return &app.App{
		Config: cfg,
		Logger: logger.Discard(),
		Tokens: tokenstore.New(cfg.Auth.TokenFile),
		Out:    &out,
		Err:    &out,
		Now:    func() time.Time { return testNow },
	}, &out
}
