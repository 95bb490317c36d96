// Package app wires configuration, logging, credentials and the OneDrive
// client together for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-personal/internal/config"
	"github.com/tonimelisma/onedrive-personal/internal/logger"
	"github.com/tonimelisma/onedrive-personal/internal/session"
	"github.com/tonimelisma/onedrive-personal/internal/tokenstore"
	"github.com/tonimelisma/onedrive-personal/internal/ui"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

// ErrNotLoggedIn is returned when neither ONEDRIVE_ACCESS_TOKEN nor a token
// file is available.
var ErrNotLoggedIn = errors.New("not logged in: run 'onedrive-personal auth import <token.json>' or set " + config.EnvAccessToken)

// App holds what a command needs.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	SDK      SDK
	Tokens   *tokenstore.Store
	Sessions *session.Manager

	Out io.Writer
	Err io.Writer
	// Interactive enables progress bars.
	Interactive bool
	Now         func() time.Time
}

// NewApp loads the configuration named by the --config flag and builds the
// client. Credentials are read on the first request, so commands that never
// talk to Graph work without a token.
func NewApp(cmd *cobra.Command) (*App, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	log, err := logger.New(os.Stderr, logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Debug:  debug,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("configuration loaded", slog.String("path", cfg.Path), slog.String("settings", cfg.Summary()))

	sessions, err := session.NewManager()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:      cfg,
		Logger:      log,
		Tokens:      tokenstore.New(cfg.Auth.TokenFile),
		Sessions:    sessions,
		Out:         cmd.OutOrStdout(),
		Err:         cmd.ErrOrStderr(),
		Interactive: ui.IsTerminal(os.Stderr),
		Now:         time.Now,
	}
	a.SDK = NewLiveSDK(a.newClient())
	return a, nil
}

func (a *App) newClient() *onedrive.Client {
	// Downloads stream for as long as they need, so only the wait for
	// response headers is bounded.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = time.Duration(a.Config.Graph.Timeout)

	opts := []onedrive.Option{
		onedrive.WithBaseURL(a.Config.Graph.BaseURL),
		onedrive.WithHTTPClient(&http.Client{Transport: transport}),
		onedrive.WithLogger(a.Logger),
	}
	if rps := a.Config.Graph.RequestsPerSecond; rps > 0 {
		opts = append(opts, onedrive.WithRateLimit(rps, a.Config.Graph.Burst))
	}
	return onedrive.NewClient(a.tokenProvider(), opts...)
}

// tokenProvider prefers ONEDRIVE_ACCESS_TOKEN and otherwise refreshes the
// stored token.
func (a *App) tokenProvider() onedrive.TokenProvider {
	if a.Config.AccessToken != "" {
		return onedrive.StaticToken(a.Config.AccessToken)
	}

	var (
		once     sync.Once
		provider onedrive.TokenProvider
		initErr  error
	)
	return onedrive.TokenProviderFunc(func(ctx context.Context) (string, error) {
		once.Do(func() {
			oauthCfg := tokenstore.OAuth2Config(a.Config.Auth.ClientID, a.Config.Auth.Tenant)
			// The token source outlives the first request's context.
			src, err := a.Tokens.TokenSource(context.WithoutCancel(ctx), oauthCfg, a.Logger)
			if errors.Is(err, tokenstore.ErrNoToken) {
				initErr = ErrNotLoggedIn
				return
			}
			if err != nil {
				initErr = err
				return
			}
			provider = onedrive.NewOAuth2TokenProvider(src)
		})
		if initErr != nil {
			return "", initErr
		}
		return provider.AccessToken(ctx)
	})
}

// UploadOptions turns the upload configuration into SDK options.
func (a *App) UploadOptions() []onedrive.LargeFileOption {
	return []onedrive.LargeFileOption{
		onedrive.WithChunkSize(a.Config.ChunkSizeBytes()),
		onedrive.WithMaxRetries(a.Config.Upload.MaxRetries),
		onedrive.WithChunkTimeout(time.Duration(a.Config.Upload.ChunkTimeout)),
		onedrive.WithHashVerification(a.Config.Upload.VerifyHash),
	}
}
