package onedrive

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider supplies the bearer token attached to every Graph request.
// Implementations are responsible for refreshing tokens; the client calls
// AccessToken once per request and never caches the result.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a plain function to a TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

// AccessToken calls f.
func (f TokenProviderFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken is a TokenProvider that always returns the same token.
type StaticToken string

// AccessToken returns the token, or an error when it is empty.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("static token is empty")
	}
	return string(t), nil
}

type oauth2TokenProvider struct {
	source oauth2.TokenSource
}

// NewOAuth2TokenProvider wraps an oauth2.TokenSource. Wrap the source in
// oauth2.ReuseTokenSource if it does not cache tokens itself.
func NewOAuth2TokenProvider(source oauth2.TokenSource) TokenProvider {
	return &oauth2TokenProvider{source: source}
}

func (p *oauth2TokenProvider) AccessToken(context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("token source returned an empty access token")
	}
	return tok.AccessToken, nil
}

// bearerToken asks the provider for a token. Failures are reported as
// authentication errors since no request has been sent yet.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: obtaining access token: %w", ErrAuthentication, err)
	}
	return tok, nil
}
