package credsup

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Refresher exchanges a connection's refresh token for a fresh access
// token.
type Refresher interface {
	Refresh(ctx context.Context, conn Connection) (Connection, error)
}

// RefresherFunc adapts a plain function to Refresher.
type RefresherFunc func(ctx context.Context, conn Connection) (Connection, error)

// Refresh implements Refresher.
func (f RefresherFunc) Refresh(ctx context.Context, conn Connection) (Connection, error) {
	return f(ctx, conn)
}

// OAuth2Refresher builds a Refresher backed by golang.org/x/oauth2's refresh
// token grant against the given endpoint.
func OAuth2Refresher(endpoint oauth2.Endpoint, clientSecret string) Refresher {
	return RefresherFunc(func(ctx context.Context, conn Connection) (Connection, error) {
		if conn.RefreshToken == "" {
			return Connection{}, fmt.Errorf("credsup: connection has no refresh token")
		}
		cfg := &oauth2.Config{
			ClientID:     conn.ClientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
		}
		source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
		token, err := source.Token()
		if err != nil {
			return Connection{}, fmt.Errorf("credsup: refresh token: %w", err)
		}
		next := conn
		next.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			next.RefreshToken = token.RefreshToken
		}
		next.ExpiresAt = token.Expiry
		return next, nil
	})
}
