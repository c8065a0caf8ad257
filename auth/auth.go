// Package auth builds authenticated HTTP clients for the upstream data APIs.
package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every upstream request.
const DefaultTimeout = 10 * time.Second

// TokenSource returns the token source described by conf, or nil when no
// credential is configured.
func TokenSource(ctx context.Context, conf Conf) oauth2.TokenSource {
	switch {
	case conf.Token != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conf.Token, TokenType: "Bearer"})
	case conf.ClientID != "":
		cc := conf.toOauth2Config()
		return cc.TokenSource(ctx)
	default:
		return nil
	}
}

// NewHTTPClient returns a client that sets the Authorization header on every
// request. Without credentials it is a plain client with the same timeout.
func NewHTTPClient(ctx context.Context, conf Conf) *http.Client {
	ts := TokenSource(ctx, conf)
	if ts == nil {
		return &http.Client{Timeout: DefaultTimeout}
	}
	c := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
	c.Timeout = DefaultTimeout
	return c
}
