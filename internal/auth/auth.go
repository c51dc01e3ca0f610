// Package auth signs upstream requests with OAuth 1.0a (HMAC-SHA1).
//
// Signing itself is delegated to github.com/dghubble/oauth1; this package only
// holds the credentials and hands out signing HTTP clients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dghubble/oauth1"

	"github.com/rickgao/tweetstream/internal/config"
)

// ErrMissingCredentials is returned by Validate when any field is empty.
var ErrMissingCredentials = errors.New("missing credentials")

// Credentials holds the consumer and access token pairs for signing requests.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// FromConfig converts the credentials config section.
func FromConfig(cfg config.CredentialsConfig) Credentials {
	return Credentials{
		ConsumerKey:       cfg.ConsumerKey,
		ConsumerSecret:    cfg.ConsumerSecret,
		AccessToken:       cfg.AccessToken,
		AccessTokenSecret: cfg.AccessTokenSecret,
	}
}

// Validate checks that all four values are present.
func (c Credentials) Validate() error {
	switch {
	case c.ConsumerKey == "":
		return fmt.Errorf("%w: consumer key", ErrMissingCredentials)
	case c.ConsumerSecret == "":
		return fmt.Errorf("%w: consumer secret", ErrMissingCredentials)
	case c.AccessToken == "":
		return fmt.Errorf("%w: access token", ErrMissingCredentials)
	case c.AccessTokenSecret == "":
		return fmt.Errorf("%w: access token secret", ErrMissingCredentials)
	}
	return nil
}

// Client returns an HTTP client that signs every request. The base client's
// transport and timeout are reused; a nil base uses http.DefaultTransport and
// no timeout, which is what long-lived streams need.
func (c Credentials) Client(ctx context.Context, base *http.Client) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, base)
	}

	cfg := oauth1.NewConfig(c.ConsumerKey, c.ConsumerSecret)
	hc := cfg.Client(ctx, oauth1.NewToken(c.AccessToken, c.AccessTokenSecret))
	if base != nil {
		hc.Timeout = base.Timeout
	}
	return hc
}
