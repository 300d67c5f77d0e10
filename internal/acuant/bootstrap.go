package acuant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/example/id-bridge/internal/sdkconfig"
)

// Token is an ACAS bearer token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Subscription is one AssureID subscription visible to the caller.
type Subscription struct {
	ID       string `json:"Id"`
	Name     string `json:"Name"`
	IsActive bool   `json:"IsActive"`
}

// BootstrapError aggregates every problem found while bootstrapping.
type BootstrapError struct {
	Problems     []string
	Unauthorized bool
}

// Error implements the error interface.
func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap failed with %d problem(s)", len(e.Problems))
}

// FetchToken exchanges the credential triple for an ACAS bearer token.
func (c *Client) FetchToken(ctx context.Context, endpoints sdkconfig.Endpoints, creds sdkconfig.Credentials) (*Token, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := c.do(ctx, request{
		service: "acas",
		method:  http.MethodPost,
		url:     join(endpoints.Authentication, "/oauth/token"),
		body:    map[string]string{"grant_type": "client_credentials"},
		basic:   &creds,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &APIError{Service: "acas", Status: http.StatusOK, Description: "empty access token"}
	}
	token := &Token{AccessToken: resp.AccessToken}
	if resp.ExpiresIn > 0 {
		token.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return token, nil
}

// Subscriptions lists the AssureID subscriptions the configured identity can use.
func (c *Client) Subscriptions(ctx context.Context, cfg *sdkconfig.Config) ([]Subscription, error) {
	var subs []Subscription
	err := c.do(ctx, request{
		service: "assureid",
		method:  http.MethodGet,
		url:     join(cfg.Endpoints.DocumentIdentity, "/AssureIDService/subscriptions"),
		cfg:     cfg,
	}, &subs)
	return subs, err
}

// Bootstrap validates endpoints, obtains a bearer token in credential mode (unless
// cfg already carries one) and verifies the identity against AssureID. The returned
// token is the one to publish on the final config.
func (c *Client) Bootstrap(ctx context.Context, cfg sdkconfig.Config) (*Token, error) {
	failure := &BootstrapError{}
	for _, ep := range []struct{ name, url string }{
		{"acas", cfg.Endpoints.Authentication},
		{"assureid", cfg.Endpoints.DocumentIdentity},
		{"frm", cfg.Endpoints.FaceRecognition},
		{"passlive", cfg.Endpoints.Liveness},
	} {
		if !validEndpoint(ep.url) {
			failure.Problems = append(failure.Problems, fmt.Sprintf("invalid %s endpoint %q", ep.name, ep.url))
		}
	}
	if len(failure.Problems) > 0 {
		return nil, failure
	}

	token := &Token{AccessToken: cfg.AccessToken, ExpiresAt: cfg.ExpiresAt}
	if cfg.Mode == sdkconfig.AuthCredentials && (token.AccessToken == "" || cfg.Expired(c.now())) {
		fresh, err := c.FetchToken(ctx, cfg.Endpoints, cfg.Credentials)
		if err != nil {
			return nil, c.bootstrapFailure(failure, err)
		}
		token = fresh
	}

	cfg.AccessToken, cfg.ExpiresAt = token.AccessToken, token.ExpiresAt
	subs, err := c.Subscriptions(ctx, &cfg)
	if err != nil && IsUnauthorized(err) && cfg.Mode == sdkconfig.AuthCredentials && token.AccessToken != "" {
		// A cached token can be revoked before its expiry; retry once with a fresh one.
		c.logger.Info("cached vendor token rejected, refreshing")
		fresh, ferr := c.FetchToken(ctx, cfg.Endpoints, cfg.Credentials)
		if ferr != nil {
			return nil, c.bootstrapFailure(failure, ferr)
		}
		token = fresh
		cfg.AccessToken, cfg.ExpiresAt = token.AccessToken, token.ExpiresAt
		subs, err = c.Subscriptions(ctx, &cfg)
	}
	if err != nil {
		return nil, c.bootstrapFailure(failure, err)
	}

	if cfg.Mode == sdkconfig.AuthCredentials {
		if problem := checkSubscription(subs, cfg.Credentials.Subscription); problem != "" {
			failure.Problems = append(failure.Problems, problem)
			return nil, failure
		}
	}
	return token, nil
}

func (c *Client) bootstrapFailure(failure *BootstrapError, err error) error {
	if apiErr, ok := err.(*APIError); ok {
		failure.Unauthorized = apiErr.Unauthorized()
		failure.Problems = append(failure.Problems, apiErr.Description)
	} else {
		failure.Problems = append(failure.Problems, err.Error())
	}
	c.logger.Warn("vendor bootstrap failed", zap.Strings("problems", failure.Problems))
	return failure
}

func checkSubscription(subs []Subscription, id string) string {
	for _, sub := range subs {
		if sub.ID != id {
			continue
		}
		if !sub.IsActive {
			return fmt.Sprintf("subscription %s is not active", id)
		}
		return ""
	}
	return fmt.Sprintf("subscription %s not found", id)
}

func validEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
