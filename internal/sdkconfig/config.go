package sdkconfig

import "time"

// AuthMode identifies how the bridge authenticates against the vendor.
type AuthMode string

const (
	AuthCredentials AuthMode = "credentials"
	AuthToken       AuthMode = "token"
)

// Credentials is the long-lived credential triple.
type Credentials struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Subscription string `json:"subscription"`
}

// Config is the vendor configuration produced by a successful initialize.
// It is never mutated after construction; re-initializing publishes a new value.
type Config struct {
	Mode        AuthMode
	Credentials Credentials
	Region      Region
	Endpoints   Endpoints

	// AccessToken is the bearer token sent to vendor services.
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// SubscriptionID returns the subscription configured in credential mode.
func (c *Config) SubscriptionID() string {
	if c == nil {
		return ""
	}
	return c.Credentials.Subscription
}

// Expired reports whether the access token is past its expiry.
func (c *Config) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
