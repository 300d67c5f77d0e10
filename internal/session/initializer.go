package session

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/id-bridge/internal/acuant"
	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/cache"
	"github.com/example/id-bridge/internal/logging"
	"github.com/example/id-bridge/internal/retry"
	"github.com/example/id-bridge/internal/sdkconfig"
)

// tokenSafetyMargin is subtracted from the vendor expiry before caching a token.
const tokenSafetyMargin = time.Minute

// Options is the initialize request.
type Options struct {
	Credentials *sdkconfig.Credentials `json:"credentials,omitempty"`
	Token       *string                `json:"token,omitempty"`
	Endpoints   *sdkconfig.Endpoints   `json:"endpoints,omitempty"`
	Region      string                 `json:"region,omitempty"`
}

// Bootstrapper performs the one-time vendor bootstrap.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, cfg sdkconfig.Config) (*acuant.Token, error)
}

// Initializer validates initialize requests and publishes the resulting config.
type Initializer struct {
	boot   Bootstrapper
	cache  cache.Cache
	logger *zap.Logger
	policy retry.Policy
	now    func() time.Time

	// mu serializes Initialize calls; current is read under cfgMu.
	mu      sync.Mutex
	cfgMu   sync.RWMutex
	current *sdkconfig.Config
}

// NewInitializer constructs an initializer. cache may be nil.
func NewInitializer(boot Bootstrapper, c cache.Cache, logger *zap.Logger) *Initializer {
	return &Initializer{
		boot:   boot,
		cache:  c,
		logger: logger.Named("session"),
		policy: retry.DefaultPolicy,
		now:    time.Now,
	}
}

// Current returns the published config or NotInitialized.
func (in *Initializer) Current() (*sdkconfig.Config, error) {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	if in.current == nil {
		return nil, bridgeerr.New(bridgeerr.NotInitialized, "SDK has not been initialized")
	}
	return in.current, nil
}

// Initialize validates opts, resolves endpoints, bootstraps the vendor SDK and
// publishes the resulting immutable config.
func (in *Initializer) Initialize(ctx context.Context, requestID string, opts Options) (*sdkconfig.Config, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	opLogger := logging.WithOperation(in.logger, "session.initialize", requestID)

	cfg, err := in.validate(opts)
	if err != nil {
		opLogger.Info("initialize rejected", zap.String("code", string(bridgeerr.CodeOf(err))))
		return nil, err
	}

	cacheKey := ""
	if cfg.Mode == sdkconfig.AuthCredentials {
		cacheKey = tokenCacheKey(cfg)
		if token, ok := in.cachedToken(ctx, requestID, cacheKey); ok {
			cfg.AccessToken, cfg.ExpiresAt = token.AccessToken, token.ExpiresAt
		}
	}

	token, err := in.boot.Bootstrap(ctx, cfg)
	if err != nil {
		var bootErr *acuant.BootstrapError
		if cacheKey != "" && errors.As(err, &bootErr) && bootErr.Unauthorized {
			in.dropToken(ctx, requestID, cacheKey)
		}
		return nil, in.bootstrapError(opLogger, cfg.Mode, err)
	}

	cfg.AccessToken, cfg.ExpiresAt = token.AccessToken, token.ExpiresAt
	cfg.CreatedAt = in.now()
	if cacheKey != "" {
		in.storeToken(ctx, requestID, cacheKey, token)
	}

	published := cfg
	in.cfgMu.Lock()
	in.current = &published
	in.cfgMu.Unlock()

	opLogger.Info("vendor SDK initialized",
		zap.String("mode", string(cfg.Mode)),
		zap.String("region", string(cfg.Region)),
	)
	return &published, nil
}

func (in *Initializer) validate(opts Options) (sdkconfig.Config, error) {
	cfg := sdkconfig.Config{Region: sdkconfig.ParseRegion(opts.Region)}
	cfg.Endpoints = sdkconfig.ResolveEndpoints(opts.Region, opts.Endpoints)

	switch {
	case opts.Token != nil && opts.Credentials != nil:
		return cfg, bridgeerr.New(bridgeerr.InvalidOptions, "Provide either token or credentials, not both")
	case opts.Token != nil:
		token := strings.TrimSpace(*opts.Token)
		if token == "" {
			return cfg, bridgeerr.New(bridgeerr.InvalidToken, "Token is empty")
		}
		if expired(token, in.now()) {
			return cfg, bridgeerr.New(bridgeerr.InvalidToken, "Invalid or expired token")
		}
		cfg.Mode = sdkconfig.AuthToken
		cfg.AccessToken = token
	case opts.Credentials != nil:
		c := *opts.Credentials
		if strings.TrimSpace(c.Username) == "" || strings.TrimSpace(c.Password) == "" || strings.TrimSpace(c.Subscription) == "" {
			return cfg, bridgeerr.New(bridgeerr.InvalidCredentials, "Missing required credentials: username, password, subscription")
		}
		cfg.Mode = sdkconfig.AuthCredentials
		cfg.Credentials = c
	default:
		return cfg, bridgeerr.New(bridgeerr.InvalidOptions, "Must provide either token or credentials")
	}
	return cfg, nil
}

func (in *Initializer) bootstrapError(opLogger *zap.Logger, mode sdkconfig.AuthMode, err error) error {
	var bootErr *acuant.BootstrapError
	if !errors.As(err, &bootErr) {
		opLogger.Error("vendor bootstrap failed", zap.Error(err))
		return bridgeerr.Wrap(bridgeerr.InitFailed, "Initialization failed", err)
	}
	opLogger.Warn("vendor bootstrap rejected", zap.Strings("problems", bootErr.Problems))
	if mode == sdkconfig.AuthToken && bootErr.Unauthorized {
		return bridgeerr.Wrap(bridgeerr.InvalidToken, "Invalid or expired token", err)
	}
	msg := strings.Join(bootErr.Problems, ", ")
	if msg == "" {
		msg = "Unknown error"
	}
	return bridgeerr.Wrap(bridgeerr.InitFailed, msg, err)
}

// expired reports whether token is a JWT whose exp claim has passed. Opaque tokens
// are left for the vendor to judge.
func expired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time)
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func tokenCacheKey(cfg sdkconfig.Config) string {
	sum := sha1.Sum([]byte(cfg.Endpoints.Authentication + "|" + cfg.Credentials.Username + "|" + cfg.Credentials.Subscription))
	return "acas:token:" + hex.EncodeToString(sum[:])
}

func (in *Initializer) cachedToken(ctx context.Context, requestID, key string) (*cachedToken, bool) {
	if in.cache == nil {
		return nil, false
	}
	var raw string
	err := retry.Do(ctx, in.logger, in.policy, "cache.get.token", requestID, func() error {
		v, err := in.cache.Get(ctx, key)
		if errors.Is(err, cache.ErrMiss) {
			return nil
		}
		raw = v
		return err
	})
	if err != nil {
		logging.WithOperation(in.logger, "session.initialize", requestID).Warn("failed to read token cache", zap.Error(err))
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var tok cachedToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil || tok.AccessToken == "" {
		return nil, false
	}
	if !tok.ExpiresAt.IsZero() && in.now().After(tok.ExpiresAt) {
		return nil, false
	}
	return &tok, true
}

func (in *Initializer) storeToken(ctx context.Context, requestID, key string, token *acuant.Token) {
	if in.cache == nil || token.ExpiresAt.IsZero() {
		return
	}
	ttl := token.ExpiresAt.Sub(in.now()) - tokenSafetyMargin
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(cachedToken{AccessToken: token.AccessToken, ExpiresAt: token.ExpiresAt.Add(-tokenSafetyMargin)})
	if err != nil {
		return
	}
	if err := retry.Do(ctx, in.logger, in.policy, "cache.set.token", requestID, func() error {
		return in.cache.Set(ctx, key, string(payload), ttl)
	}); err != nil {
		logging.WithOperation(in.logger, "session.initialize", requestID).Warn("failed to cache vendor token", zap.Error(err))
	}
}

// dropToken forgets a cached token the vendor refused, so the next initialize
// fetches a fresh one.
func (in *Initializer) dropToken(ctx context.Context, requestID, key string) {
	if in.cache == nil {
		return
	}
	if err := retry.Do(ctx, in.logger, in.policy, "cache.delete.token", requestID, func() error {
		return in.cache.Delete(ctx, key)
	}); err != nil {
		logging.WithOperation(in.logger, "session.initialize", requestID).Warn("failed to drop vendor token", zap.Error(err))
	}
}
