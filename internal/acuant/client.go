// Package acuant is the REST client for the identity-verification vendor services:
// ACAS for authentication, AssureID for document processing, FRM for face matching
// and the passive liveness service. Every call takes the immutable *sdkconfig.Config
// produced by initialize; the client itself holds no vendor state.
package acuant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/id-bridge/internal/sdkconfig"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from a vendor service.
type APIError struct {
	Service     string
	Status      int
	Code        string
	Description string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status %d: %s: %s", e.Service, e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Description)
}

// Unauthorized reports whether the vendor rejected the caller's credentials or token.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Temporary marks gateway and throttling responses as retryable.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsUnauthorized reports whether err carries a vendor 401/403.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// Description returns the vendor's error description carried by err, or fallback.
func Description(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Description != "" {
		return apiErr.Description
	}
	return fallback
}

// Client talks to the vendor REST APIs.
type Client struct {
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewClient builds a client. A nil httpClient uses a client with a 30s timeout.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, logger: logger.Named("acuant"), now: time.Now}
}

type request struct {
	service string
	method  string
	url     string
	body    any
	raw     []byte
	cfg     *sdkconfig.Config
	basic   *sdkconfig.Credentials
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	contentType := ""
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
		contentType = "application/octet-stream"
	case r.body != nil:
		payload, err := json.Marshal(r.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	switch {
	case r.basic != nil:
		req.SetBasicAuth(r.basic.Username, r.basic.Password)
	case r.cfg != nil && r.cfg.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+r.cfg.AccessToken)
	case r.cfg != nil && r.cfg.Mode == sdkconfig.AuthCredentials:
		req.SetBasicAuth(r.cfg.Credentials.Username, r.cfg.Credentials.Password)
	}

	started := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("vendor call failed", zap.String("service", r.service), zap.String("method", r.method), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("vendor call",
		zap.String("service", r.service),
		zap.String("method", r.method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", c.now().Sub(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(r.service, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.service, err)
	}
	return nil
}

func decodeAPIError(service string, resp *http.Response) error {
	apiErr := &APIError{Service: service, Status: resp.StatusCode}
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		ErrorCode        string `json:"ErrorCode"`
		Error            string `json:"Error"`
		Message          string `json:"Message"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(payload, &body) == nil {
		apiErr.Code = body.ErrorCode
		for _, candidate := range []string{body.Error, body.Message, body.ErrorDescription} {
			if candidate != "" {
				apiErr.Description = candidate
				break
			}
		}
	}
	if apiErr.Description == "" {
		apiErr.Description = strings.TrimSpace(string(payload))
	}
	if apiErr.Description == "" {
		apiErr.Description = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
