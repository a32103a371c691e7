package orderapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fekuna/omnipos-ingestion-service/internal/model"
	"github.com/fekuna/omnipos-ingestion-service/pkg/logger"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrUpstreamUnavailable means every (environment, auth scheme) candidate
// failed; the event is recorded as failed and the sender may retry.
var ErrUpstreamUnavailable = errors.New("order detail API unavailable")

type Fetcher interface {
	// Fetch retrieves the full order from the partner API, probing
	// environments and auth schemes until one answers 2xx.
	Fetch(ctx context.Context, orderID, apiKey, environment string) (*OrderDetails, error)
}

type authScheme int

const (
	authAPIKeyHeader authScheme = iota
	authBearer
	authRawAuthorization
)

func (s authScheme) String() string {
	switch s {
	case authAPIKeyHeader:
		return "api-key-header"
	case authBearer:
		return "bearer"
	case authRawAuthorization:
		return "raw-authorization"
	}
	return "unknown"
}

// candidate is one (environment, auth scheme) pair to probe. The ordered
// candidate list keeps the fallback policy auditable instead of burying it
// in nested conditionals.
type candidate struct {
	environment string
	baseURL     string
	scheme      authScheme
}

type Client struct {
	httpClient        *http.Client
	sandboxBaseURL    string
	productionBaseURL string
	logger            logger.ZapLogger
}

func NewClient(sandboxBaseURL, productionBaseURL string, timeout time.Duration, log logger.ZapLogger) *Client {
	return &Client{
		httpClient:        &http.Client{Timeout: timeout},
		sandboxBaseURL:    strings.TrimRight(sandboxBaseURL, "/"),
		productionBaseURL: strings.TrimRight(productionBaseURL, "/"),
		logger:            log,
	}
}

// candidates orders the probe list: configured environment first, the other
// environment as fallback; within an environment the auth schemes in fixed
// order. The platform's auth contract is observed to vary by deployment, so
// probing is a compatibility layer, not a security negotiation.
func (c *Client) candidates(environment string) []candidate {
	environments := []struct {
		name    string
		baseURL string
	}{
		{model.EnvironmentSandbox, c.sandboxBaseURL},
		{model.EnvironmentProduction, c.productionBaseURL},
	}
	if environment == model.EnvironmentProduction {
		environments[0], environments[1] = environments[1], environments[0]
	}

	schemes := []authScheme{authAPIKeyHeader, authBearer, authRawAuthorization}

	out := make([]candidate, 0, len(environments)*len(schemes))
	for _, env := range environments {
		for _, scheme := range schemes {
			out = append(out, candidate{environment: env.name, baseURL: env.baseURL, scheme: scheme})
		}
	}
	return out
}

func (c *Client) Fetch(ctx context.Context, orderID, apiKey, environment string) (*OrderDetails, error) {
	var attempts []string

	for _, cand := range c.candidates(environment) {
		details, err := c.try(ctx, cand, orderID, apiKey)
		if err == nil {
			return details, nil
		}
		var parseErr *parseError
		if errors.As(err, &parseErr) {
			// A 2xx response wins the probe even if its body is broken;
			// surfacing the parse failure beats masking it with more probes.
			return nil, err
		}
		attempts = append(attempts, err.Error())
		c.logger.Debug("order detail candidate failed",
			zap.String("order_id", orderID),
			zap.String("environment", cand.environment),
			zap.String("auth_scheme", cand.scheme.String()),
			zap.Error(err),
		)
	}

	return nil, fmt.Errorf("%w: order %s: %s", ErrUpstreamUnavailable, orderID, strings.Join(attempts, "; "))
}

type parseError struct {
	inner error
}

func (e *parseError) Error() string { return "parsing order details: " + e.inner.Error() }
func (e *parseError) Unwrap() error { return e.inner }

func (c *Client) try(ctx context.Context, cand candidate, orderID, apiKey string) (*OrderDetails, error) {
	url := fmt.Sprintf("%s/api/partner/v1/orders/%s", cand.baseURL, orderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "building request env=%s", cand.environment)
	}
	req.Header.Set("Accept", "application/json")

	switch cand.scheme {
	case authAPIKeyHeader:
		req.Header.Set("X-API-KEY", apiKey)
	case authBearer:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	case authRawAuthorization:
		req.Header.Set("Authorization", apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "env=%s scheme=%s", cand.environment, cand.scheme)
	}
	defer res.Body.Close()

	// A non-2xx never counts as order data, whatever the body says.
	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("env=%s scheme=%s: status %d", cand.environment, cand.scheme, res.StatusCode)
	}

	var details OrderDetails
	if err := json.NewDecoder(res.Body).Decode(&details); err != nil {
		return nil, &parseError{inner: err}
	}
	return &details, nil
}
