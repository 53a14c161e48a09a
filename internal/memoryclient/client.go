// Package memoryclient defines the thin interface to the external memory
// collaborator (C6's data side) and an HTTP implementation of it. The wire
// dialect is implementation-defined; the run pipeline depends only on the
// four semantic operations in Client (plus the optional maintenance
// operation Expire).
package memoryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/memexd/memexd/internal/ratelimit"
	"github.com/memexd/memexd/pkg/models"
)

// SearchRequest is the payload for Client.Search.
type SearchRequest struct {
	ProjectID string  `json:"project_id"`
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	MinScore  float64 `json:"min_score,omitempty"`
}

// HitRequest is the payload for Client.RecordHit.
type HitRequest struct {
	ProjectID  string          `json:"project_id"`
	References []models.HitRef `json:"references"`
}

// ValidationRequest is the payload for Client.RecordValidation.
type ValidationRequest struct {
	ProjectID      string         `json:"project_id"`
	QAID           string         `json:"qa_id"`
	Result         string         `json:"result,omitempty"`
	SignalStrength string         `json:"signal_strength,omitempty"`
	StrongSignal   bool           `json:"strong_signal,omitempty"`
	Context        string         `json:"context,omitempty"`
	TS             time.Time      `json:"ts"`
	Payload        map[string]any `json:"payload,omitempty"`
	Source         string         `json:"source,omitempty"`
}

// CandidateRequest is the payload for Client.RecordCandidate.
type CandidateRequest struct {
	ProjectID  string         `json:"project_id"`
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Tags       []string       `json:"tags,omitempty"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Source     string         `json:"source,omitempty"`
	Author     string         `json:"author,omitempty"`
}

// Client is the opaque external collaborator the run pipeline depends on.
// All four core operations are async (context-bound) and the wire format
// behind them is not part of this contract.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]models.SearchMatch, error)
	RecordHit(ctx context.Context, req HitRequest) error
	RecordCandidate(ctx context.Context, req CandidateRequest) error
	RecordValidation(ctx context.Context, req ValidationRequest) error
	// Expire is an optional maintenance operation, not invoked by the run
	// pipeline itself; exposed for operator-triggered cleanup.
	Expire(ctx context.Context, projectID string, batchSize int) (int, error)
}

// Config configures the HTTP client implementation.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	ProjectID string        `yaml:"project_id"`
	Timeout   time.Duration `yaml:"timeout"`
	AuthMode  string        `yaml:"auth_mode"` // "none" | "bearer" | "jwt" | "oauth2"
	APIKey    string        `yaml:"api_key"`
	// JWTSecret signs a short-lived bearer token per request when AuthMode
	// is "jwt", instead of sending a static API key.
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
	OAuth2    *oauth2.Config `yaml:"-"`

	// RateLimit self-throttles outbound requests so a run storm (many
	// concurrent executor tasks each hitting search/record) doesn't
	// overwhelm the memory service. Disabled by default.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// signJWT issues a short-lived HS256 bearer token scoped to the project,
// the way the corpus's internal/auth package signs user tokens.
func signJWT(cfg Config) (string, error) {
	expiry := cfg.JWTExpiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	claims := jwt.RegisteredClaims{
		Subject:   cfg.ProjectID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// HTTPClient implements Client over a JSON/HTTP wire dialect.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Bucket
}

// New constructs an HTTPClient. When cfg.AuthMode is "oauth2" and an
// oauth2.Config/TokenSource is supplied by the caller, requests are signed
// using it; otherwise a bearer token from cfg.APIKey is used when AuthMode
// is "bearer".
func New(cfg Config, tokenSource oauth2.TokenSource) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.AuthMode == "oauth2" && tokenSource != nil {
		hc = oauth2.NewClient(context.Background(), tokenSource)
		hc.Timeout = cfg.Timeout
	}

	var limiter *ratelimit.Bucket
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewBucket(cfg.RateLimit)
	}

	return &HTTPClient{cfg: cfg, httpClient: hc, limiter: limiter}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any, out any) error {
	if c.limiter != nil && !c.limiter.Allow() {
		return fmt.Errorf("memoryclient: %s %s: rate limited, retry after %s", method, path, c.limiter.WaitTime())
	}

	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("memoryclient: encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &body)
	if err != nil {
		return fmt.Errorf("memoryclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch c.cfg.AuthMode {
	case "bearer":
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
	case "jwt":
		if c.cfg.JWTSecret != "" {
			tok, err := signJWT(c.cfg)
			if err != nil {
				return fmt.Errorf("memoryclient: sign jwt: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memoryclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("memoryclient: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Search queries the memory collaborator for matches to req.Query.
func (c *HTTPClient) Search(ctx context.Context, req SearchRequest) ([]models.SearchMatch, error) {
	var out struct {
		Items []models.SearchMatch `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// RecordHit reports which injected items were shown/used in a run.
func (c *HTTPClient) RecordHit(ctx context.Context, req HitRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/hits", req, nil)
}

// RecordCandidate submits a heuristically-extracted Q/A draft.
func (c *HTTPClient) RecordCandidate(ctx context.Context, req CandidateRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/candidates", req, nil)
}

// RecordValidation reports the post-run signal grade for one used item.
func (c *HTTPClient) RecordValidation(ctx context.Context, req ValidationRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/validations", req, nil)
}

// Expire requests a batch of stale items be expired for projectID.
func (c *HTTPClient) Expire(ctx context.Context, projectID string, batchSize int) (int, error) {
	var out struct {
		ExpiredCount int `json:"expired_count"`
	}
	in := struct {
		ProjectID string `json:"project_id"`
		BatchSize int    `json:"batch_size"`
	}{projectID, batchSize}
	if err := c.do(ctx, http.MethodPost, "/v1/expire", in, &out); err != nil {
		return 0, err
	}
	return out.ExpiredCount, nil
}
