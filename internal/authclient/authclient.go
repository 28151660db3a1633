// Package authclient validates a bearer credential against the external
// upstream token-verification service and returns a Principal.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthFailed is returned when the upstream service rejects the token.
// Authentication failure refuses the connection; it is never an ERROR
// frame.
var ErrAuthFailed = errors.New("authclient: token rejected")

// Principal is the minimal identity established at connect time; it lives
// for the connection's lifetime.
type Principal struct {
	UserID int64
}

// Verifier validates bearer credentials against the upstream auth service.
type Verifier struct {
	verifyURL  string
	httpClient *http.Client
}

// New builds a Verifier that POSTs to verifyURL.
func New(verifyURL string) *Verifier {
	return &Verifier{
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid  bool  `json:"valid"`
	UserID int64 `json:"userId"`
}

// Verify calls the upstream service's token-verification endpoint. Returns
// ErrAuthFailed if the token is rejected or the service reports
// valid=false.
func (v *Verifier) Verify(ctx context.Context, token string) (*Principal, error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("authclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("authclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authclient: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("authclient: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: upstream status %d", ErrAuthFailed, resp.StatusCode)
	}

	var out verifyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("authclient: decode response: %w", err)
	}
	if !out.Valid {
		return nil, ErrAuthFailed
	}
	return &Principal{UserID: out.UserID}, nil
}

// ParseClaimsUnverified extracts the subject claims from a JWT without
// verifying its signature. Nothing in the server calls it: a connection is
// authenticated once at connect time through Verify, and the dispatcher
// trusts the connection-scoped Principal thereafter. This is a convenience
// accessor for tokens that happen to be JWTs, not a trust boundary.
func ParseClaimsUnverified(token string) (jwt.MapClaims, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("authclient: parse jwt claims: %w", err)
	}
	return claims, nil
}
