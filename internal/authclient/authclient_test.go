package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsValidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "good-token", req.Token)
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true, "userId": 7})
	}))
	defer srv.Close()

	principal, err := New(srv.URL).Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, int64(7), principal.UserID)
}

func TestVerifyRejectsInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": false})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Verify(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestVerifyTreatsUpstreamErrorStatusAsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Verify(context.Background(), "whatever")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestVerifyPropagatesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused

	_, err := New(srv.URL).Verify(context.Background(), "whatever")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthFailed, "a transport failure is not a token rejection")
}

func TestParseClaimsUnverified(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "nickname": "ada"})
	signed, err := token.SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	claims, err := ParseClaimsUnverified(signed)
	require.NoError(t, err)
	assert.Equal(t, "7", claims["sub"])
	assert.Equal(t, "ada", claims["nickname"])
}

func TestParseClaimsUnverifiedRejectsGarbage(t *testing.T) {
	_, err := ParseClaimsUnverified("not-a-jwt")
	assert.Error(t, err)
}
