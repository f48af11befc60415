package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimsFor(businessID string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		BusinessID: businessID,
		Role:       "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "zapagenda-auth",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestVerifyHS256(t *testing.T) {
	v, err := NewVerifier("test-secret", "zapagenda-auth")
	require.NoError(t, err)

	token, err := SignHS256(claimsFor("biz-1", time.Hour), "test-secret")
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "biz-1", claims.BusinessID)
	assert.Equal(t, "user-1", claims.Subject)

	_, err = v.Verify(token + "x")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	wrong, err := SignHS256(claimsFor("biz-1", time.Hour), "other-secret")
	require.NoError(t, err)
	_, err = v.Verify(wrong)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignHS256(claimsFor("biz-1", -time.Hour), "test-secret")
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noTenant, err := SignHS256(claimsFor("", time.Hour), "test-secret")
	require.NoError(t, err)
	_, err = v.Verify(noTenant)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireOwner(t *testing.T) {
	v, err := NewVerifier("test-secret", "")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	token, err := SignHS256(claimsFor("biz-9", time.Hour), "test-secret")
	require.NoError(t, err)

	cases := []struct {
		name        string
		trustHeader bool
		header      map[string]string
		wantStatus  int
		wantOwner   string
	}{
		{name: "bearer", header: map[string]string{"Authorization": "Bearer " + token}, wantStatus: http.StatusNoContent, wantOwner: "biz-9"},
		{name: "bad bearer", header: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized},
		{name: "header untrusted", header: map[string]string{OwnerHeader: "biz-2"}, wantStatus: http.StatusUnauthorized},
		{name: "header trusted", trustHeader: true, header: map[string]string{OwnerHeader: "biz-2"}, wantStatus: http.StatusNoContent, wantOwner: "biz-2"},
		{name: "nothing", trustHeader: true, wantStatus: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, val := range tc.header {
				req.Header.Set(k, val)
			}
			rec := httptest.NewRecorder()
			RequireOwner(v, tc.trustHeader, logger)(next).ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantOwner, got)
		})
	}
}
