package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, found := ExtractBearerToken(r)
	require.False(t, found)

	r.Header.Set("Authorization", "bearer abc.def.ghi")
	token, found := ExtractBearerToken(r)
	require.True(t, found)
	require.Equal(t, "abc.def.ghi", token)

	r.Header.Set("Authorization", "Basic whatever")
	_, found = ExtractBearerToken(r)
	require.False(t, found)
}

func TestDefaultCredentialExtractor(t *testing.T) {
	t.Parallel()

	_, err := DefaultCredentialExtractor(nil)
	require.Error(t, err)

	_, err = DefaultCredentialExtractor(map[string]interface{}{"email": "x@example.com"})
	require.Error(t, err)

	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"sub":            "user-1",
		"email":          "x@example.com",
		"email_verified": true,
		"role":           "coach",
		"tenant_id":      "tenant-1",
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", creds.ID)
	require.Equal(t, "coach", creds.Role)
	require.True(t, creds.EmailVerified)
	require.NotNil(t, creds.TenantID)
	require.Equal(t, "tenant-1", *creds.TenantID)

	// Role defaults to user when the claim is absent.
	creds, err = DefaultCredentialExtractor(map[string]interface{}{"sub": "user-2"})
	require.NoError(t, err)
	require.Equal(t, "user", creds.Role)
}

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()

	verify := func(_ context.Context, token string) (map[string]interface{}, error) {
		if token != "good" {
			return nil, errors.New("bad token")
		}
		return map[string]interface{}{"sub": "user-1", "role": "user"}, nil
	}

	var seen *UserCredentials
	handler := JWT(verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No token: passes through unauthenticated.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, seen)

	// Invalid token: rejected.
	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer nope")
	handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token: credentials land on the context.
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer good")
	handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.ID)
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	protected := RequireRole("tenant_admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	withCreds := func(role string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(r.Context(), ctxUserCredentials, &UserCredentials{ID: "u", Role: role})
		return r.WithContext(ctx)
	}

	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, withCreds("user"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, withCreds("tenant_admin"))
	require.Equal(t, http.StatusOK, rec.Code)

	// super_admin passes every role gate.
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, withCreds("super_admin"))
	require.Equal(t, http.StatusOK, rec.Code)
}
