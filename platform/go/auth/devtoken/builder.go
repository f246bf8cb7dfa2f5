package devtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Params captures the claims required to mint an HS256 dev JWT for local and
// CI environments. No environment variables are read so the builder stays
// deterministic for tooling.
type Params struct {
	UserID        string        // sub/user_id claim (required)
	Email         string        // email claim (required)
	Name          string        // display name (optional)
	EmailVerified bool          // email_verified claim
	Role          string        // platform role; defaults to "user"
	TenantID      string        // optional tenant_id claim
	ExpiresIn     time.Duration // relative expiry; default 1h if zero
	Issuer        string        // optional override; defaults to "calmhaven-dev"
}

// BuildDevToken returns an HS256-signed JWT whose payload mirrors the hosted
// auth provider's claim shape, so it flows through the existing middleware
// when AUTH_PROVIDER=dev.
func BuildDevToken(p Params, secret string, now time.Time) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("secret is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := strings.TrimSpace(p.Issuer)
	if issuer == "" {
		issuer = "calmhaven-dev"
	}

	role := strings.TrimSpace(p.Role)
	if role == "" {
		role = "user"
	}

	claims := jwt.MapClaims{
		"iss":            issuer,
		"sub":            p.UserID,
		"user_id":        p.UserID,
		"email":          p.Email,
		"email_verified": p.EmailVerified,
		"role":           role,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		claims["name"] = name
	}
	if tenant := strings.TrimSpace(p.TenantID); tenant != "" {
		claims["tenant_id"] = tenant
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
