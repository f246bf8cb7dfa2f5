package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// FirebaseTokenVerifier returns a VerifyFunc that validates ID tokens via
// Firebase Auth and normalizes the subject claims.
func FirebaseTokenVerifier(fbAuth *firebaseauth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(map[string]interface{}, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject

		return claims, nil
	}
}
