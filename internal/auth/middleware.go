package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/postplan/postplan/internal/api"
)

type contextKey string

const userClaimsKey contextKey = "user_claims"

// Middleware rejects requests without a valid bearer token and stores its claims in the context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := v.Verify(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, userClaimsKey, claims)
}

func GetUserClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userClaimsKey).(*Claims)
	return claims
}

// ResolveUserID reconciles a client-supplied user ID with the authenticated subject.
// Without claims the requested ID is trusted as is. An empty request ID takes the
// subject; a different one is an ownership violation.
func ResolveUserID(ctx context.Context, requested string) (string, error) {
	claims := GetUserClaims(ctx)
	if claims == nil {
		return requested, nil
	}
	if requested == "" {
		return claims.Subject, nil
	}
	if requested != claims.Subject {
		return "", api.ErrOwnershipViolation
	}
	return requested, nil
}
