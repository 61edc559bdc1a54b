package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rowanhall/tutorbill/internal/handler"
)

// RequireParent validates the bearer token and populates the parent id in the
// request context. Token issuance belongs to the platform's auth service;
// this service only verifies the shared-secret signature and reads the
// subject claim.
func RequireParent(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parentID, err := parentIDFromRequest(r, secret)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := handler.WithParentID(r.Context(), parentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parentIDFromRequest(r *http.Request, secret []byte) (string, error) {
	auth := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || tokenStr == "" {
		return "", fmt.Errorf("missing bearer token")
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return sub, nil
}
