package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// HTTPMiddleware extracts and validates a bearer token, attaching Claims
// to the request context on success. Requests without a usable token are
// rejected with 401.
func (v *JWTValidator) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.claimsFromRequest(r)
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalHTTPMiddleware attaches Claims when a valid bearer token is
// present, but never rejects the request; used on routes (like discovery)
// whose behavior only changes based on authentication, not requires it.
func (v *JWTValidator) OptionalHTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := v.claimsFromRequest(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims))
		}
		next.ServeHTTP(w, r)
	})
}

func (v *JWTValidator) claimsFromRequest(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" || tokenString == authHeader {
		return nil, errMissingBearerToken
	}
	return v.ValidateToken(r.Context(), tokenString)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GetClaims extracts Claims set by HTTPMiddleware/OptionalHTTPMiddleware.
// Returns nil when the request carries none.
func GetClaims(r *http.Request) *Claims {
	claims, _ := r.Context().Value(claimsContextKey).(*Claims)
	return claims
}
