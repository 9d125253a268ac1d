package auth

import "net/http"

type contextKey string

const UserIdentityContextKey contextKey = "AuthenticatedUserIdentity"

type AuthenticationProvider interface {
	AuthenticationMiddleware(next http.Handler) http.Handler
	AuthenticationRouter() http.Handler
	AuthenticationType() any
}

type AuthenticatorType struct {
	Type string `json:"type"`
}
