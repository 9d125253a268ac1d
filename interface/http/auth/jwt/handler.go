package jwt

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/melcloud/interface/http/auth"
)

// clock is swapped for a fixed instant in tests.
var clock = time.Now

var _ auth.AuthenticationProvider = (*Authenticator)(nil)

// Authenticator issues and verifies ES256 signed bearer tokens. Tokens are
// provisioned out of band, the authentication router carries no routes of its
// own.
type Authenticator struct {
	SystemIdentifier string
	TTL              time.Duration

	KeyIdentifier string
	PrivateKey    *ecdsa.PrivateKey
}

func (a Authenticator) AuthenticationRouter() http.Handler {
	return mux.NewRouter()
}

// AuthenticationMiddleware verifies the bearer token in the Authentication
// header and injects the token subject as the user identity for downstream
// handlers.
func (a Authenticator) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader, found := r.Header["Authentication"]
		if !found || len(authHeader) != 1 {
			a.challenge(w, http.StatusUnauthorized)
			return
		}

		authParts := strings.SplitN(authHeader[0], " ", 2)
		if authParts[0] != "Bearer" || len(authParts) != 2 {
			a.challenge(w, http.StatusBadRequest, `error="invalid_request"`, `error="Incomplete or incompatible authentication provided."`)
			return
		}

		uid, err := a.Verify(authParts[1])
		if err != nil {
			a.challenge(w, http.StatusUnauthorized, `error="invalid_token"`, `error="Invalid credential."`)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auth.UserIdentityContextKey, uid)))
	})
}

// challenge rejects the request with a WWW-Authenticate header. The header
// must be added before the status line is written, headers added afterwards
// are discarded.
func (a Authenticator) challenge(w http.ResponseWriter, code int, params ...string) {
	fields := append([]string{fmt.Sprintf("Bearer realm=%q", a.SystemIdentifier)}, params...)
	w.Header().Add("WWW-Authenticate", strings.Join(fields, ", "))

	http.Error(w, http.StatusText(code), code)
}

func (a Authenticator) AuthenticationType() any {
	return auth.AuthenticatorType{
		Type: "jwt",
	}
}

// Sign issues a token for the user identity, valid from now until the
// configured TTL elapses.
func (a Authenticator) Sign(uid string) (string, error) {
	issuedAt := clock()

	claims := jwt.StandardClaims{
		Id: uuid.New().String(),

		Issuer:  a.SystemIdentifier,
		Subject: uid,

		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: issuedAt.Add(a.TTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = a.KeyIdentifier

	return token.SignedString(a.PrivateKey)
}

// Verify checks the token signature, validity window and issuer, returning
// the user identity it was signed for.
func (a Authenticator) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.StandardClaims{}, a.verificationKey)
	if err != nil {
		return "", fmt.Errorf("failed to parse and verify signature in token: %w", err)
	}

	claims := parsed.Claims.(*jwt.StandardClaims)
	if !claims.VerifyIssuer(a.SystemIdentifier, true) {
		return "", fmt.Errorf("JWT is not for this system")
	}

	return claims.Subject, nil
}

// verificationKey rejects any algorithm other than the one tokens are signed
// with, a token presented with alg none must never verify.
func (a Authenticator) verificationKey(token *jwt.Token) (any, error) {
	if token.Header["alg"] != "ES256" {
		return nil, errors.New("unacceptable algorithm in JWT")
	}

	if kid, found := token.Header["kid"]; found && kid == a.KeyIdentifier {
		return a.PrivateKey.Public(), nil
	}

	return nil, errors.New("no public key found for token")
}
