package null

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/melcloud/interface/http/auth"
)

var _ auth.AuthenticationProvider = (*Authenticator)(nil)

type Authenticator struct{}

func (a Authenticator) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auth.UserIdentityContextKey, "NullAuthentication")))
	})
}

func (a Authenticator) AuthenticationRouter() http.Handler {
	return mux.NewRouter()
}

func (a Authenticator) AuthenticationType() any {
	return auth.AuthenticatorType{
		Type: "null",
	}
}
