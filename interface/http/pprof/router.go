package pprof

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/melcloud/interface/http/auth"
)

// ConstructRouter exposes the runtime profiling handlers behind the
// interface's authentication provider.
func ConstructRouter(ap auth.AuthenticationProvider) http.Handler {
	pprofRoute := mux.NewRouter()

	pprofRoute.PathPrefix("/cmdline").HandlerFunc(pprof.Cmdline)
	pprofRoute.PathPrefix("/profile").HandlerFunc(pprof.Profile)
	pprofRoute.PathPrefix("/symbol").HandlerFunc(pprof.Symbol)
	pprofRoute.PathPrefix("/trace").HandlerFunc(pprof.Trace)
	pprofRoute.PathPrefix("/").Handler(http.StripPrefix("/", http.HandlerFunc(index)))

	return ap.AuthenticationMiddleware(pprofRoute)
}

// index rewrites requests to the path pprof.Index expects, it serves named
// profiles by matching on the /debug/pprof/ prefix regardless of where the
// router is mounted.
func index(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != "" {
		request.URL.Path = "/debug/pprof/" + request.URL.Path
	}

	pprof.Index(writer, request)
}
