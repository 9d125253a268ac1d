package v1

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/melcloud/interface/http/auth"
	"github.com/shimmeringbee/melcloud/registry"
)

func ConstructRouter(reg *registry.Registry, l logwrap.Logger, ap auth.AuthenticationProvider) http.Handler {
	protected := mux.NewRouter()

	dc := deviceController{
		registry: reg,
		logger:   l,
	}

	protected.HandleFunc("/devices", dc.listDevices).Methods("GET")
	protected.HandleFunc("/devices/{identifier}", dc.getDevice).Methods("GET")
	protected.HandleFunc("/devices/{identifier}/state", dc.getDeviceState).Methods("GET")
	protected.HandleFunc("/devices/{identifier}/set", dc.setDeviceProperties).Methods("POST")
	protected.HandleFunc("/devices/{identifier}/refresh", dc.refreshDevice).Methods("POST")

	apiRoot := mux.NewRouter()
	apiRoot.Handle("/auth/type", authenticationType(ap)).Methods("GET")
	apiRoot.Handle("/auth/check", ap.AuthenticationMiddleware(http.HandlerFunc(authenticationCheck))).Methods("GET")
	apiRoot.PathPrefix("/auth").Handler(ap.AuthenticationRouter())
	apiRoot.PathPrefix("/").Handler(ap.AuthenticationMiddleware(protected))

	return apiRoot
}
