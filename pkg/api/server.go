package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/hokm/pkg/api/handlers"
	"github.com/cbodonnell/hokm/pkg/api/middleware"
	authproviders "github.com/cbodonnell/hokm/pkg/auth/providers"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AllowOrigin  string
	AuthProvider authproviders.AuthProvider
	Rooms        handlers.Rooms
	Stats        handlers.BandwidthStatistics
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// WebSocket serves /ws when set.
	WebSocket http.Handler
}

// NewAPIServer creates a new http.Server for the room API, metrics and the
// websocket endpoint.
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// NewRouter builds the route table served by the APIServer.
func NewRouter(opts NewAPIServerOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger)

	r.HandleFunc("/health", handlers.HandleHealth()).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket)
	}

	api := r.NewRoute().Subrouter()
	api.Use(middleware.NewCORSMiddleware(opts.AllowOrigin), middleware.NewAuthMiddleware(opts.AuthProvider))
	if opts.Stats != nil {
		api.HandleFunc("/stats/bandwidth", handlers.HandleBandwidthStatistics(opts.Stats)).Methods(http.MethodGet, http.MethodOptions)
	}
	api.HandleFunc("/rooms/{room}", handlers.HandleCreateRoom(opts.Rooms)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/rooms/{room}", handlers.HandleDeleteRoom(opts.Rooms)).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/rooms/{room}/deal", handlers.HandleDeal(opts.Rooms)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/rooms/{room}/rounds", handlers.HandleNewRound(opts.Rooms)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/rooms/{room}/players/{player}/state", handlers.HandleGetPlayerState(opts.Rooms)).Methods(http.MethodGet, http.MethodOptions)
	return r
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
