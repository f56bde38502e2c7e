package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
)

// Server wires the dispatch core behind HTTP. Transport concerns stay here;
// every business decision lives in the rides/search/presence packages.
type Server struct {
	rides   *rides.Service
	tracker *presence.Tracker
	wsReg   *dispatch.Registry
	logger  *slog.Logger
	mux     *mux.Router
}

func NewServer(rideSvc *rides.Service, tracker *presence.Tracker, wsReg *dispatch.Registry, logger *slog.Logger) *Server {
	s := &Server{
		rides:   rideSvc,
		tracker: tracker,
		wsReg:   wsReg,
		logger:  logger,
		mux:     mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/nearby", s.handleNearbyDrivers).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/request", s.handleRideRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/claim", s.handleClaim).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/transition", s.handleTransition).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/rating", s.handleRating).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{actor_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
