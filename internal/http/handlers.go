package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
)

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var loc presence.DriverLocation
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if loc.DriverID == "" {
		http.Error(w, "driver_id required", http.StatusBadRequest)
		return
	}
	if _, err := s.tracker.Update(r.Context(), loc); err != nil {
		http.Error(w, "location store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		http.Error(w, "lat and lng required", http.StatusBadRequest)
		return
	}
	maxK, _ := strconv.Atoi(q.Get("max_k"))

	cands, err := s.rides.FindCandidates(r.Context(), lat, lng, maxK)
	if err != nil {
		http.Error(w, "search unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": cands})
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	var in rides.RequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.PassengerID == "" {
		http.Error(w, "passenger_id required", http.StatusBadRequest)
		return
	}
	ride, cands, err := s.rides.Request(r.Context(), in)
	if err != nil {
		if ride == nil {
			http.Error(w, "ride request failed", http.StatusServiceUnavailable)
			return
		}
		// ride created but the candidate search failed; passenger can retry
		s.logger.Warn("candidate search failed on request", "ride_id", ride.ID, "error", err)
	}
	// the OTP goes to the passenger here and to nobody else
	writeJSON(w, http.StatusCreated, map[string]any{
		"ride":       ride,
		"otp":        ride.OTP,
		"candidates": cands,
	})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.rides.Store.Get(r.Context(), mux.Vars(r)["ride_id"])
	if errors.Is(err, rides.ErrRideNotFound) {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "ride store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == "" {
		http.Error(w, "driver_id required", http.StatusBadRequest)
		return
	}

	res, err := s.rides.Claim(r.Context(), mux.Vars(r)["ride_id"], body.DriverID)
	if err != nil {
		http.Error(w, "ride store unavailable", http.StatusServiceUnavailable)
		return
	}
	switch res.Outcome {
	case rides.ClaimAssigned:
		writeJSON(w, http.StatusOK, map[string]any{"outcome": res.Outcome.String(), "ride": res.Ride})
	case rides.ClaimNotFound:
		writeJSON(w, http.StatusNotFound, map[string]any{"outcome": res.Outcome.String()})
	default:
		// losing the race is a normal outcome, reported, not thrown
		writeJSON(w, http.StatusConflict, map[string]any{"outcome": res.Outcome.String()})
	}
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var in rides.TransitionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.ActorID == "" || !in.Role.Valid() {
		http.Error(w, "actor_id and role required", http.StatusBadRequest)
		return
	}

	res, err := s.rides.Transition(r.Context(), mux.Vars(r)["ride_id"], in)
	if err != nil {
		http.Error(w, "ride store unavailable", http.StatusServiceUnavailable)
		return
	}

	status := http.StatusOK
	switch res.Outcome {
	case rides.TransitionApplied:
	case rides.TransitionNotFound:
		status = http.StatusNotFound
	case rides.TransitionInvalidTarget:
		status = http.StatusBadRequest
	case rides.TransitionWrongRole, rides.TransitionWrongActor:
		status = http.StatusForbidden
	default: // OTP mismatch, precondition failure
		status = http.StatusConflict
	}
	payload := map[string]any{"outcome": res.Outcome.String()}
	if res.Ride != nil {
		payload["ride"] = res.Ride
	}
	writeJSON(w, status, payload)
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActorID  string           `json:"actor_id"`
		Role     models.ActorRole `json:"role"`
		Stars    int              `json:"stars"`
		Feedback string           `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := s.rides.Rate(r.Context(), mux.Vars(r)["ride_id"], body.ActorID, body.Role,
		rides.Rating{Stars: body.Stars, Feedback: body.Feedback})
	if errors.Is(err, rides.ErrRideNotFound) {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["actor_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.wsReg.Add(id, conn)
	conn.SetCloseHandler(func(code int, text string) error {
		s.wsReg.Remove(id)
		return nil
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
