package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fares"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
	"github.com/example/ride-hailing/internal/search"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logging.Discard()
	grid := geo.NewGrid(9, 0.174)
	locStore := presence.NewMemoryStore(0)
	tracker := presence.NewTracker(grid, locStore, nil)
	wsReg := dispatch.NewRegistry()

	svc := &rides.Service{
		Store:  rides.NewMemoryStore(),
		Search: &search.Service{Grid: grid, Store: locStore, MaxK: 5},
		Fares:  &fares.Provider{},
		Notify: dispatch.NewNotifier(wsReg, nil, logger),
		Logger: logger,
	}
	srv := httptest.NewServer(NewServer(svc, tracker, wsReg, logger))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestRideFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// driver comes online near Connaught Place
	resp, _ := doJSON(t, "POST", srv.URL+"/internal/driver/locations", map[string]any{
		"driver_id": "d1", "lat": 28.6142, "lng": 77.2093,
		"online": true, "active": true, "verified": true,
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("location update status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", srv.URL+"/api/v1/drivers/nearby?lat=28.6139&lng=77.2090&max_k=3", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("nearby status %d", resp.StatusCode)
	}
	if cands, _ := body["candidates"].([]any); len(cands) != 1 {
		t.Fatalf("expected one nearby driver, got %v", body)
	}

	resp, body = doJSON(t, "POST", srv.URL+"/api/v1/rides/request", map[string]any{
		"passenger_id": "p1",
		"pickup":       map[string]float64{"lat": 28.6139, "lng": 77.2090},
		"drop":         map[string]float64{"lat": 28.7041, "lng": 77.1025},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request status %d: %v", resp.StatusCode, body)
	}
	otp, _ := body["otp"].(string)
	ride, _ := body["ride"].(map[string]any)
	rideID, _ := ride["id"].(string)
	if rideID == "" || len(otp) != 4 {
		t.Fatalf("ride id/otp missing: %v", body)
	}

	claimURL := fmt.Sprintf("%s/api/v1/rides/%s/claim", srv.URL, rideID)
	resp, body = doJSON(t, "POST", claimURL, map[string]string{"driver_id": "d1"})
	if resp.StatusCode != http.StatusOK || body["outcome"] != "assigned" {
		t.Fatalf("claim: %d %v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, "POST", claimURL, map[string]string{"driver_id": "d2"})
	if resp.StatusCode != http.StatusConflict || body["outcome"] != "already_taken" {
		t.Fatalf("second claim: %d %v", resp.StatusCode, body)
	}

	transitionURL := fmt.Sprintf("%s/api/v1/rides/%s/transition", srv.URL, rideID)
	for _, target := range []string{"CONFIRMED", "DRIVER_ARRIVED"} {
		resp, body = doJSON(t, "POST", transitionURL, map[string]string{
			"actor_id": "d1", "role": "driver", "target": target,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("transition to %s: %d %v", target, resp.StatusCode, body)
		}
	}

	// wrong OTP is a conflict, not a server error
	wrong := "0000"
	if wrong == otp {
		wrong = "0001"
	}
	resp, body = doJSON(t, "POST", transitionURL, map[string]string{
		"actor_id": "d1", "role": "driver", "target": "RIDE_STARTED", "otp": wrong,
	})
	if resp.StatusCode != http.StatusConflict || body["outcome"] != "otp_mismatch" {
		t.Fatalf("wrong otp: %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, "POST", transitionURL, map[string]string{
		"actor_id": "d1", "role": "driver", "target": "RIDE_STARTED", "otp": otp,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start with correct otp: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, "POST", transitionURL, map[string]string{
		"actor_id": "d1", "role": "driver", "target": "RIDE_COMPLETED",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d", resp.StatusCode)
	}

	// the stored ride never leaks the OTP
	getResp, err := http.Get(srv.URL + "/api/v1/rides/" + rideID)
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(getResp.Body); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(raw.String(), otp) {
		t.Fatal("otp leaked from ride fetch")
	}
	var fetched map[string]any
	if err := json.Unmarshal(raw.Bytes(), &fetched); err != nil {
		t.Fatal(err)
	}
	if fetched["status"] != "RIDE_COMPLETED" {
		t.Fatalf("final status %v", fetched["status"])
	}

	resp, _ = doJSON(t, "POST", fmt.Sprintf("%s/api/v1/rides/%s/rating", srv.URL, rideID), map[string]any{
		"actor_id": "p1", "role": "passenger", "stars": 5, "feedback": "smooth ride",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("rating: %d", resp.StatusCode)
	}
}

func TestNearbyValidation(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, "GET", srv.URL+"/api/v1/drivers/nearby", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUnknownRideIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/rides/nope/claim", map[string]string{"driver_id": "d1"})
	if resp.StatusCode != http.StatusNotFound || body["outcome"] != "not_found" {
		t.Fatalf("claim unknown ride: %d %v", resp.StatusCode, body)
	}
}
