package fares

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// HTTPQuoter calls the pricing service's quote endpoint.
type HTTPQuoter struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPQuoter(endpoint string) *HTTPQuoter {
	return &HTTPQuoter{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (h *HTTPQuoter) Quote(ctx context.Context, pickup, drop models.Coord) (models.FareBreakdown, error) {
	url := fmt.Sprintf("%s/v1/quote?pickup_lat=%.6f&pickup_lng=%.6f&drop_lat=%.6f&drop_lng=%.6f",
		h.Endpoint, pickup.Lat, pickup.Lng, drop.Lat, drop.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.FareBreakdown{}, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return models.FareBreakdown{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.FareBreakdown{}, fmt.Errorf("pricing service status %d", resp.StatusCode)
	}
	var out models.FareBreakdown
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.FareBreakdown{}, err
	}
	if out.QuoteSource == "" {
		out.QuoteSource = "remote"
	}
	return out, nil
}
