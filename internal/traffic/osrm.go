package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

// Estimator produces a live travel-time estimate in minutes between two
// points. Implementations are opaque external collaborators.
type Estimator interface {
	TravelMinutes(ctx context.Context, origin, destination string) (int, error)
}

// OSRMClient estimates travel time through an OSRM routing server.
type OSRMClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOSRMClient creates an OSRM-backed estimator.
func NewOSRMClient(baseURL string, timeout time.Duration, logger *slog.Logger) *OSRMClient {
	if baseURL == "" {
		baseURL = "http://router.project-osrm.org"
	}
	return &OSRMClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// TravelMinutes routes origin -> destination. Coordinates are "lat,lng"
// strings; OSRM wants them as "lng,lat".
func (c *OSRMClient) TravelMinutes(ctx context.Context, origin, destination string) (int, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%s;%s?overview=false",
		c.baseURL, flipCoords(origin), flipCoords(destination))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build OSRM request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("OSRM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("OSRM returned status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode OSRM response: %w", err)
	}

	if body.Code != "Ok" || len(body.Routes) == 0 {
		return 0, fmt.Errorf("OSRM returned no route (code %q)", body.Code)
	}

	minutes := int(math.Round(body.Routes[0].Duration / 60))
	c.logger.Debug("OSRM estimate",
		slog.String("origin", origin),
		slog.String("destination", destination),
		slog.Int("travel_minutes", minutes),
	)

	return minutes, nil
}

// flipCoords converts "lat,lng" to OSRM's "lng,lat". Anything that is not a
// coordinate pair passes through untouched.
func flipCoords(coords string) string {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return coords
	}
	return strings.TrimSpace(parts[1]) + "," + strings.TrimSpace(parts[0])
}
