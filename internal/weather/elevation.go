package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBatchLocations is the provider's cap on coordinates per elevation
// request; larger batches are chunked.
const maxBatchLocations = 100

// ElevationSource resolves terrain elevation for coordinates.
type ElevationSource interface {
	FetchElevation(ctx context.Context, lat, lon float64) (*float64, error)
	FetchElevations(ctx context.Context, coords [][2]float64) ([]*float64, error)
}

// ElevationClient implements ElevationSource against the Open-Meteo
// elevation API.
type ElevationClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewElevationClient creates an elevation API client.
func NewElevationClient(baseURL string, timeout time.Duration, logger *slog.Logger) *ElevationClient {
	return &ElevationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type elevationResponse struct {
	Elevation []float64 `json:"elevation"`
}

// FetchElevation resolves a single coordinate. Returns (nil, nil) when
// the provider has no data for the point.
func (c *ElevationClient) FetchElevation(ctx context.Context, lat, lon float64) (*float64, error) {
	results, err := c.FetchElevations(ctx, [][2]float64{{lat, lon}})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// FetchElevations resolves many coordinates, chunked to the provider's
// batch cap. The result slice is index-aligned with coords; entries the
// provider could not resolve are nil.
func (c *ElevationClient) FetchElevations(ctx context.Context, coords [][2]float64) ([]*float64, error) {
	results := make([]*float64, len(coords))

	for start := 0; start < len(coords); start += maxBatchLocations {
		end := start + maxBatchLocations
		if end > len(coords) {
			end = len(coords)
		}
		if err := c.fetchChunk(ctx, coords[start:end], results[start:end]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (c *ElevationClient) fetchChunk(ctx context.Context, coords [][2]float64, out []*float64) error {
	lats := make([]string, len(coords))
	lons := make([]string, len(coords))
	for i, coord := range coords {
		lats[i] = fmt.Sprintf("%.4f", coord[0])
		lons[i] = fmt.Sprintf("%.4f", coord[1])
	}
	params := url.Values{
		"latitude":  {strings.Join(lats, ",")},
		"longitude": {strings.Join(lons, ",")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("elevation API error: status %d", resp.StatusCode)
	}

	var decoded elevationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	for i := range out {
		if i < len(decoded.Elevation) {
			e := decoded.Elevation[i]
			out[i] = &e
		}
	}
	return nil
}
