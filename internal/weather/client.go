// Package weather fetches forecast patterns, historical statistics, and
// elevations from the Open-Meteo HTTP APIs. "Not available" is an
// ordinary outcome here, reported as a nil result without error; only
// transport and decode failures are errors.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
	"github.com/SebastianFrazier26/SafeAscent-sub001/pkg/config"
)

// patternDays is the window length of a WeatherPattern: seven days
// ending at the reference date.
const patternDays = 7

// Source provides weather patterns and historical statistics.
type Source interface {
	FetchCurrentPattern(ctx context.Context, lat, lon float64, date time.Time) (*domain.WeatherPattern, error)
	FetchHistoricalStats(ctx context.Context, lat, lon, elevation float64, season domain.Season) (*domain.WeatherStats, error)
}

// Client implements Source against the Open-Meteo forecast and archive
// APIs.
type Client struct {
	forecastURL string
	archiveURL  string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a weather API client.
func NewClient(cfg config.WeatherConfig, logger *slog.Logger) *Client {
	return &Client{
		forecastURL: cfg.ForecastURL,
		archiveURL:  cfg.ArchiveURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// dailyResponse is the shared shape of forecast and archive responses.
type dailyResponse struct {
	Daily struct {
		Time       []string  `json:"time"`
		TempMax    []float64 `json:"temperature_2m_max"`
		TempMin    []float64 `json:"temperature_2m_min"`
		TempMean   []float64 `json:"temperature_2m_mean"`
		Precip     []float64 `json:"precipitation_sum"`
		WindMax    []float64 `json:"windspeed_10m_max"`
		CloudMean  []float64 `json:"cloudcover_mean"`
		Visibility []float64 `json:"visibility_mean"`
	} `json:"daily"`
}

var dailyParams = "temperature_2m_max,temperature_2m_min,temperature_2m_mean,precipitation_sum,windspeed_10m_max,cloudcover_mean,visibility_mean"

// FetchCurrentPattern returns the 7-day pattern ending at date, mixing
// observed and forecast days as the API provides them. Dates outside
// the provider's forecast horizon return (nil, nil).
func (c *Client) FetchCurrentPattern(ctx context.Context, lat, lon float64, date time.Time) (*domain.WeatherPattern, error) {
	start := date.AddDate(0, 0, -(patternDays - 1))
	params := url.Values{
		"latitude":   {fmt.Sprintf("%.4f", lat)},
		"longitude":  {fmt.Sprintf("%.4f", lon)},
		"daily":      {dailyParams},
		"timezone":   {"UTC"},
		"start_date": {start.Format("2006-01-02")},
		"end_date":   {date.Format("2006-01-02")},
	}

	var resp dailyResponse
	ok, err := c.doRequest(ctx, c.forecastURL+"?"+params.Encode(), &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch pattern: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return buildPattern(resp), nil
}

// FetchHistoricalStats aggregates last year's same-season archive data
// into coarse statistics for a location. Elevation is accepted for key
// compatibility with downstream caches; the archive API resolves
// terrain itself.
func (c *Client) FetchHistoricalStats(ctx context.Context, lat, lon, elevation float64, season domain.Season) (*domain.WeatherStats, error) {
	start, end := lastSeasonWindow(season, time.Now().UTC())
	params := url.Values{
		"latitude":   {fmt.Sprintf("%.4f", lat)},
		"longitude":  {fmt.Sprintf("%.4f", lon)},
		"daily":      {dailyParams},
		"timezone":   {"UTC"},
		"start_date": {start.Format("2006-01-02")},
		"end_date":   {end.Format("2006-01-02")},
	}

	var resp dailyResponse
	ok, err := c.doRequest(ctx, c.archiveURL+"?"+params.Encode(), &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch stats: %w", err)
	}
	if !ok || len(resp.Daily.Time) == 0 {
		return nil, nil
	}

	stats := &domain.WeatherStats{}
	n := float64(len(resp.Daily.Time))
	for i := range resp.Daily.Time {
		stats.AvgTempC += value(resp.Daily.TempMean, i)
		stats.AvgPrecipMM += value(resp.Daily.Precip, i)
		stats.AvgWindKPH += value(resp.Daily.WindMax, i)
		if value(resp.Daily.Precip, i) > 10 {
			stats.StormDays++
		}
	}
	stats.AvgTempC /= n
	stats.AvgPrecipMM /= n
	stats.AvgWindKPH /= n
	return stats, nil
}

// doRequest performs a GET and decodes the JSON body. Returns false
// without error when the provider reports the request out of range.
func (c *Client) doRequest(ctx context.Context, fullURL string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	// The API answers 400 for dates beyond its horizon. That is
	// absence, not failure.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("weather data unavailable", "url", fullURL, "status", resp.StatusCode)
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("weather API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}

func buildPattern(resp dailyResponse) *domain.WeatherPattern {
	n := len(resp.Daily.Time)
	if n == 0 {
		return nil
	}

	p := &domain.WeatherPattern{
		TempC:        make([]float64, n),
		PrecipMM:     make([]float64, n),
		WindKPH:      make([]float64, n),
		VisibilityKM: make([]float64, n),
		CloudPct:     make([]float64, n),
		TempRanges:   make([]domain.TempRange, n),
	}
	for i := 0; i < n; i++ {
		p.TempC[i] = value(resp.Daily.TempMean, i)
		p.PrecipMM[i] = value(resp.Daily.Precip, i)
		p.WindKPH[i] = value(resp.Daily.WindMax, i)
		p.VisibilityKM[i] = value(resp.Daily.Visibility, i) / 1000
		p.CloudPct[i] = value(resp.Daily.CloudMean, i)
		p.TempRanges[i] = domain.TempRange{
			Min: value(resp.Daily.TempMin, i),
			Avg: value(resp.Daily.TempMean, i),
			Max: value(resp.Daily.TempMax, i),
		}
	}
	return p
}

// value guards against providers returning short arrays for some
// channels.
func value(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// lastSeasonWindow returns the full 3-month span of the given season in
// the most recent year where it has completely passed.
func lastSeasonWindow(season domain.Season, now time.Time) (time.Time, time.Time) {
	var startMonth time.Month
	switch season {
	case domain.SeasonWinter:
		startMonth = time.December
	case domain.SeasonSpring:
		startMonth = time.March
	case domain.SeasonSummer:
		startMonth = time.June
	default:
		startMonth = time.September
	}

	year := now.Year() - 1
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	if end.After(now) {
		start = start.AddDate(-1, 0, 0)
		end = end.AddDate(-1, 0, 0)
	}
	return start, end
}
