package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultWeatherURL  = "https://weather.googleapis.com/v1/forecast/days:lookup"
	defaultTimezoneURL = "https://maps.googleapis.com/maps/api/timezone/json"
)

// LocalContext bundles the time/weather situation around a point, consumed
// by the itinerary collaborator alongside query results.
type LocalContext struct {
	Timezone  string          `json:"timezone"`
	LocalTime string          `json:"local_time"`
	UTCTime   string          `json:"utc_time"`
	Forecast  json.RawMessage `json:"forecast,omitempty"`
}

// ContextService resolves weather and timezone for coordinates. Failures
// degrade to defaults; itinerary generation works without a forecast.
type ContextService struct {
	httpClient  *http.Client
	apiKey      string
	weatherURL  string
	timezoneURL string
	weatherDays int
	fallbackTZ  string
	logger      *slog.Logger
}

func NewContextService(weatherDays int, fallbackTZ string, timeout time.Duration, logger *slog.Logger) *ContextService {
	return &ContextService{
		httpClient:  &http.Client{Timeout: timeout},
		apiKey:      os.Getenv("GOOGLE_MAPS_API_KEY"),
		weatherURL:  defaultWeatherURL,
		timezoneURL: defaultTimezoneURL,
		weatherDays: weatherDays,
		fallbackTZ:  fallbackTZ,
		logger:      logger,
	}
}

// WithEndpoints overrides the API endpoints. Used by tests.
func (s *ContextService) WithEndpoints(weatherURL, timezoneURL string) *ContextService {
	s.weatherURL = weatherURL
	s.timezoneURL = timezoneURL
	return s
}

// GetLocalContext assembles timezone, local/UTC time and the forecast for a
// point.
func (s *ContextService) GetLocalContext(ctx context.Context, lat, lon float64) *LocalContext {
	ctx, span := otel.Tracer("Geocoding").Start(ctx, "GetLocalContext", trace.WithAttributes(
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
	))
	defer span.End()

	tz := s.getTimezone(ctx, lat, lon)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.WarnContext(ctx, "Unknown timezone, using UTC", slog.String("timezone", tz))
		loc = time.UTC
	}

	now := time.Now().UTC()
	result := &LocalContext{
		Timezone:  tz,
		LocalTime: now.In(loc).Format("01/02/2006 03:04 PM MST"),
		UTCTime:   now.Format("2006-01-02 15:04"),
		Forecast:  s.getForecast(ctx, lat, lon),
	}

	span.SetStatus(codes.Ok, "Local context assembled")
	return result
}

func (s *ContextService) getTimezone(ctx context.Context, lat, lon float64) string {
	url := fmt.Sprintf("%s?location=%f,%f&timestamp=%d&key=%s",
		s.timezoneURL, lat, lon, time.Now().Unix(), s.apiKey)

	body, err := s.getJSON(ctx, url)
	if err != nil {
		s.logger.ErrorContext(ctx, "Timezone lookup failed, using fallback", slog.Any("error", err))
		return s.fallbackTZ
	}

	var resp struct {
		Status     string `json:"status"`
		TimeZoneID string `json:"timeZoneId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Status != "OK" {
		s.logger.WarnContext(ctx, "Timezone lookup returned no result, using fallback",
			slog.String("status", resp.Status))
		return s.fallbackTZ
	}
	return resp.TimeZoneID
}

func (s *ContextService) getForecast(ctx context.Context, lat, lon float64) json.RawMessage {
	url := fmt.Sprintf("%s?key=%s&location.latitude=%f&location.longitude=%f&days=%d&unitsSystem=IMPERIAL",
		s.weatherURL, s.apiKey, lat, lon, s.weatherDays)

	body, err := s.getJSON(ctx, url)
	if err != nil {
		s.logger.ErrorContext(ctx, "Weather lookup failed", slog.Any("error", err))
		return nil
	}
	return body
}

func (s *ContextService) getJSON(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
