package geocoding

import (
	"bytes"
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
	defaultValidationURL = "https://addressvalidation.googleapis.com/v1:validateAddress"
	defaultPlacesURL     = "https://places.googleapis.com/v1/places:searchText"
)

// Granularities accepted by address validation. Anything coarser (city,
// route) means the input did not pin down an actual premise.
var acceptedGranularities = map[string]struct{}{
	"PREMISE":           {},
	"PREMISE_PROXIMITY": {},
	"SUB_PREMISE":       {},
}

// PlaceAddress is a validated or searched postal address with coordinates.
type PlaceAddress struct {
	Name             string
	FormattedAddress string
	Latitude         float64
	Longitude        float64
}

// Client is the contract against the external geocoding provider. A nil
// result with a nil error means "no usable match"; errors are transport or
// protocol failures the caller is expected to degrade on.
type Client interface {
	ValidateAddress(ctx context.Context, addressLines, locality string) (*PlaceAddress, error)
	SearchPlace(ctx context.Context, textQuery string, biasLat, biasLon, radiusM float64) (*PlaceAddress, error)
}

var _ Client = (*GoogleClient)(nil)

// GoogleClient talks to the Google Address Validation and Places APIs.
type GoogleClient struct {
	httpClient    *http.Client
	apiKey        string
	regionCode    string
	validationURL string
	placesURL     string
	logger        *slog.Logger
}

func NewGoogleClient(regionCode string, timeout time.Duration, logger *slog.Logger) *GoogleClient {
	return &GoogleClient{
		httpClient:    &http.Client{Timeout: timeout},
		apiKey:        os.Getenv("GOOGLE_MAPS_API_KEY"),
		regionCode:    regionCode,
		validationURL: defaultValidationURL,
		placesURL:     defaultPlacesURL,
		logger:        logger,
	}
}

// WithEndpoints overrides the API endpoints. Used by tests.
func (c *GoogleClient) WithEndpoints(validationURL, placesURL string) *GoogleClient {
	c.validationURL = validationURL
	c.placesURL = placesURL
	return c
}

type validateAddressRequest struct {
	Address struct {
		RegionCode   string   `json:"regionCode"`
		Locality     string   `json:"locality"`
		AddressLines []string `json:"addressLines"`
	} `json:"address"`
}

type validateAddressResponse struct {
	Result struct {
		Verdict struct {
			ValidationGranularity string `json:"validationGranularity"`
		} `json:"verdict"`
		Address struct {
			FormattedAddress string `json:"formattedAddress"`
		} `json:"address"`
		Geocode struct {
			Location struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
		} `json:"geocode"`
	} `json:"result"`
}

// ValidateAddress runs the free-text address through structured validation
// scoped to the locality. Only premise-level (or finer) verdicts count as a
// match.
func (c *GoogleClient) ValidateAddress(ctx context.Context, addressLines, locality string) (*PlaceAddress, error) {
	ctx, span := otel.Tracer("Geocoding").Start(ctx, "ValidateAddress", trace.WithAttributes(
		attribute.String("locality", locality),
	))
	defer span.End()

	var reqBody validateAddressRequest
	reqBody.Address.RegionCode = c.regionCode
	reqBody.Address.Locality = locality
	reqBody.Address.AddressLines = []string{addressLines}

	var resp validateAddressResponse
	if err := c.postJSON(ctx, c.validationURL+"?key="+c.apiKey, nil, reqBody, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Address validation call failed")
		return nil, fmt.Errorf("failed to validate address: %w", err)
	}

	granularity := resp.Result.Verdict.ValidationGranularity
	span.SetAttributes(attribute.String("validation.granularity", granularity))
	if _, ok := acceptedGranularities[granularity]; !ok {
		span.SetStatus(codes.Ok, "Granularity too coarse")
		return nil, nil
	}

	span.SetStatus(codes.Ok, "Address validated")
	return &PlaceAddress{
		FormattedAddress: resp.Result.Address.FormattedAddress,
		Latitude:         resp.Result.Geocode.Location.Latitude,
		Longitude:        resp.Result.Geocode.Location.Longitude,
	}, nil
}

type searchTextRequest struct {
	TextQuery    string `json:"textQuery"`
	LocationBias struct {
		Circle struct {
			Center struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationBias"`
}

type searchTextResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	} `json:"places"`
}

// SearchPlace runs a free-text place search biased toward the given point.
// Only the first result is considered.
func (c *GoogleClient) SearchPlace(ctx context.Context, textQuery string, biasLat, biasLon, radiusM float64) (*PlaceAddress, error) {
	ctx, span := otel.Tracer("Geocoding").Start(ctx, "SearchPlace", trace.WithAttributes(
		attribute.String("query", textQuery),
		attribute.Float64("bias.lat", biasLat),
		attribute.Float64("bias.lon", biasLon),
	))
	defer span.End()

	if textQuery == "" {
		return nil, nil
	}

	var reqBody searchTextRequest
	reqBody.TextQuery = textQuery
	reqBody.LocationBias.Circle.Center.Latitude = biasLat
	reqBody.LocationBias.Circle.Center.Longitude = biasLon
	reqBody.LocationBias.Circle.Radius = radiusM

	headers := map[string]string{
		"X-Goog-Api-Key":   c.apiKey,
		"X-Goog-FieldMask": "places.displayName,places.formattedAddress,places.location",
	}

	var resp searchTextResponse
	if err := c.postJSON(ctx, c.placesURL, headers, reqBody, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Place search call failed")
		return nil, fmt.Errorf("failed to search place: %w", err)
	}

	if len(resp.Places) == 0 {
		span.SetStatus(codes.Ok, "No places found")
		return nil, nil
	}

	place := resp.Places[0]
	span.SetAttributes(attribute.String("place.name", place.DisplayName.Text))
	span.SetStatus(codes.Ok, "Place found")
	return &PlaceAddress{
		Name:             place.DisplayName.Text,
		FormattedAddress: place.FormattedAddress,
		Latitude:         place.Location.Latitude,
		Longitude:        place.Location.Longitude,
	}, nil
}

func (c *GoogleClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
