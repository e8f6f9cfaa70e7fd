package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

const defaultGeocodeEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// GeocodingService resolves addresses with the Google Geocoding API.
type GeocodingService struct {
	apiKey     string
	endpoint   string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.Mutex
	cache map[string]models.Coordinates
}

// NewGeocodingService creates a geocoding client. A nil client uses [http.DefaultClient].
func NewGeocodingService(cfg shared.GeocodingConfig, client *http.Client) *GeocodingService {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGeocodeEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &GeocodingService{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		language:   cfg.Language,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
		cache:      make(map[string]models.Coordinates),
	}
}

// Configured reports whether an API key is available.
func (g *GeocodingService) Configured() bool {
	return g.apiKey != ""
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode returns the coordinates of the first result for address.
func (g *GeocodingService) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	if !g.Configured() {
		return models.Coordinates{}, shared.ErrGeocoderNotConfigured
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Coordinates{}, fmt.Errorf("%w: empty address", shared.ErrGeocodeFailed)
	}

	g.mu.Lock()
	if at, ok := g.cache[address]; ok {
		g.mu.Unlock()
		return at, nil
	}
	g.mu.Unlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return models.Coordinates{}, err
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)
	if g.language != "" {
		params.Set("language", g.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: request failed: %v", shared.ErrGeocodeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: failed to read response: %v", shared.ErrGeocodeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, fmt.Errorf("%w: status %d", shared.ErrGeocodeFailed, resp.StatusCode)
	}

	var data geocodeResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: failed to parse response: %v", shared.ErrGeocodeFailed, err)
	}
	if data.Status != "OK" || len(data.Results) == 0 {
		reason := data.Status
		if data.ErrorMessage != "" {
			reason = data.ErrorMessage
		}
		return models.Coordinates{}, fmt.Errorf("%w: %q: %s", shared.ErrGeocodeFailed, address, reason)
	}

	loc := data.Results[0].Geometry.Location
	at := models.Coordinates{Lat: loc.Lat, Lng: loc.Lng}

	g.mu.Lock()
	g.cache[address] = at
	g.mu.Unlock()
	return at, nil
}
