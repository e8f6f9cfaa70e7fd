package extract

import (
	"context"
	"fmt"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// geolocate resolves location and overrides the session's reported position.
//
// Failures are pipeline errors, never sentinels.
func geolocate(ctx context.Context, s Session, g Geocoder, location string, accuracy float64, status StatusFunc) (models.Coordinates, error) {
	if g == nil {
		return models.Coordinates{}, fmt.Errorf("%w: cannot resolve %q", shared.ErrGeocoderNotConfigured, location)
	}
	emit(status, "Resolving coordinates for %q...", location)
	at, err := g.Geocode(ctx, location)
	if err != nil {
		return models.Coordinates{}, err
	}
	emit(status, "Resolved coordinates (%.4f, %.4f)", at.Lat, at.Lng)

	emit(status, "Setting browser geolocation...")
	if err := s.SetGeolocation(ctx, at, accuracy); err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to set geolocation: %w", err)
	}
	return at, nil
}
