// Package services holds clients for the HTTP APIs the pipelines depend on.
//
// # Geocoding
//
// [GeocodingService] resolves a place name such as "渋谷駅" to coordinates through the Google Geocoding API. Map pack
// searches always need it; web searches need it only when the task names a location.
//
// Requests are throttled with a token bucket and successful lookups are cached for the life of the client, so a run
// that revisits the same location geocodes it once.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrGeocoderNotConfigured] : no API key
//   - [shared.ErrGeocodeFailed] : transport failure, non-200 response, or a status other than OK
package services
