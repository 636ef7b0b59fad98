package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

const streetViewBaseURL = "https://maps.googleapis.com/maps/api/streetview"

// Street View metadata API status values.
const (
	PanoStatusOK          = "OK"
	PanoStatusZeroResults = "ZERO_RESULTS"
)

// PanoMetadata is the response of the Street View metadata endpoint.
type PanoMetadata struct {
	Status   string `json:"status"`
	PanoID   string `json:"pano_id"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

// StreetViewClient queries the Street View metadata API. Metadata requests
// are free of charge, which is why random sampling goes through this
// endpoint rather than the imagery one.
type StreetViewClient struct {
	*BaseClient
	apiKey string
}

func NewStreetViewClient(apiKey string) *StreetViewClient {
	return NewStreetViewClientAt(streetViewBaseURL, apiKey)
}

// NewStreetViewClientAt targets a non-default base URL, used by tests.
func NewStreetViewClientAt(baseURL, apiKey string) *StreetViewClient {
	return &StreetViewClient{
		BaseClient: NewBaseClient(baseURL),
		apiKey:     apiKey,
	}
}

// Metadata looks up the closest panorama within radiusMeters of the given
// position. A ZERO_RESULTS status is not an error; callers check Status.
func (c *StreetViewClient) Metadata(ctx context.Context, lat, lng float64, radiusMeters int) (*PanoMetadata, error) {
	endpoint := fmt.Sprintf("/metadata?%s", url.Values{
		"location": {fmt.Sprintf("%f,%f", lat, lng)},
		"radius":   {fmt.Sprintf("%d", radiusMeters)},
		"source":   {"outdoor"},
		"key":      {c.apiKey},
	}.Encode())

	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("street view metadata request failed: %w", err)
	}

	var md PanoMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata response: %w", err)
	}
	return &md, nil
}
