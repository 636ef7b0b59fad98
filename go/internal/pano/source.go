package pano

import (
	"context"
	"errors"

	"github.com/panoquest/panoquest/go/internal/geomap"
	"github.com/panoquest/panoquest/go/internal/models"
)

// ErrNoPanoramaFound means the map constraints could not be satisfied within
// the source's internal attempt budget. The round coordinator decides whether
// to retry.
var ErrNoPanoramaFound = errors.New("no panorama found")

// Panorama is one valid random panorama: an opaque imagery reference and the
// position it was captured at.
type Panorama struct {
	ID       string
	Position models.LatLng
}

// Source returns one random valid panorama within the given map constraints.
type Source interface {
	FetchRandomPanorama(ctx context.Context, m geomap.Map) (*Panorama, error)
}
