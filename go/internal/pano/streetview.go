package pano

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/clients"
	"github.com/panoquest/panoquest/go/internal/geomap"
	"github.com/panoquest/panoquest/go/internal/models"
)

const (
	defaultSampleAttempts = 20
	defaultSearchRadiusM  = 100_000
)

// StreetViewSource samples random positions inside the map bounds and asks
// the Street View metadata API for the nearest panorama, until one is found
// or the attempt budget runs out.
type StreetViewSource struct {
	client   *clients.StreetViewClient
	attempts int
	radiusM  int

	mu  sync.Mutex
	rnd *rand.Rand
}

type SourceOption func(*StreetViewSource)

// WithSampleAttempts overrides the internal per-fetch attempt budget.
func WithSampleAttempts(n int) SourceOption {
	return func(s *StreetViewSource) { s.attempts = n }
}

// WithSearchRadius overrides the metadata lookup radius in meters.
func WithSearchRadius(meters int) SourceOption {
	return func(s *StreetViewSource) { s.radiusM = meters }
}

// WithRand pins the random source, used by tests.
func WithRand(rnd *rand.Rand) SourceOption {
	return func(s *StreetViewSource) { s.rnd = rnd }
}

func NewStreetViewSource(client *clients.StreetViewClient, opts ...SourceOption) *StreetViewSource {
	s := &StreetViewSource{
		client:   client,
		attempts: defaultSampleAttempts,
		radiusM:  defaultSearchRadiusM,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StreetViewSource) FetchRandomPanorama(ctx context.Context, m geomap.Map) (*Panorama, error) {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pt := s.randomPoint(m)
		md, err := s.client.Metadata(ctx, pt.Lat, pt.Lng, s.radiusM)
		if err != nil {
			return nil, fmt.Errorf("fetch panorama metadata: %w", err)
		}

		switch md.Status {
		case clients.PanoStatusOK:
			return &Panorama{
				ID:       md.PanoID,
				Position: models.LatLng{Lat: md.Location.Lat, Lng: md.Location.Lng},
			}, nil
		case clients.PanoStatusZeroResults:
			log.Debug().
				Str("map", m.ID).
				Int("attempt", attempt).
				Float64("lat", pt.Lat).
				Float64("lng", pt.Lng).
				Msg("no panorama near sampled point")
		default:
			return nil, fmt.Errorf("street view metadata status %q", md.Status)
		}
	}
	return nil, fmt.Errorf("map %s after %d samples: %w", m.ID, s.attempts, ErrNoPanoramaFound)
}

func (s *StreetViewSource) randomPoint(m geomap.Map) models.LatLng {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.RandomPoint(s.rnd)
}
