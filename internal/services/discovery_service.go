// Package services – DiscoveryService
//
// This file implements partner discovery: the ordered list of candidate
// language partners that feeds the card stack. Candidates are ranked by how
// well their languages and interests match the searching user (see package
// search) and, when a location is given, filtered by great-circle distance.
// The searching user and anyone involved in a block with them are excluded.
package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/taalmeet/internal/domain"
	"github.com/tbourn/taalmeet/internal/observability"
	"github.com/tbourn/taalmeet/internal/repo"
	"github.com/tbourn/taalmeet/internal/search"
)

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinate is within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// PartnerMatch is a ranked discovery candidate.
type PartnerMatch struct {
	Partner    domain.Partner
	Languages  []string
	MatchScore float64
	// DistanceKM is nil when no location was supplied.
	DistanceKM *float64
}

// DiscoveryService ranks partner candidates for a user.
type DiscoveryService struct {
	DB *gorm.DB

	// RadiusKM drops candidates farther away than this; 0 disables the filter.
	RadiusKM float64
	// DefaultLimit applies when the caller passes limit <= 0.
	DefaultLimit int
	// MinScore drops candidates scoring below it.
	MinScore float64
	// IndexOptions tune the match index.
	IndexOptions []search.Option
}

// Find returns up to limit partners for userID, best match first. Ties are
// broken by distance (when known) and then by id, so the order is stable
// across calls with unchanged data.
func (s *DiscoveryService) Find(ctx context.Context, userID string, loc *Location, limit int) ([]PartnerMatch, error) {
	ctx, span := observability.Tracer("services/DiscoveryService").Start(ctx, "Find",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Bool("located", loc != nil)),
	)
	defer span.End()

	if loc != nil && !loc.Valid() {
		return nil, ErrInvalidLocation
	}
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if limit <= 0 {
		limit = 20
	}

	var q search.Query
	self, err := repo.GetPartner(ctx, s.DB, userID)
	switch {
	case err == nil:
		q = search.Query{Languages: self.LanguageList(), Interests: self.Interests}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	exclude, err := repo.BlockedEither(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	exclude = append(exclude, userID)

	cands, err := repo.ListCandidates(ctx, s.DB, exclude, 0)
	if err != nil {
		return nil, err
	}

	profiles := make([]search.Profile, 0, len(cands))
	for _, c := range cands {
		profiles = append(profiles, search.Profile{ID: c.ID, Languages: c.LanguageList(), Interests: c.Interests})
	}
	idx := search.NewIndex(profiles, s.IndexOptions...)

	out := make([]PartnerMatch, 0, len(cands))
	for _, c := range cands {
		m := PartnerMatch{
			Partner:    c,
			Languages:  search.BaseLanguages(c.LanguageList()),
			MatchScore: idx.Score(c.ID, q),
		}
		if s.MinScore > 0 && m.MatchScore < s.MinScore {
			continue
		}
		if loc != nil {
			d := HaversineKM(*loc, Location{Lat: c.Lat, Lon: c.Lon})
			if s.RadiusKM > 0 && d > s.RadiusKM {
				continue
			}
			m.DistanceKM = &d
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.DistanceKM != nil && b.DistanceKM != nil && *a.DistanceKM != *b.DistanceKM {
			return *a.DistanceKM < *b.DistanceKM
		}
		return strings.Compare(a.Partner.ID, b.Partner.ID) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

const earthRadiusKM = 6371.0088

// HaversineKM returns the great-circle distance between a and b in kilometres.
func HaversineKM(a, b Location) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}
