// Package eligibility decides whether a provider's coverage includes a job
// location.
package eligibility

import (
	"github.com/kilianp07/jobroute/core/model"
)

// Eligible reports whether any active coverage entry contains loc. A
// provider without active coverage is never eligible. When loc carries
// neither coordinates nor a zip code, any active coverage matches.
func Eligible(coverage []model.ServiceCoverage, loc model.Location) bool {
	for _, c := range coverage {
		if !c.Active {
			continue
		}
		if !loc.HasCoordinates() && loc.Zip == "" {
			return true
		}
		if Covers(c, loc) {
			return true
		}
	}
	return false
}

// Covers evaluates a single coverage entry, ignoring its Active flag.
func Covers(c model.ServiceCoverage, loc model.Location) bool {
	switch c.Kind {
	case model.CoverageRadius:
		return loc.HasCoordinates() && model.DistanceMiles(c.Center, *loc.Point) <= c.RadiusMiles
	case model.CoveragePolygon:
		return loc.HasCoordinates() && InPolygon(*loc.Point, c.Polygon)
	case model.CoverageZip:
		if loc.Zip == "" {
			return false
		}
		for _, z := range c.ZipCodes {
			if z == loc.Zip {
				return true
			}
		}
	}
	return false
}

// InPolygon runs an even-odd ray cast from p. Vertices may be open or closed.
func InPolygon(p model.Point, poly []model.Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := range poly {
		a, b := poly[i], poly[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lng < (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lng {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Filter keeps the profiles whose coverage includes loc.
func Filter(profiles []model.ProviderProfile, loc model.Location) []model.ProviderProfile {
	out := make([]model.ProviderProfile, 0, len(profiles))
	for _, p := range profiles {
		if Eligible(p.Provider.Coverage, loc) {
			out = append(out, p)
		}
	}
	return out
}
