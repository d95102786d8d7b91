package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/jobroute/core/model"
)

var paris = model.Point{Lat: 48.8566, Lng: 2.3522}

func at(lat, lng float64) model.Location {
	return model.Location{Point: &model.Point{Lat: lat, Lng: lng}}
}

func TestRadiusCoverage(t *testing.T) {
	c := []model.ServiceCoverage{{Kind: model.CoverageRadius, Active: true, Center: paris, RadiusMiles: 10}}
	assert.True(t, Eligible(c, at(48.86, 2.36)))
	assert.False(t, Eligible(c, at(49.5, 2.35)), "about 44 miles away")
	assert.False(t, Eligible(c, model.Location{Zip: "75001"}), "radius needs coordinates")
}

func TestPolygonCoverage(t *testing.T) {
	square := []model.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0}}
	c := []model.ServiceCoverage{{Kind: model.CoveragePolygon, Active: true, Polygon: square}}
	assert.True(t, Eligible(c, at(5, 5)))
	assert.False(t, Eligible(c, at(5, 15)))
	assert.False(t, InPolygon(model.Point{}, square[:2]))
}

func TestZipCoverage(t *testing.T) {
	c := []model.ServiceCoverage{{Kind: model.CoverageZip, Active: true, ZipCodes: []string{"75001", "75002"}}}
	assert.True(t, Eligible(c, model.Location{Zip: "75002"}))
	assert.False(t, Eligible(c, model.Location{Zip: "69001"}))
}

func TestInactiveCoverageIsIneligible(t *testing.T) {
	c := []model.ServiceCoverage{{Kind: model.CoverageRadius, Active: false, Center: paris, RadiusMiles: 100}}
	assert.False(t, Eligible(c, at(48.86, 2.36)))
	assert.False(t, Eligible(nil, model.Location{}))
}

func TestUnknownLocationMatchesAnyActiveCoverage(t *testing.T) {
	c := []model.ServiceCoverage{{Kind: model.CoverageZip, Active: true, ZipCodes: []string{"1"}}}
	assert.True(t, Eligible(c, model.Location{}))
}

func TestFilter(t *testing.T) {
	in := model.ProviderProfile{Provider: model.Provider{ID: "in", Coverage: []model.ServiceCoverage{
		{Kind: model.CoverageRadius, Active: true, Center: paris, RadiusMiles: 5},
	}}}
	out := model.ProviderProfile{Provider: model.Provider{ID: "out"}}
	got := Filter([]model.ProviderProfile{in, out}, at(48.857, 2.353))
	assert.Len(t, got, 1)
	assert.Equal(t, "in", got[0].Provider.ID)
}
