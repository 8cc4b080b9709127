// Package radar holds the decoded form of a weather-radar volume: one
// VolumeData carries the volume-level metadata and its sweeps, each
// sweep its ray coordinates and moment fields. Values own their memory
// and keep no handle back to the file they were decoded from.
package radar

import (
	"math"
	"time"
)

// NoData marks gates whose raw sample matched the moment's fill value.
// NaN is the sentinel because no physical moment produces it and it
// stays missing through arithmetic.
var NoData = float32(math.NaN())

// IsNoData reports whether v is the missing-gate sentinel.
func IsNoData(v float32) bool {
	return v != v
}

// VolumeMetadata is the cheap-to-read summary of a volume: instrument
// identity, site position and the per-sweep fixed angles. Missing
// optional elements decode to the zero value, never to an error.
type VolumeMetadata struct {
	InstrumentName string
	Institution    string
	SiteName       string

	// Site position in degrees and meters.
	Latitude    float64
	Longitude   float64
	Altitude    float64
	AltitudeAGL float64

	// Frequency is the transmit frequency in Hz.
	Frequency float64

	VolumeNumber int
	Platform     PlatformType

	TimeCoverageStart time.Time
	TimeCoverageEnd   time.Time

	// FixedAngles holds the target angle of each sweep in degrees:
	// elevation for PPI-like sweeps, azimuth for RHI.
	FixedAngles []float64
}

// NumSweeps returns the number of sweeps in the volume.
func (m *VolumeMetadata) NumSweeps() int {
	return len(m.FixedAngles)
}

// VolumeData is a fully materialized volume. Sweeps are ordered as in
// the file and len(Sweeps) equals Meta.NumSweeps().
type VolumeData struct {
	Meta   VolumeMetadata
	Sweeps []*SweepData
}

func (v *VolumeData) NumSweeps() int {
	return len(v.Sweeps)
}

// GetSweep returns sweep i, reporting absence for out-of-range indexes.
func (v *VolumeData) GetSweep(i int) (*SweepData, bool) {
	if i < 0 || i >= len(v.Sweeps) {
		return nil, false
	}
	return v.Sweeps[i], true
}

// FilterMoments drops every moment not named from every sweep.
func (v *VolumeData) FilterMoments(names ...string) {
	for _, s := range v.Sweeps {
		s.FilterMoments(names...)
	}
}
