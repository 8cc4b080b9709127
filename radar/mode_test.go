package radar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSweepMode(t *testing.T) {
	cases := []struct {
		in   string
		want SweepMode
	}{
		{"azimuth_surveillance", SweepAzimuthSurveillance},
		{"ppi", SweepAzimuthSurveillance},
		{"sur", SweepAzimuthSurveillance},
		{"PPI", SweepAzimuthSurveillance},
		{"elevation_surveillance", SweepRHI},
		{"rhi", SweepRHI},
		{"sector", SweepSector},
		{"sec", SweepSector},
		{"coplane", SweepCoplane},
		{"pointing", SweepPointing},
		{"pnt", SweepPointing},
		{"manual_ppi", SweepManualPPI},
		{"manual_rhi", SweepManualRHI},
		{"idle", SweepIdle},
		{"calibration", SweepCalibration},
		{"cal", SweepCalibration},
		{"vertical_pointing", SweepVerticalPointing},
		{"vert", SweepVerticalPointing},
		{"azimuth_surveillance\x00\x00\x00", SweepAzimuthSurveillance},
		{"rhi ", SweepRHI},
		{"", SweepAzimuthSurveillance},
		{"wibble", SweepAzimuthSurveillance},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseSweepMode(tc.in), "%q", tc.in)
	}
}

func TestSweepModeRoundTrip(t *testing.T) {
	for mode := SweepAzimuthSurveillance; mode <= SweepVerticalPointing; mode++ {
		assert.Equal(t, mode, ParseSweepMode(mode.String()), mode.String())
	}
}

func TestParsePlatformType(t *testing.T) {
	assert.Equal(t, PlatformFixed, ParsePlatformType("fixed"))
	assert.Equal(t, PlatformShip, ParsePlatformType("Ship"))
	assert.Equal(t, PlatformAircraft, ParsePlatformType("aircraft\x00"))
	assert.Equal(t, PlatformUnknown, ParsePlatformType("zeppelin"))
	assert.Equal(t, PlatformUnknown, ParsePlatformType(""))
	for p := PlatformUnknown; p <= PlatformSatellite; p++ {
		assert.Equal(t, p, ParsePlatformType(p.String()), p.String())
	}
}
