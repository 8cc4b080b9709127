package radar

import (
	"strings"
)

// SweepMode is the scanning strategy of one sweep.
type SweepMode int

const (
	// SweepAzimuthSurveillance is a full azimuth rotation at a fixed
	// elevation (PPI).
	SweepAzimuthSurveillance SweepMode = iota
	// SweepRHI scans elevation at a fixed azimuth.
	SweepRHI
	SweepSector
	SweepCoplane
	SweepPointing
	SweepManualPPI
	SweepManualRHI
	SweepIdle
	SweepCalibration
	SweepVerticalPointing
)

var sweepModeNames = map[SweepMode]string{
	SweepAzimuthSurveillance: "azimuth_surveillance",
	SweepRHI:                 "rhi",
	SweepSector:              "sector",
	SweepCoplane:             "coplane",
	SweepPointing:            "pointing",
	SweepManualPPI:           "manual_ppi",
	SweepManualRHI:           "manual_rhi",
	SweepIdle:                "idle",
	SweepCalibration:         "calibration",
	SweepVerticalPointing:    "vertical_pointing",
}

// String returns the CfRadial spelling of the mode.
func (m SweepMode) String() string {
	if s, has := sweepModeNames[m]; has {
		return s
	}
	return "azimuth_surveillance"
}

// ParseSweepMode maps a sweep_mode string to its SweepMode. Both the
// CfRadial long names and the short vendor spellings (ppi, sur, rhi,
// sec, pnt, vert, cal) are accepted; padding NULs and spaces are
// ignored. Unrecognized strings fall back to azimuth surveillance, the
// overwhelmingly common mode.
func ParseSweepMode(s string) SweepMode {
	switch strings.ToLower(strings.Trim(s, "\x00 \t")) {
	case "azimuth_surveillance", "ppi", "sur":
		return SweepAzimuthSurveillance
	case "elevation_surveillance", "rhi":
		return SweepRHI
	case "sector", "sec":
		return SweepSector
	case "coplane":
		return SweepCoplane
	case "pointing", "pnt":
		return SweepPointing
	case "manual_ppi":
		return SweepManualPPI
	case "manual_rhi":
		return SweepManualRHI
	case "idle":
		return SweepIdle
	case "calibration", "cal":
		return SweepCalibration
	case "vertical_pointing", "vert":
		return SweepVerticalPointing
	default:
		return SweepAzimuthSurveillance
	}
}

// PlatformType tells what the instrument is mounted on.
type PlatformType int

const (
	PlatformUnknown PlatformType = iota
	PlatformFixed
	PlatformVehicle
	PlatformShip
	PlatformAircraft
	PlatformSatellite
)

var platformNames = map[PlatformType]string{
	PlatformUnknown:   "unknown",
	PlatformFixed:     "fixed",
	PlatformVehicle:   "vehicle",
	PlatformShip:      "ship",
	PlatformAircraft:  "aircraft",
	PlatformSatellite: "satellite",
}

func (p PlatformType) String() string {
	if s, has := platformNames[p]; has {
		return s
	}
	return "unknown"
}

// ParsePlatformType maps a platform_type string to its PlatformType,
// returning PlatformUnknown for anything unrecognized.
func ParsePlatformType(s string) PlatformType {
	switch strings.ToLower(strings.Trim(s, "\x00 \t")) {
	case "fixed":
		return PlatformFixed
	case "vehicle":
		return PlatformVehicle
	case "ship":
		return PlatformShip
	case "aircraft":
		return PlatformAircraft
	case "satellite":
		return PlatformSatellite
	default:
		return PlatformUnknown
	}
}
