package cfradial

import (
	"context"
	"strings"
	"time"

	"github.com/windvane/go-cfradial/cdf"
	"github.com/windvane/go-cfradial/radar"
)

// Scan reads the volume-level metadata: global attributes, scalar
// variables and the per-sweep fixed angles. It never touches anything
// sized by rays or gates, so scanning a directory of large volumes is
// cheap. Missing optional elements decode to documented defaults;
// only a missing fixed_angle is an error, since without it the file
// has no usable sweep structure.
func Scan(path string) (*radar.VolumeMetadata, error) {
	return ScanContext(context.Background(), path)
}

// ScanContext is Scan honoring a context.
func ScanContext(ctx context.Context, path string) (*radar.VolumeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := openVolume(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return extractMetadata(path, f)
}

func extractMetadata(path string, f *cdf.File) (*radar.VolumeMetadata, error) {
	meta := &radar.VolumeMetadata{}
	ga := f.Attributes()

	if s, ok := attrString(ga, "instrument_name"); ok {
		meta.InstrumentName = s
	}
	if s, ok := attrString(ga, "institution"); ok {
		meta.Institution = s
	}
	if s, ok := attrString(ga, "site_name"); ok {
		meta.SiteName = s
	}
	if s, ok := attrString(ga, "platform_type"); ok {
		meta.Platform = radar.ParsePlatformType(s)
	}

	if v, ok := scalarFloat(f, "latitude"); ok {
		meta.Latitude = v
	}
	if v, ok := scalarFloat(f, "longitude"); ok {
		meta.Longitude = v
	}
	if v, ok := scalarFloat(f, "altitude"); ok {
		meta.Altitude = v
	}
	if v, ok := scalarFloat(f, "altitude_agl"); ok {
		meta.AltitudeAGL = v
	}
	if v, ok := scalarFloat(f, "volume_number"); ok {
		meta.VolumeNumber = int(v)
	}
	if v, ok := scalarFloat(f, "frequency"); ok {
		meta.Frequency = v
	}

	meta.TimeCoverageStart = coverageTime(f, "time_coverage_start")
	meta.TimeCoverageEnd = coverageTime(f, "time_coverage_end")

	angles, ok := read1D(f, "fixed_angle")
	if !ok {
		return nil, &SchemaError{
			Path:    path,
			Element: "fixed_angle",
			Reason:  "required sweep angle variable missing",
		}
	}
	meta.FixedAngles = angles
	return meta, nil
}

// coverageTime resolves a time-coverage element from the global
// attribute or, failing that, the char variable of the same name.
func coverageTime(f *cdf.File, name string) time.Time {
	if s, ok := attrString(f.Attributes(), name); ok {
		return parseCoverageTime(name, s)
	}
	if s, ok := charVarString(f, name); ok {
		return parseCoverageTime(name, s)
	}
	return time.Time{}
}

// parseCoverageTime parses the RFC-3339 stamps CfRadial files carry.
// Some vendors drop the zone suffix; those parse as UTC. Anything
// unparseable leaves the zero time, as time coverage is optional.
func parseCoverageTime(name, s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	logger.Infof("%s: unparseable time %q", name, s)
	return time.Time{}
}
