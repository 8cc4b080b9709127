// Package cfradial decodes CfRadial1 weather-radar volumes from
// classic NetCDF files. Scan reads the volume-level metadata without
// touching ray data, Read materializes every sweep with its
// coordinates and physically scaled moment fields, and ReadSweep pulls
// one sweep without paying for the rest of the volume. Gates whose raw
// sample matched the moment's fill value hold radar.NoData. Failures
// classify with errors.Is against ErrNotFound, ErrFormat, ErrSchema
// and ErrDecode.
package cfradial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/windvane/go-cfradial/cdf"
	"github.com/windvane/go-cfradial/internal"
)

var logger = internal.NewLogger()

// SetLogLevel sets the log level for this package and the container
// reader and returns the old one. Level 0 prints errors only, level 1
// adds warnings (the default) and level 2 adds info.
func SetLogLevel(level int) int {
	old := logger.LogLevel()
	switch level {
	case 0:
		logger.SetLogLevel(internal.LevelError)
	case 1:
		logger.SetLogLevel(internal.LevelWarn)
	default:
		logger.SetLogLevel(internal.LevelInfo)
	}
	cdf.SetLogLevel(level)
	return int(old)
}

var hdf5Magic = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// sniffReason names the container variant in the error. netCDF-4 files
// are HDF5 underneath and show up often; telling users the file is
// CfRadial2-era is more useful than "bad magic".
func sniffReason(path string) string {
	b := make([]byte, len(hdf5Magic))
	f, err := os.Open(path)
	if err == nil {
		_, _ = io.ReadFull(f, b)
		f.Close()
	}
	if bytes.Equal(b, hdf5Magic) {
		return "netCDF-4 (HDF5) container; CfRadial1 uses classic NetCDF"
	}
	return "not a classic NetCDF file"
}

// openVolume opens the container and maps its failures onto the
// package taxonomy.
func openVolume(path string) (*cdf.File, error) {
	f, err := cdf.Open(path)
	if err == nil {
		return f, nil
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	if errors.Is(err, cdf.ErrNotCDF) {
		return nil, &FormatError{Path: path, Reason: sniffReason(path)}
	}
	return nil, &FormatError{Path: path, Reason: err.Error()}
}
