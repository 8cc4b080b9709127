package cfradial

import (
	"fmt"

	"github.com/windvane/go-cfradial/cdf"
	"github.com/windvane/go-cfradial/radar"
)

// Coordinate names reserved by the convention. They are never moments,
// whatever their shape.
var reservedCoords = map[string]bool{
	"time":      true,
	"range":     true,
	"azimuth":   true,
	"elevation": true,
}

type sweepSpan struct {
	start, end int // ray indexes, end inclusive
}

func (s sweepSpan) rays() int {
	return s.end - s.start + 1
}

// volumeLayout is the decode plan built from the header: ray and gate
// extents, where each sweep's rays live, and which variables are
// moment fields. Building it reads only sweep-sized arrays.
type volumeLayout struct {
	path   string
	nrays  int
	ngates int
	spans  []sweepSpan
	angles []float64

	// numbers and modes are nil when the file omits them; the sweep
	// index and azimuth surveillance stand in.
	numbers []int
	modes   []radar.SweepMode

	moments []string // file order
}

func (lay *volumeLayout) schemaErr(element, reason string) error {
	return &SchemaError{Path: lay.path, Element: element, Reason: reason}
}

// dimOrVarLen resolves an extent from the named dimension, falling
// back to the shape of the same-named 1-D coordinate variable for
// files that renamed their dimensions.
func dimOrVarLen(f *cdf.File, name string) (int, bool) {
	if n, has := f.GetDimension(name); has {
		return int(n), true
	}
	v, err := f.Var(name)
	if err != nil {
		return 0, false
	}
	shape := v.Shape()
	if len(shape) != 1 {
		return 0, false
	}
	return shape[0], true
}

// read1D reads a whole 1-D numeric variable, reporting false when it
// is absent or not numeric.
func read1D(f *cdf.File, name string) ([]float64, bool) {
	v, err := f.Var(name)
	if err != nil {
		return nil, false
	}
	data, err := v.ReadAll()
	if err != nil {
		logger.Warnf("%s unreadable: %v", name, err)
		return nil, false
	}
	vals, ok := asFloats(data)
	return vals, ok
}

func read1DInts(f *cdf.File, name string) ([]int, bool) {
	vals, ok := read1D(f, name)
	if !ok {
		return nil, false
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out, true
}

// readSweepModes decodes the sweep_mode char matrix, one row per
// sweep. A nil return means the file carries no usable sweep modes.
func readSweepModes(f *cdf.File, nsweeps int) []radar.SweepMode {
	v, err := f.Var("sweep_mode")
	if err != nil {
		return nil
	}
	data, err := v.ReadAll()
	if err != nil {
		return nil
	}
	b, ok := data.([]byte)
	if !ok {
		return nil
	}
	shape := v.Shape()
	switch {
	case len(shape) == 1 && nsweeps == 1:
		return []radar.SweepMode{radar.ParseSweepMode(string(b))}
	case len(shape) == 2 && shape[0] >= nsweeps:
		strLen := shape[1]
		modes := make([]radar.SweepMode, nsweeps)
		for i := range modes {
			modes[i] = radar.ParseSweepMode(string(b[i*strLen : (i+1)*strLen]))
		}
		return modes
	}
	logger.Warnf("sweep_mode shape %v does not cover %d sweeps", shape, nsweeps)
	return nil
}

// mapVolume interprets the header as a CfRadial1 volume. All required
// structure is checked here so sweep reads fail before any ray data
// moves.
func mapVolume(path string, f *cdf.File) (*volumeLayout, error) {
	lay := &volumeLayout{path: path}

	var ok bool
	if lay.nrays, ok = dimOrVarLen(f, "time"); !ok {
		return nil, lay.schemaErr("time", "no time dimension or coordinate")
	}
	if lay.ngates, ok = dimOrVarLen(f, "range"); !ok {
		return nil, lay.schemaErr("range", "no range dimension or coordinate")
	}

	starts, ok := read1DInts(f, "sweep_start_ray_index")
	if !ok {
		return nil, lay.schemaErr("sweep_start_ray_index", "required sweep index variable missing")
	}
	ends, ok := read1DInts(f, "sweep_end_ray_index")
	if !ok {
		return nil, lay.schemaErr("sweep_end_ray_index", "required sweep index variable missing")
	}
	angles, ok := read1D(f, "fixed_angle")
	if !ok {
		return nil, lay.schemaErr("fixed_angle", "required sweep angle variable missing")
	}
	if len(ends) != len(starts) {
		return nil, lay.schemaErr("sweep_end_ray_index",
			fmt.Sprintf("%d entries against %d sweep starts", len(ends), len(starts)))
	}
	if len(angles) != len(starts) {
		return nil, lay.schemaErr("fixed_angle",
			fmt.Sprintf("%d entries against %d sweep starts", len(angles), len(starts)))
	}
	lay.angles = angles

	lay.spans = make([]sweepSpan, len(starts))
	for i := range starts {
		span := sweepSpan{start: starts[i], end: ends[i]}
		if span.start < 0 || span.start > span.end || span.end >= lay.nrays {
			return nil, &DecodeError{
				Path:     path,
				Sweep:    i,
				Variable: "sweep_start_ray_index",
				Reason: fmt.Sprintf("ray span [%d, %d] outside volume of %d rays",
					span.start, span.end, lay.nrays),
			}
		}
		lay.spans[i] = span
	}

	if numbers, ok := read1DInts(f, "sweep_number"); ok && len(numbers) >= len(starts) {
		lay.numbers = numbers
	}
	lay.modes = readSweepModes(f, len(starts))

	// Moments are exactly the 2-D (time, range) variables that are not
	// reserved coordinates. File order keeps output stable.
	for _, name := range f.ListVariables() {
		if reservedCoords[name] {
			continue
		}
		v, err := f.Var(name)
		if err != nil {
			continue
		}
		dims := v.Dimensions()
		if len(dims) == 2 && dims[0] == "time" && dims[1] == "range" {
			lay.moments = append(lay.moments, name)
		}
	}
	return lay, nil
}
