package cfradial

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/windvane/go-cfradial/cdf"
	"github.com/windvane/go-cfradial/radar"
)

// ReadOption adjusts what Read and ReadSweep materialize. The zero
// configuration decodes every moment sequentially.
type ReadOption func(*readConfig)

type readConfig struct {
	moments []string
	workers int
}

// WithMoments restricts decoding to the named moments. Names are
// matched exactly against the file's variables; naming a moment a file
// lacks is not an error, it is simply absent from the result.
func WithMoments(names ...string) ReadOption {
	return func(c *readConfig) {
		c.moments = append([]string{}, names...)
	}
}

// WithWorkers decodes sweeps concurrently on n goroutines, each with
// its own file handle. n of one or less than zero means sequential;
// zero picks GOMAXPROCS. The result is identical to a sequential read.
func WithWorkers(n int) ReadOption {
	return func(c *readConfig) {
		c.workers = n
	}
}

func applyOptions(opts []ReadOption) readConfig {
	cfg := readConfig{workers: 1}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workers == 0 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}
	return cfg
}

func (c readConfig) selection() map[string]bool {
	if c.moments == nil {
		return nil
	}
	sel := make(map[string]bool, len(c.moments))
	for _, m := range c.moments {
		sel[m] = true
	}
	return sel
}

// Read materializes a whole volume: metadata, per-sweep coordinates
// and physically scaled moment fields.
func Read(path string, opts ...ReadOption) (*radar.VolumeData, error) {
	return ReadContext(context.Background(), path, opts...)
}

// ReadContext is Read honoring a context. Sequential reads observe
// cancellation between sweeps; parallel reads stop outstanding workers
// on the first failure.
func ReadContext(ctx context.Context, path string, opts ...ReadOption) (*radar.VolumeData, error) {
	cfg := applyOptions(opts)
	f, err := openVolume(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta, err := extractMetadata(path, f)
	if err != nil {
		return nil, err
	}
	lay, err := mapVolume(path, f)
	if err != nil {
		return nil, err
	}
	rng, err := readRange(f, lay)
	if err != nil {
		return nil, err
	}

	vol := &radar.VolumeData{
		Meta:   *meta,
		Sweeps: make([]*radar.SweepData, len(lay.spans)),
	}
	selected := cfg.selection()

	if cfg.workers > 1 && len(lay.spans) > 1 {
		if err := readParallel(ctx, path, lay, rng, selected, cfg.workers, vol.Sweeps); err != nil {
			return nil, err
		}
		return vol, nil
	}
	for i := range lay.spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := lay.readSweep(f, rng, i, selected)
		if err != nil {
			return nil, err
		}
		vol.Sweeps[i] = s
	}
	return vol, nil
}

// ReadSweep materializes a single sweep without decoding the others.
// An out-of-range index is a DecodeError.
func ReadSweep(path string, idx int, opts ...ReadOption) (*radar.SweepData, error) {
	cfg := applyOptions(opts)
	f, err := openVolume(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lay, err := mapVolume(path, f)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(lay.spans) {
		return nil, &DecodeError{
			Path:   path,
			Sweep:  idx,
			Reason: fmt.Sprintf("sweep index out of range [0, %d)", len(lay.spans)),
		}
	}
	rng, err := readRange(f, lay)
	if err != nil {
		return nil, err
	}
	return lay.readSweep(f, rng, idx, cfg.selection())
}

// readParallel fans sweeps out over workers. Each worker opens its own
// handle because a cdf.File has one seek cursor. Failures cancel the
// group; the error reported is the decode failure with the lowest
// sweep index, so a run's outcome does not depend on scheduling.
func readParallel(ctx context.Context, path string, lay *volumeLayout, rng []float64,
	selected map[string]bool, workers int, out []*radar.SweepData) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	errs := make([]error, len(lay.spans))
	for i := range lay.spans {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			fi, err := cdf.Open(path)
			if err != nil {
				errs[i] = err
				return err
			}
			defer fi.Close()
			s, err := lay.readSweep(fi, rng, i, selected)
			if err != nil {
				errs[i] = err
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range errs {
			if e != nil && !errors.Is(e, context.Canceled) {
				return e
			}
		}
		return err
	}
	return nil
}

// readRange reads the shared gate-distance coordinate and checks it is
// monotonically non-decreasing.
func readRange(f *cdf.File, lay *volumeLayout) ([]float64, error) {
	v, err := f.Var("range")
	if err != nil {
		return nil, lay.schemaErr("range", "range coordinate variable missing")
	}
	data, err := v.ReadAll()
	if err != nil {
		return nil, &DecodeError{Path: lay.path, Sweep: -1, Variable: "range", Reason: err.Error()}
	}
	vals, ok := asFloats(data)
	if !ok {
		return nil, &DecodeError{Path: lay.path, Sweep: -1, Variable: "range", Reason: "non-numeric coordinate"}
	}
	if len(vals) != lay.ngates {
		return nil, &DecodeError{
			Path: lay.path, Sweep: -1, Variable: "range",
			Reason: fmt.Sprintf("%d gates, dimension says %d", len(vals), lay.ngates),
		}
	}
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[i-1] {
			return nil, &DecodeError{
				Path: lay.path, Sweep: -1, Variable: "range",
				Reason: fmt.Sprintf("gate distances decrease at index %d", i),
			}
		}
	}
	return vals, nil
}

// readSweep materializes sweep idx using the handle f. It is safe to
// call concurrently for distinct handles.
func (lay *volumeLayout) readSweep(f *cdf.File, rng []float64, idx int, selected map[string]bool) (*radar.SweepData, error) {
	az, err := lay.rayFloats32(f, "azimuth", idx)
	if err != nil {
		return nil, err
	}
	el, err := lay.rayFloats32(f, "elevation", idx)
	if err != nil {
		return nil, err
	}
	tm, err := lay.rayTimes(f, idx)
	if err != nil {
		return nil, err
	}
	number := idx
	if lay.numbers != nil {
		number = lay.numbers[idx]
	}
	var mode radar.SweepMode
	if lay.modes != nil {
		mode = lay.modes[idx]
	}
	s := &radar.SweepData{
		Index:      idx,
		Number:     number,
		FixedAngle: lay.angles[idx],
		Mode:       mode,
		Azimuth:    az,
		Elevation:  el,
		Time:       tm,
		Range:      append([]float64{}, rng...),
	}
	for _, name := range lay.moments {
		if selected != nil && !selected[name] {
			continue
		}
		m, err := lay.readMoment(f, name, idx)
		if err != nil {
			return nil, err
		}
		s.AddMoment(m)
	}
	return s, nil
}

// rayFloats32 reads one sweep's slice of a required per-ray coordinate.
func (lay *volumeLayout) rayFloats32(f *cdf.File, name string, idx int) ([]float32, error) {
	span := lay.spans[idx]
	v, err := f.Var(name)
	if err != nil {
		return nil, lay.schemaErr(name, "required ray coordinate missing")
	}
	if v.Len() < span.end+1 {
		return nil, &DecodeError{
			Path: lay.path, Sweep: idx, Variable: name,
			Reason: fmt.Sprintf("%d rays, sweep needs %d", v.Len(), span.end+1),
		}
	}
	data, err := v.ReadRows(span.start, span.rays())
	if err != nil {
		return nil, &DecodeError{Path: lay.path, Sweep: idx, Variable: name, Reason: err.Error()}
	}
	vals, ok := asFloats32(data)
	if !ok {
		return nil, &DecodeError{Path: lay.path, Sweep: idx, Variable: name, Reason: "non-numeric coordinate"}
	}
	return vals, nil
}

// rayTimes reads the per-ray time offsets. Some vendors omit the time
// variable entirely; those sweeps get zero offsets.
func (lay *volumeLayout) rayTimes(f *cdf.File, idx int) ([]float64, error) {
	span := lay.spans[idx]
	v, err := f.Var("time")
	if err != nil {
		return make([]float64, span.rays()), nil
	}
	if v.Len() < span.end+1 {
		return nil, &DecodeError{
			Path: lay.path, Sweep: idx, Variable: "time",
			Reason: fmt.Sprintf("%d rays, sweep needs %d", v.Len(), span.end+1),
		}
	}
	data, err := v.ReadRows(span.start, span.rays())
	if err != nil {
		return nil, &DecodeError{Path: lay.path, Sweep: idx, Variable: "time", Reason: err.Error()}
	}
	vals, ok := asFloats(data)
	if !ok {
		return nil, &DecodeError{Path: lay.path, Sweep: idx, Variable: "time", Reason: "non-numeric coordinate"}
	}
	return vals, nil
}

func momentScale(attrs *cdf.AttrMap) (scale, offset float32) {
	scale = 1
	if v, has := attrs.Get("scale_factor"); has {
		if x, ok := toFloat64(v); ok {
			scale = float32(x)
		}
	}
	if v, has := attrs.Get("add_offset"); has {
		if x, ok := toFloat64(v); ok {
			offset = float32(x)
		}
	}
	return scale, offset
}

// readMoment reads one sweep's rows of a moment and converts them to
// physical values. The shape is checked against the catalog before any
// payload bytes move.
func (lay *volumeLayout) readMoment(f *cdf.File, name string, idx int) (*radar.MomentData, error) {
	span := lay.spans[idx]
	v, err := f.Var(name)
	if err != nil {
		return nil, &DecodeError{Path: lay.path, Sweep: idx, Variable: name, Reason: "cataloged variable missing"}
	}
	shape := v.Shape()
	if len(shape) != 2 || shape[1] != lay.ngates {
		return nil, &DecodeError{
			Path: lay.path, Sweep: idx, Variable: name,
			Reason: fmt.Sprintf("shape %v, want (rays, %d)", shape, lay.ngates),
		}
	}
	if shape[0] < span.end+1 {
		return nil, &DecodeError{
			Path: lay.path, Sweep: idx, Variable: name,
			Reason: fmt.Sprintf("%d rays, sweep needs %d", shape[0], span.end+1),
		}
	}
	raw, err := v.ReadRows(span.start, span.rays())
	if err != nil {
		return nil, &DecodeError{Path: lay.path, Sweep: idx, Variable: name, Reason: err.Error()}
	}
	attrs := v.Attributes()
	scale, offset := momentScale(attrs)
	fill, hasFill := attrs.Get("_FillValue")
	data, ok := scaleAny(raw, fill, hasFill, scale, offset)
	if !ok {
		return nil, &DecodeError{
			Path: lay.path, Sweep: idx, Variable: name,
			Reason: "unsupported moment type " + v.Type(),
		}
	}
	m := &radar.MomentData{
		Name:     name,
		NumRays:  span.rays(),
		NumGates: lay.ngates,
		Data:     data,
	}
	m.Units, _ = attrString(attrs, "units")
	m.StandardName, _ = attrString(attrs, "standard_name")
	m.LongName, _ = attrString(attrs, "long_name")
	return m, nil
}
