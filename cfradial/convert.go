package cfradial

import (
	"strings"

	"github.com/windvane/go-cfradial/cdf"
	"github.com/windvane/go-cfradial/radar"
)

// Vendors disagree on the widths of numeric attributes and scalar
// variables, so everything funnels through these coercions.

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// asFloats widens any flat numeric payload to float64. Char payloads
// coerce byte-wise like ubyte; callers that must reject text check
// Var.Type first.
func asFloats(data any) ([]float64, bool) {
	switch t := data.(type) {
	case []float64:
		return t, true
	case []float32:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []int8:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []int16:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []int32:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []int64:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []uint8:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []uint16:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []uint32:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	case []uint64:
		out := make([]float64, len(t))
		for i, v := range t {
			out[i] = float64(v)
		}
		return out, true
	}
	return nil, false
}

func asFloats32(data any) ([]float32, bool) {
	if t, ok := data.([]float32); ok {
		return t, true
	}
	f64, ok := asFloats(data)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(f64))
	for i, v := range f64 {
		out[i] = float32(v)
	}
	return out, true
}

func asInts(data any) ([]int, bool) {
	f64, ok := asFloats(data)
	if !ok {
		return nil, false
	}
	out := make([]int, len(f64))
	for i, v := range f64 {
		out[i] = int(v)
	}
	return out, true
}

// attrString returns a string attribute with padding NULs removed.
func attrString(am *cdf.AttrMap, key string) (string, bool) {
	v, has := am.Get(key)
	if !has {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimRight(s, "\x00"), true
}

// charVarString reads a 1-D char variable as a string, the CfRadial1
// encoding for volume-level text stored as variables.
func charVarString(f *cdf.File, name string) (string, bool) {
	v, err := f.Var(name)
	if err != nil {
		return "", false
	}
	if v.Type() != "char" || len(v.Shape()) != 1 {
		return "", false
	}
	data, err := v.ReadAll()
	if err != nil {
		return "", false
	}
	b, ok := data.([]byte)
	if !ok {
		return "", false
	}
	return strings.TrimRight(string(b), "\x00 "), true
}

// scalarFloat reads the first element of a numeric variable. Missing
// or unreadable variables report false; the caller substitutes the
// documented default.
func scalarFloat(f *cdf.File, name string) (float64, bool) {
	v, err := f.Var(name)
	if err != nil {
		return 0, false
	}
	data, err := v.ReadAll()
	if err != nil {
		logger.Infof("scalar %s unreadable: %v", name, err)
		return 0, false
	}
	vals, ok := asFloats(data)
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

type rawSample interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// exactFill coerces a declared _FillValue to the moment's raw type.
// A fill that is not exactly representable in the raw type can never
// match a raw sample, so it reports false rather than rounding.
func exactFill[T rawSample](v any, has bool) (T, bool) {
	var zero T
	if !has {
		return zero, false
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	f, ok := toFloat64(v)
	if !ok {
		return zero, false
	}
	t := T(f)
	if float64(t) != f {
		return zero, false
	}
	return t, true
}

// scaleMoment converts raw samples to physical float32 values. The
// arithmetic stays in float32 to match how the values were packed.
func scaleMoment[T rawSample](raw []T, fill T, hasFill bool, scale, offset float32) []float32 {
	out := make([]float32, len(raw))
	for i, r := range raw {
		if hasFill && r == fill {
			out[i] = radar.NoData
			continue
		}
		out[i] = float32(r)*scale + offset
	}
	return out
}

// scaleAny dispatches scaleMoment over the payload's concrete type.
func scaleAny(raw any, fill any, hasFill bool, scale, offset float32) ([]float32, bool) {
	switch t := raw.(type) {
	case []int8:
		fv, ok := exactFill[int8](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []int16:
		fv, ok := exactFill[int16](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []int32:
		fv, ok := exactFill[int32](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []int64:
		fv, ok := exactFill[int64](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []uint8:
		fv, ok := exactFill[uint8](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []uint16:
		fv, ok := exactFill[uint16](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []uint32:
		fv, ok := exactFill[uint32](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []uint64:
		fv, ok := exactFill[uint64](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []float32:
		fv, ok := exactFill[float32](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	case []float64:
		fv, ok := exactFill[float64](fill, hasFill)
		return scaleMoment(t, fv, ok, scale, offset), true
	}
	return nil, false
}
