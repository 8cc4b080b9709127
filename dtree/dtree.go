// Package dtree projects decoded radar volumes onto a generic dataset
// tree: named nodes carrying attributes, coordinate arrays, data arrays
// and child nodes. The shape mirrors what hierarchical analysis tools
// exchange, so a volume can be handed over without those tools knowing
// anything about radar files.
package dtree

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/windvane/go-cfradial/radar"
)

var ErrNotMatrix = errors.New("array is not a matrix")

// Array is one named array of a node. Values is flat in row-major
// order; scalars have an empty shape and a single value.
type Array struct {
	Name   string
	Dims   []string
	Shape  []int
	Attrs  map[string]string
	Values []float64
}

func (a *Array) Len() int { return len(a.Values) }

// Matrix returns a two-dimensional array as a dense matrix sharing the
// backing values.
func (a *Array) Matrix() (*mat.Dense, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("%w: shape %v", ErrNotMatrix, a.Shape)
	}
	r, c := a.Shape[0], a.Shape[1]
	if r == 0 || c == 0 || r*c != len(a.Values) {
		return nil, fmt.Errorf("%w: shape %v holds %d values", ErrNotMatrix, a.Shape, len(a.Values))
	}
	return mat.NewDense(r, c, a.Values), nil
}

// Node is one level of a dataset tree.
type Node struct {
	Name     string
	Attrs    map[string]string
	Coords   []Array
	DataVars []Array
	Children []*Node
}

// Child finds a direct child by name.
func (n *Node) Child(name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FromVolume builds the tree for a decoded volume: a root node with the
// site metadata and one child per sweep. Gates holding no echo stay NaN
// in the data arrays.
func FromVolume(v *radar.VolumeData) *Node {
	root := &Node{
		Name:  "/",
		Attrs: rootAttrs(&v.Meta),
		Coords: []Array{
			scalar("latitude", "degrees_north", v.Meta.Latitude),
			scalar("longitude", "degrees_east", v.Meta.Longitude),
			scalar("altitude", "meters", v.Meta.Altitude),
		},
	}
	root.DataVars = append(root.DataVars, Array{
		Name:   "sweep_fixed_angle",
		Dims:   []string{"sweep"},
		Shape:  []int{len(v.Meta.FixedAngles)},
		Attrs:  map[string]string{"units": "degrees"},
		Values: append([]float64{}, v.Meta.FixedAngles...),
	})
	for _, s := range v.Sweeps {
		root.Children = append(root.Children, sweepNode(s))
	}
	return root
}

func rootAttrs(meta *radar.VolumeMetadata) map[string]string {
	attrs := map[string]string{
		"Conventions":     "CF/Radial",
		"instrument_name": meta.InstrumentName,
	}
	if meta.Institution != "" {
		attrs["institution"] = meta.Institution
	}
	if meta.SiteName != "" {
		attrs["site_name"] = meta.SiteName
	}
	if meta.Platform != radar.PlatformUnknown {
		attrs["platform_type"] = meta.Platform.String()
	}
	attrs["volume_number"] = strconv.Itoa(meta.VolumeNumber)
	if meta.Frequency != 0 {
		attrs["frequency"] = strconv.FormatFloat(meta.Frequency, 'g', -1, 64)
	}
	if !meta.TimeCoverageStart.IsZero() {
		attrs["time_coverage_start"] = meta.TimeCoverageStart.UTC().Format(time.RFC3339)
	}
	if !meta.TimeCoverageEnd.IsZero() {
		attrs["time_coverage_end"] = meta.TimeCoverageEnd.UTC().Format(time.RFC3339)
	}
	return attrs
}

func sweepNode(s *radar.SweepData) *Node {
	n := &Node{
		Name: fmt.Sprintf("sweep_%d", s.Index),
		Attrs: map[string]string{
			"sweep_number": strconv.Itoa(s.Number),
			"sweep_mode":   s.Mode.String(),
			"fixed_angle":  strconv.FormatFloat(s.FixedAngle, 'g', -1, 64),
		},
		Coords: []Array{
			rayCoord("azimuth", "degrees", s.Azimuth),
			rayCoord("elevation", "degrees", s.Elevation),
			{
				Name:   "time",
				Dims:   []string{"time"},
				Shape:  []int{len(s.Time)},
				Attrs:  map[string]string{"units": "seconds"},
				Values: append([]float64{}, s.Time...),
			},
			{
				Name:   "range",
				Dims:   []string{"range"},
				Shape:  []int{len(s.Range)},
				Attrs:  map[string]string{"units": "meters"},
				Values: append([]float64{}, s.Range...),
			},
		},
	}
	for _, name := range s.MomentNames() {
		m, ok := s.GetMoment(name)
		if !ok {
			continue
		}
		n.DataVars = append(n.DataVars, momentArray(m))
	}
	return n
}

func scalar(name, units string, v float64) Array {
	return Array{
		Name:   name,
		Attrs:  map[string]string{"units": units},
		Values: []float64{v},
	}
}

func rayCoord(name, units string, vals []float32) Array {
	return Array{
		Name:   name,
		Dims:   []string{"time"},
		Shape:  []int{len(vals)},
		Attrs:  map[string]string{"units": units},
		Values: floats64(vals),
	}
}

func momentArray(m *radar.MomentData) Array {
	attrs := map[string]string{"units": m.Units}
	if m.StandardName != "" {
		attrs["standard_name"] = m.StandardName
	}
	if m.LongName != "" {
		attrs["long_name"] = m.LongName
	}
	return Array{
		Name:   m.Name,
		Dims:   []string{"time", "range"},
		Shape:  []int{m.NumRays, m.NumGates},
		Attrs:  attrs,
		Values: floats64(m.Data),
	}
}

func floats64(vals []float32) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}
