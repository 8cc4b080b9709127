package radar

import (
	"gonum.org/v1/gonum/mat"
)

// SweepData is one sweep of a volume: per-ray coordinates plus the
// moment fields measured on the (ray, gate) grid. Azimuth, Elevation
// and Time run over rays; Range runs over gates and is non-decreasing.
type SweepData struct {
	// Index is the position of the sweep within its volume.
	Index int
	// Number is the sweep_number recorded in the file, which vendors
	// do not always keep equal to Index.
	Number     int
	FixedAngle float64
	Mode       SweepMode

	Azimuth   []float32
	Elevation []float32
	// Time holds per-ray offsets in seconds from the volume reference
	// time, zero-filled when the file omits them.
	Time  []float64
	Range []float64

	moments map[string]*MomentData
	order   []string
}

func (s *SweepData) NumRays() int {
	return len(s.Azimuth)
}

func (s *SweepData) NumGates() int {
	return len(s.Range)
}

// AddMoment attaches m to the sweep, replacing any moment of the same
// name while keeping the original insertion order.
func (s *SweepData) AddMoment(m *MomentData) {
	if s.moments == nil {
		s.moments = make(map[string]*MomentData)
	}
	if _, has := s.moments[m.Name]; !has {
		s.order = append(s.order, m.Name)
	}
	s.moments[m.Name] = m
}

// GetMoment looks up a moment by its exact, case-sensitive name. Alias
// fallback such as DBZ for DBZH is left to the caller; LookupMomentInfo
// supplies the alias table.
func (s *SweepData) GetMoment(name string) (*MomentData, bool) {
	m, has := s.moments[name]
	return m, has
}

// MomentNames returns the moment names in file order.
func (s *SweepData) MomentNames() []string {
	return append([]string{}, s.order...)
}

// FilterMoments drops every moment not named, preserving order.
func (s *SweepData) FilterMoments(names ...string) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	var order []string
	for _, n := range s.order {
		if keep[n] {
			order = append(order, n)
			continue
		}
		delete(s.moments, n)
	}
	s.order = order
}

// MomentData is one field of a sweep. Data is flat in row-major
// (ray, gate) order; gates whose raw sample matched the fill value hold
// NoData.
type MomentData struct {
	Name         string
	StandardName string
	LongName     string
	Units        string

	NumRays  int
	NumGates int
	Data     []float32
}

// Shape returns the (rays, gates) extent of the field.
func (m *MomentData) Shape() (rays, gates int) {
	return m.NumRays, m.NumGates
}

// At returns the physical value at one ray and gate.
func (m *MomentData) At(ray, gate int) float32 {
	return m.Data[ray*m.NumGates+gate]
}

// Row returns one ray's gates without copying.
func (m *MomentData) Row(ray int) []float32 {
	return m.Data[ray*m.NumGates : (ray+1)*m.NumGates]
}

// Dense copies the field into a gonum matrix, NoData gates becoming
// NaN entries. It returns nil for an empty field.
func (m *MomentData) Dense() *mat.Dense {
	if m.NumRays == 0 || m.NumGates == 0 {
		return nil
	}
	d := make([]float64, len(m.Data))
	for i, v := range m.Data {
		d[i] = float64(v)
	}
	return mat.NewDense(m.NumRays, m.NumGates, d)
}

// MinMax returns the smallest and largest valid values, with ok false
// when every gate is NoData.
func (m *MomentData) MinMax() (min, max float32, ok bool) {
	for _, v := range m.Data {
		if IsNoData(v) {
			continue
		}
		if !ok {
			min, max = v, v
			ok = true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, ok
}
