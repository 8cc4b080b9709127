package cdf

import (
	"path/filepath"
	"testing"
)

const (
	perfRays  = 360
	perfGates = 500
)

// perfFile writes a radar-shaped volume: coordinate variables over the
// record dimension and one two-dimensional moment field.
func perfFile(tb testing.TB) string {
	tb.Helper()
	fname := filepath.Join(tb.TempDir(), "perf.nc")
	w, err := OpenWriter(fname)
	if err != nil {
		tb.Fatal(err)
	}
	if err := w.Unlimited("time"); err != nil {
		tb.Fatal(err)
	}
	times := make([]float64, perfRays)
	azimuths := make([]float32, perfRays)
	for i := range times {
		times[i] = float64(i) * 0.5
		azimuths[i] = float32(i)
	}
	ranges := make([]float32, perfGates)
	for i := range ranges {
		ranges[i] = float32(i) * 250
	}
	moment := make([]int16, perfRays*perfGates)
	for i := range moment {
		moment[i] = int16(i % 4096)
	}
	for _, v := range []struct {
		name string
		vr   Variable
	}{
		{"time", Variable{Values: times, Dimensions: []string{"time"}}},
		{"azimuth", Variable{Values: azimuths, Dimensions: []string{"time"}}},
		{"range", Variable{Values: ranges, Dimensions: []string{"range"}}},
		{"DBZ", Variable{
			Values:     moment,
			Dimensions: []string{"time", "range"},
			Shape:      []int{perfRays, perfGates},
		}},
	} {
		if err := w.AddVar(v.name, v.vr); err != nil {
			tb.Fatal(v.name, err)
		}
	}
	if err := w.Close(); err != nil {
		tb.Fatal(err)
	}
	return fname
}

func readEverything(tb testing.TB, fname string, num int) {
	for i := 0; i < num; i++ {
		f, err := Open(fname)
		if err != nil {
			tb.Fatal(err)
		}
		for _, name := range f.ListVariables() {
			v, err := f.Var(name)
			if err != nil {
				tb.Fatal(name, err)
			}
			if _, err := v.ReadAll(); err != nil {
				tb.Fatal(name, err)
			}
			for _, key := range v.Attributes().Keys() {
				if _, has := v.Attributes().Get(key); !has {
					tb.Fatal(name, key)
				}
			}
		}
		f.Close()
	}
}

func TestReadVolume(t *testing.T) {
	readEverything(t, perfFile(t), 1)
}

func BenchmarkReadVolume(b *testing.B) {
	fname := perfFile(b)
	b.ResetTimer()
	readEverything(b, fname, b.N)
}
