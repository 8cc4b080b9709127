package cdf

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// wantVar pairs a variable to write with the flat payload and shape it
// should read back as.
type wantVar struct {
	name  string
	vr    Variable
	want  any
	shape []int
}

type wantList []wantVar

func (wl wantList) check(t *testing.T, f *File) {
	t.Helper()
	for _, kv := range wl {
		v, err := f.Var(kv.name)
		if err != nil {
			t.Error(kv.name, err)
			continue
		}
		got, err := v.ReadAll()
		if err != nil {
			t.Error(kv.name, err)
			continue
		}
		if !reflect.DeepEqual(got, kv.want) {
			t.Errorf("%s: got %v, want %v", kv.name, got, kv.want)
		}
		if !reflect.DeepEqual(v.Shape(), kv.shape) {
			t.Errorf("%s: shape got %v, want %v", kv.name, v.Shape(), kv.shape)
		}
	}
}

func addAll(t *testing.T, w *Writer, vals wantList) {
	t.Helper()
	for _, kv := range vals {
		if err := w.AddVar(kv.name, kv.vr); err != nil {
			t.Fatal(kv.name, err)
		}
	}
}

func genFile(t *testing.T, build func(w *Writer)) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "gen.nc")
	w, err := OpenWriter(fname)
	if err != nil {
		t.Fatal(err)
	}
	build(w)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return fname
}

func openFile(t *testing.T, fname string) *File {
	t.Helper()
	f, err := Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestTypes(t *testing.T) {
	attrs, err := NewAttrMap(
		[]string{"units", "scale_factor", "valid_range", "samples"},
		map[string]any{
			"units":        "m/s",
			"scale_factor": float32(0.5),
			"valid_range":  []int16{-10, 10},
			"samples":      int32(7),
		})
	if err != nil {
		t.Fatal(err)
	}
	vals := wantList{
		{"b", Variable{Values: []int8{-127, 127}, Dimensions: []string{"d2"}},
			[]int8{-127, 127}, []int{2}},
		{"s", Variable{Values: []int16{-32767, 32767}, Dimensions: []string{"d2"}, Attrs: attrs},
			[]int16{-32767, 32767}, []int{2}},
		{"i", Variable{Values: []int32{-2147483647, 2147483647}, Dimensions: []string{"d2"}},
			[]int32{-2147483647, 2147483647}, []int{2}},
		{"f", Variable{Values: []float32{-0.5, 0.5}, Dimensions: []string{"d2"}},
			[]float32{-0.5, 0.5}, []int{2}},
		{"d", Variable{Values: []float64{-0.25, 0.25}, Dimensions: []string{"d2"}},
			[]float64{-0.25, 0.25}, []int{2}},
		{"ub", Variable{Values: []uint8{0, 255}, Dimensions: []string{"d2"}},
			[]uint8{0, 255}, []int{2}},
		{"us", Variable{Values: []uint16{0, 65535}, Dimensions: []string{"d2"}},
			[]uint16{0, 65535}, []int{2}},
		{"ui", Variable{Values: []uint32{0, 4294967295}, Dimensions: []string{"d2"}},
			[]uint32{0, 4294967295}, []int{2}},
		{"i64", Variable{Values: []int64{-9223372036854775806, 9223372036854775806}, Dimensions: []string{"d2"}},
			[]int64{-9223372036854775806, 9223372036854775806}, []int{2}},
		{"ui64", Variable{Values: []uint64{0, 18446744073709551614}, Dimensions: []string{"d2"}},
			[]uint64{0, 18446744073709551614}, []int{2}},
		{"scalar", Variable{Values: float64(2.5)},
			[]float64{2.5}, []int{}},
		{"site", Variable{Values: "KTLX"},
			[]byte("KTLX"), []int{4}},
		{"modes", Variable{Values: []string{"ppi", "rhi"}},
			[]byte("ppirhi"), []int{2, 3}},
	}
	gattrs, err := NewAttrMap(
		[]string{"Conventions", "version"},
		map[string]any{"Conventions": "CF/Radial", "version": "1.3"})
	if err != nil {
		t.Fatal(err)
	}
	fname := genFile(t, func(w *Writer) {
		if err := w.AddGlobalAttrs(gattrs); err != nil {
			t.Fatal(err)
		}
		addAll(t, w, vals)
	})
	f := openFile(t, fname)
	vals.check(t, f)

	var names []string
	for _, kv := range vals {
		names = append(names, kv.name)
	}
	if !reflect.DeepEqual(f.ListVariables(), names) {
		t.Error("variable order:", f.ListVariables())
	}
	if n, has := f.GetDimension("d2"); !has || n != 2 {
		t.Error("dimension d2:", n, has)
	}

	ga := f.Attributes()
	if !reflect.DeepEqual(ga.Keys(), []string{"Conventions", "version"}) {
		t.Error("global attributes:", ga.Keys())
	}
	if v, _ := ga.Get("Conventions"); v != "CF/Radial" {
		t.Error("Conventions:", v)
	}

	v, err := f.Var("s")
	if err != nil {
		t.Fatal(err)
	}
	if v.Type() != "short" || v.GoType() != "int16" {
		t.Error("types:", v.Type(), v.GoType())
	}
	va := v.Attributes()
	if !reflect.DeepEqual(va.Keys(), []string{"units", "scale_factor", "valid_range", "samples"}) {
		t.Error("attribute order:", va.Keys())
	}
	if u, _ := va.Get("units"); u != "m/s" {
		t.Error("units:", u)
	}
	if sf, _ := va.Get("scale_factor"); !reflect.DeepEqual(sf, float32(0.5)) {
		t.Error("scale_factor:", sf)
	}
	if vr, _ := va.Get("valid_range"); !reflect.DeepEqual(vr, []int16{-10, 10}) {
		t.Error("valid_range:", vr)
	}
	if n, _ := va.Get("samples"); !reflect.DeepEqual(n, int32(7)) {
		t.Error("samples:", n)
	}

	vc, err := f.Var("site")
	if err != nil {
		t.Fatal(err)
	}
	if vc.Type() != "char" || vc.GoType() != "uint8" {
		t.Error("char types:", vc.Type(), vc.GoType())
	}
	if vc.Size() != 4 || vc.Len() != 4 {
		t.Error("char sizes:", vc.Size(), vc.Len())
	}

	if _, err := f.Var("nosuch"); !errors.Is(err, ErrNotFound) {
		t.Error("missing variable:", err)
	}
}

func TestOneDim(t *testing.T) {
	vals := wantList{
		{"c", Variable{Values: "a"}, []byte("a"), []int{1}},
		{"f", Variable{Values: []float32{1.5}}, []float32{1.5}, []int{1}},
	}
	fname := genFile(t, func(w *Writer) {
		addAll(t, w, vals)
	})
	f := openFile(t, fname)
	// Length-one variables stay slices; only attributes collapse.
	vals.check(t, f)
}

func TestAttrCollapse(t *testing.T) {
	attrs, err := NewAttrMap(
		[]string{"one", "two", "scalar"},
		map[string]any{
			"one":    []float64{9.5},
			"two":    []float64{9.5, -9.5},
			"scalar": float64(3),
		})
	if err != nil {
		t.Fatal(err)
	}
	fname := genFile(t, func(w *Writer) {
		if err := w.AddGlobalAttrs(attrs); err != nil {
			t.Fatal(err)
		}
	})
	f := openFile(t, fname)
	ga := f.Attributes()
	if v, _ := ga.Get("one"); !reflect.DeepEqual(v, float64(9.5)) {
		t.Error("one-element attribute should collapse:", v)
	}
	if v, _ := ga.Get("two"); !reflect.DeepEqual(v, []float64{9.5, -9.5}) {
		t.Error("two:", v)
	}
	if v, _ := ga.Get("scalar"); !reflect.DeepEqual(v, float64(3)) {
		t.Error("scalar:", v)
	}
}

func TestEmptyFile(t *testing.T) {
	fname := genFile(t, func(w *Writer) {})
	f := openFile(t, fname)
	if len(f.ListVariables()) != 0 || len(f.ListDimensions()) != 0 {
		t.Error("unexpected contents:", f.ListVariables(), f.ListDimensions())
	}
	if len(f.Attributes().Keys()) != 0 {
		t.Error("unexpected attributes:", f.Attributes().Keys())
	}
	if _, has := f.GetDimension("x"); has {
		t.Error("found a dimension in an empty file")
	}
}

func TestUnlimited(t *testing.T) {
	moment := []int16{
		10, 11, 12,
		20, 21, 22,
		30, 31, 32,
		40, 41, 42,
	}
	vals := wantList{
		{"time", Variable{Values: []float64{0, 1, 2, 3}, Dimensions: []string{"time"}},
			[]float64{0, 1, 2, 3}, []int{4}},
		{"azimuth", Variable{Values: []float32{0, 90, 180, 270}, Dimensions: []string{"time"}},
			[]float32{0, 90, 180, 270}, []int{4}},
		{"DBZ", Variable{Values: moment, Dimensions: []string{"time", "range"}, Shape: []int{4, 3}},
			moment, []int{4, 3}},
		{"range", Variable{Values: []float32{100, 200, 300}, Dimensions: []string{"range"}},
			[]float32{100, 200, 300}, []int{3}},
	}
	fname := genFile(t, func(w *Writer) {
		if err := w.Unlimited("time"); err != nil {
			t.Fatal(err)
		}
		addAll(t, w, vals)
	})
	f := openFile(t, fname)
	vals.check(t, f)

	if !reflect.DeepEqual(f.ListDimensions(), []string{"time", "range"}) {
		t.Error("dimensions:", f.ListDimensions())
	}
	if n, has := f.GetDimension("time"); !has || n != 4 {
		t.Error("record count:", n, has)
	}
	if n, has := f.GetDimension("range"); !has || n != 3 {
		t.Error("range length:", n, has)
	}

	v, err := f.Var("DBZ")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v.Dimensions(), []string{"time", "range"}) {
		t.Error("DBZ dimensions:", v.Dimensions())
	}
	if v.Len() != 4 || v.Size() != 12 {
		t.Error("DBZ sizes:", v.Len(), v.Size())
	}
	for _, tc := range []struct {
		start, count int
	}{
		{0, 0}, {0, 1}, {0, 4}, {1, 2}, {3, 1}, {2, 2},
	} {
		got, err := v.ReadRows(tc.start, tc.count)
		if err != nil {
			t.Error(tc.start, tc.count, err)
			continue
		}
		want := moment[tc.start*3 : (tc.start+tc.count)*3]
		if !reflect.DeepEqual(got, want) {
			t.Errorf("rows %d+%d: got %v, want %v", tc.start, tc.count, got, want)
		}
	}
	az, err := f.Var("azimuth")
	if err != nil {
		t.Fatal(err)
	}
	got, err := az.ReadRows(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []float32{180, 270}) {
		t.Error("azimuth rows:", got)
	}

	for _, tc := range []struct {
		start, count int
	}{
		{3, 2}, {-1, 2}, {0, 5}, {5, 0},
	} {
		if _, err := v.ReadRows(tc.start, tc.count); !errors.Is(err, ErrInvalidSlice) {
			t.Error("rows", tc.start, tc.count, "should be out of range:", err)
		}
	}
}

func TestUnlimitedSpecialCase(t *testing.T) {
	// A lone short record variable is stored without record padding.
	vals := []int16{5, 6, 7, 8, 9}
	fname := genFile(t, func(w *Writer) {
		if err := w.Unlimited("t"); err != nil {
			t.Fatal(err)
		}
		if err := w.AddVar("v", Variable{Values: vals, Dimensions: []string{"t"}}); err != nil {
			t.Fatal(err)
		}
	})
	f := openFile(t, fname)
	if n, has := f.GetDimension("t"); !has || n != 5 {
		t.Error("record count:", n, has)
	}
	v, err := f.Var("v")
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, vals) {
		t.Error("payload:", got)
	}
	got, err = v.ReadRows(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, vals[1:4]) {
		t.Error("rows:", got)
	}
}

func TestReadRowsFixed(t *testing.T) {
	vals := make([]uint8, 20)
	for i := range vals {
		vals[i] = uint8(i)
	}
	fname := genFile(t, func(w *Writer) {
		err := w.AddVar("grid", Variable{
			Values:     vals,
			Dimensions: []string{"y", "x"},
			Shape:      []int{4, 5},
		})
		if err != nil {
			t.Fatal(err)
		}
	})
	f := openFile(t, fname)
	v, err := f.Var("grid")
	if err != nil {
		t.Fatal(err)
	}
	for size := 0; size <= 4; size++ {
		for start := 0; start+size <= 4; start++ {
			got, err := v.ReadRows(start, size)
			if err != nil {
				t.Error(start, size, err)
				continue
			}
			want := vals[start*5 : (start+size)*5]
			if !reflect.DeepEqual(got, want) {
				t.Errorf("rows %d+%d: got %v, want %v", start, size, got, want)
			}
		}
	}
	if _, err := v.ReadRows(4, 1); !errors.Is(err, ErrInvalidSlice) {
		t.Error("out of range read:", err)
	}
}

func TestFillValues(t *testing.T) {
	cases := []struct {
		name string
		vr   Variable
		cut  int64
		want any
	}{
		{"byte", Variable{Values: []int8{1, 2}}, 4,
			[]int8{-0x7f, -0x7f}},
		{"ubyte", Variable{Values: []uint8{1, 2}}, 4,
			[]uint8{0xff, 0xff}},
		{"char", Variable{Values: "ab"}, 4,
			[]byte{0, 0}},
		{"short", Variable{Values: []int16{1, 2}}, 4,
			[]int16{-0x7fff, -0x7fff}},
		{"ushort", Variable{Values: []uint16{1, 2}}, 4,
			[]uint16{0xffff, 0xffff}},
		{"int", Variable{Values: []int32{1, 2}}, 8,
			[]int32{-0x7fffffff, -0x7fffffff}},
		{"uint", Variable{Values: []uint32{1, 2}}, 8,
			[]uint32{0xffffffff, 0xffffffff}},
		{"float", Variable{Values: []float32{1, 2}}, 8,
			[]float32{math.Float32frombits(0x7cf00000), math.Float32frombits(0x7cf00000)}},
		{"double", Variable{Values: []float64{1, 2}}, 16,
			[]float64{math.Float64frombits(0x479e000000000000), math.Float64frombits(0x479e000000000000)}},
		{"int64", Variable{Values: []int64{1, 2}}, 16,
			[]int64{-0x7ffffffffffffffe, -0x7ffffffffffffffe}},
		{"uint64", Variable{Values: []uint64{1, 2}}, 16,
			[]uint64{0xfffffffffffffffe, 0xfffffffffffffffe}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fname := genFile(t, func(w *Writer) {
				if err := w.AddVar("v", tc.vr); err != nil {
					t.Fatal(err)
				}
			})
			// Cut the payload off the end so every element reads back
			// as the default fill for the type.
			fi, err := os.Stat(fname)
			if err != nil {
				t.Fatal(err)
			}
			if err := os.Truncate(fname, fi.Size()-tc.cut); err != nil {
				t.Fatal(err)
			}
			f := openFile(t, fname)
			v, err := f.Var("v")
			if err != nil {
				t.Fatal(err)
			}
			got, err := v.ReadAll()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeclaredFillValue(t *testing.T) {
	attrs, err := NewAttrMap([]string{"_FillValue"}, map[string]any{"_FillValue": int16(-999)})
	if err != nil {
		t.Fatal(err)
	}
	fname := genFile(t, func(w *Writer) {
		if err := w.AddVar("v", Variable{Values: []int16{1, 2, 3, 4}, Attrs: attrs}); err != nil {
			t.Fatal(err)
		}
	})
	fi, err := os.Stat(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(fname, fi.Size()-4); err != nil {
		t.Fatal(err)
	}
	f := openFile(t, fname)
	v, err := f.Var("v")
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int16{1, 2, -999, -999}) {
		t.Error("got", got)
	}
}

func TestFillValueWrongType(t *testing.T) {
	attrs, err := NewAttrMap([]string{"_FillValue"}, map[string]any{"_FillValue": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	fname := genFile(t, func(w *Writer) {
		if err := w.AddVar("v", Variable{Values: []int16{1, 2}, Attrs: attrs}); err != nil {
			t.Fatal(err)
		}
	})
	f := openFile(t, fname)
	v, err := f.Var("v")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.ReadAll(); !errors.Is(err, ErrFillValue) {
		t.Error("mistyped _FillValue:", err)
	}
}

func TestNotCDF(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "junk.nc")
	if err := os.WriteFile(fname, []byte("\x89HDF\r\n\x1a\nmore header"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(fname); !errors.Is(err, ErrNotCDF) {
		t.Error("HDF5 magic:", err)
	}
	if err := os.WriteFile(fname, []byte("CDF\x03junkjunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(fname); !errors.Is(err, ErrUnknownVersion) {
		t.Error("bad version:", err)
	}
	if err := os.WriteFile(fname, []byte("CD"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(fname); err == nil {
		t.Error("truncated magic accepted")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.nc")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestHiddenAttributes(t *testing.T) {
	attrs, err := NewAttrMap(
		[]string{"_NCProperties", "title"},
		map[string]any{
			"_NCProperties": "version=2,netcdf=4.7.4",
			"title":         "volume scan",
		})
	if err != nil {
		t.Fatal(err)
	}
	fname := genFile(t, func(w *Writer) {
		if err := w.AddGlobalAttrs(attrs); err != nil {
			t.Fatal(err)
		}
	})
	f := openFile(t, fname)
	ga := f.Attributes()
	if !reflect.DeepEqual(ga.Keys(), []string{"title"}) {
		t.Error("keys:", ga.Keys())
	}
	// Hidden, not gone.
	if v, has := ga.Get("_NCProperties"); !has || v != "version=2,netcdf=4.7.4" {
		t.Error("_NCProperties:", v, has)
	}
}

func TestVersionByte(t *testing.T) {
	magic := func(fname string) string {
		b, err := os.ReadFile(fname)
		if err != nil {
			t.Fatal(err)
		}
		return string(b[:4])
	}
	v2 := genFile(t, func(w *Writer) {
		if err := w.AddVar("x", Variable{Values: []float32{1, 2}}); err != nil {
			t.Fatal(err)
		}
	})
	if magic(v2) != "CDF\x02" {
		t.Errorf("signed types: %q", magic(v2))
	}
	v5 := genFile(t, func(w *Writer) {
		if err := w.AddVar("x", Variable{Values: []uint32{1, 2}}); err != nil {
			t.Fatal(err)
		}
	})
	if magic(v5) != "CDF\x05" {
		t.Errorf("unsigned values: %q", magic(v5))
	}
	// An unsigned attribute alone promotes the format.
	attrs, err := NewAttrMap([]string{"flags"}, map[string]any{"flags": []uint16{3}})
	if err != nil {
		t.Fatal(err)
	}
	v5attr := genFile(t, func(w *Writer) {
		if err := w.AddGlobalAttrs(attrs); err != nil {
			t.Fatal(err)
		}
		if err := w.AddVar("x", Variable{Values: []float32{1, 2}}); err != nil {
			t.Fatal(err)
		}
	})
	if magic(v5attr) != "CDF\x05" {
		t.Errorf("unsigned attribute: %q", magic(v5attr))
	}
	f := openFile(t, v5attr)
	if v, _ := f.Attributes().Get("flags"); !reflect.DeepEqual(v, uint16(3)) {
		t.Error("flags:", v)
	}
}

func TestWriterErrors(t *testing.T) {
	w, err := OpenWriter(filepath.Join(t.TempDir(), "w.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.AddVar("bad/name", Variable{Values: []int8{1}}); !errors.Is(err, ErrInvalidName) {
		t.Error("slash in name:", err)
	}
	if err := w.AddVar("float", Variable{Values: []int8{1}}); !errors.Is(err, ErrInvalidName) {
		t.Error("type keyword as name:", err)
	}
	if err := w.Unlimited("bad/dim"); !errors.Is(err, ErrInvalidName) {
		t.Error("slash in dimension name:", err)
	}
	if err := w.AddVar("empty", Variable{Values: []float32{}}); !errors.Is(err, ErrEmptySlice) {
		t.Error("empty slice:", err)
	}
	if err := w.AddVar("mis", Variable{Values: []int32{1, 2, 3}, Shape: []int{2, 2}}); !errors.Is(err, ErrShapeMismatch) {
		t.Error("shape mismatch:", err)
	}
	if err := w.AddVar("a", Variable{Values: []float32{1, 2}, Dimensions: []string{"d"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.AddVar("a", Variable{Values: []float32{1, 2}}); !errors.Is(err, ErrDuplicateVariable) {
		t.Error("duplicate variable:", err)
	}
	if err := w.AddVar("b", Variable{Values: []float32{1, 2, 3}, Dimensions: []string{"d"}}); !errors.Is(err, ErrDimensionSize) {
		t.Error("dimension reused with a new length:", err)
	}
	if err := w.Unlimited("t"); err != nil {
		t.Fatal(err)
	}
	if err := w.AddVar("c", Variable{
		Values:     []float32{1, 2, 3, 4},
		Dimensions: []string{"d", "t"},
		Shape:      []int{2, 2},
	}); !errors.Is(err, ErrUnlimitedMustBeFirst) {
		t.Error("record dimension not first:", err)
	}
	if err := w.AddVar("r1", Variable{Values: []float32{1, 2, 3}, Dimensions: []string{"t"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.AddVar("r2", Variable{Values: []float32{1, 2}, Dimensions: []string{"t"}}); !errors.Is(err, ErrDimensionSize) {
		t.Error("record count changed:", err)
	}
}

func TestCloseTwice(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "c.nc")
	w, err := OpenWriter(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddVar("x", Variable{Values: []float32{1}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Error("second writer close:", err)
	}
	f, err := Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Error("second reader close:", err)
	}
}
