package cdf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/batchatco/go-thrower"

	"github.com/windvane/go-cfradial/internal"
)

// Variable describes one variable to write. Values is a flat slice in
// row-major order, a string, a []string or a scalar. Shape gives the
// dimension lengths and may be omitted for scalars, strings and 1-D
// slices. Dimension names missing from Dimensions are generated.
type Variable struct {
	Values     any
	Dimensions []string
	Shape      []int
	Attrs      *AttrMap
}

type savedVar struct {
	name     string
	val      any // a flat slice after normalization
	ty       int
	shape    []int64 // the record dimension holds the row count here
	rowElems int64
	record   bool
	dimNames []string
	attrs    *AttrMap
	patchAt  int64 // header position of the begin field
	begin    int64
}

type countedWriter struct {
	w     *bufio.Writer
	count int64
}

func (c *countedWriter) Count() int64 {
	return c.count
}

func (c *countedWriter) Flush() error {
	return c.w.Flush()
}

func (c *countedWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += int64(n)
	return n, err
}

// Writer builds a classic NetCDF file. Variables and attributes are
// collected by AddVar and AddGlobalAttrs; Close lays out the header,
// the fixed variables and then the interleaved records, and patches the
// data offsets into the header.
type Writer struct {
	file          *os.File
	bf            *countedWriter
	vars          []savedVar
	globalAttrs   *AttrMap
	dimLengths    map[string]int64
	dimNames      []string
	dimIDs        map[string]int64
	nextID        int64
	unlimitedName string
	numRecs       int64
	hasRecords    bool
	version       int8
}

var (
	ErrUnlimitedMustBeFirst = errors.New("unlimited dimension must be first")
	ErrEmptySlice           = errors.New("empty slice encountered")
	ErrDimensionSize        = errors.New("dimension doesn't match size")
	ErrInvalidName          = errors.New("invalid name")
	ErrShapeMismatch        = errors.New("shape doesn't match value length")
)

// OpenWriter creates fileName and returns a Writer for it. The version
// written is v2, promoted to v5 when unsigned or 64-bit values are
// added.
func OpenWriter(fileName string) (*Writer, error) {
	file, err := os.Create(fileName)
	if err != nil {
		return nil, err
	}
	bf := bufio.NewWriter(file)
	w := &Writer{
		file:       file,
		bf:         &countedWriter{bf, 0},
		dimLengths: make(map[string]int64),
		dimIDs:     make(map[string]int64),
		version:    2,
	}
	return w, nil
}

// Unlimited declares name as the record dimension. Call it before
// adding variables that use the dimension; a record variable must have
// it first. A file has at most one record dimension.
func (w *Writer) Unlimited(name string) error {
	if !internal.IsValidNetCDFName(name) {
		return ErrInvalidName
	}
	if w.unlimitedName != "" && w.unlimitedName != name {
		return ErrDimensionSize
	}
	if _, has := w.dimLengths[name]; has && w.unlimitedName != name {
		return ErrDimensionSize
	}
	if w.unlimitedName == name {
		return nil
	}
	w.unlimitedName = name
	w.dimLengths[name] = 0
	w.dimIDs[name] = w.nextID
	w.dimNames = append(w.dimNames, name)
	w.nextID++
	return nil
}

func hasValidNames(am *AttrMap) bool {
	if am == nil {
		return true
	}
	for _, key := range am.Keys() {
		if !internal.IsValidNetCDFName(key) {
			return false
		}
	}
	return true
}

func (w *Writer) AddGlobalAttrs(attrs *AttrMap) error {
	if !hasValidNames(attrs) {
		return ErrInvalidName
	}
	w.checkV5Attributes(attrs)
	w.globalAttrs = attrs
	return nil
}

// AddVar stages a variable. Dimensions are registered as they appear
// and shared by name across variables; reusing a name with a different
// length is an error.
func (w *Writer) AddVar(name string, vr Variable) (err error) {
	defer thrower.RecoverError(&err)
	if !internal.IsValidNetCDFName(name) {
		return ErrInvalidName
	}
	if !hasValidNames(vr.Attrs) {
		return ErrInvalidName
	}
	for i := range w.vars {
		if w.vars[i].name == name {
			return ErrDuplicateVariable
		}
	}
	w.checkV5Attributes(vr.Attrs)

	val, ty, shape := w.normalize(vr.Values, vr.Shape)

	dims := append([]string{}, vr.Dimensions...)
	if len(dims) > len(shape) {
		return ErrDimensionSize
	}
	record := false
	for i := 0; i < len(shape); i++ {
		if i >= len(dims) {
			dims = append(dims, "")
		}
		dimName := dims[i]
		if dimName == "" {
			if ty == typeChar && i == len(shape)-1 {
				dimName = fmt.Sprintf("_stringlen_%s", name)
			} else {
				dimName = fmt.Sprintf("_dimid_%d", w.nextID)
			}
			dims[i] = dimName
		}
		dlen := shape[i]
		if w.unlimitedName != "" && dimName == w.unlimitedName {
			if i != 0 {
				thrower.Throw(ErrUnlimitedMustBeFirst)
			}
			if w.hasRecords && w.numRecs != dlen {
				thrower.Throw(ErrDimensionSize)
			}
			w.numRecs = dlen
			w.hasRecords = true
			record = true
			continue
		}
		if dlen == 0 {
			thrower.Throw(ErrEmptySlice)
		}
		current, has := w.dimLengths[dimName]
		if has {
			if current != dlen {
				thrower.Throw(ErrDimensionSize)
			}
		} else {
			w.dimLengths[dimName] = dlen
			w.dimIDs[dimName] = w.nextID
			w.dimNames = append(w.dimNames, dimName)
			w.nextID++
		}
	}
	rowElems := int64(1)
	for i := 1; i < len(shape); i++ {
		rowElems *= shape[i]
	}
	w.vars = append(w.vars, savedVar{
		name:     name,
		val:      val,
		ty:       ty,
		shape:    shape,
		rowElems: rowElems,
		record:   record,
		dimNames: dims,
		attrs:    vr.Attrs,
	})
	return nil
}

func shapeFor(n int, shape []int) []int64 {
	if len(shape) == 0 {
		if n == 0 {
			thrower.Throw(ErrEmptySlice)
		}
		return []int64{int64(n)}
	}
	sh := make([]int64, len(shape))
	prod := int64(1)
	for i, s := range shape {
		if s < 0 {
			thrower.Throw(ErrShapeMismatch)
		}
		sh[i] = int64(s)
		prod *= int64(s)
	}
	if prod != int64(n) {
		thrower.Throw(ErrShapeMismatch)
	}
	return sh
}

// normalize turns the accepted value forms into a flat slice plus a
// type code and shape. Strings become char arrays; a []string becomes a
// two-dimensional char array padded to the longest string; scalars
// become one-element slices with an empty shape.
func (w *Writer) normalize(values any, shape []int) (any, int, []int64) {
	switch t := values.(type) {
	case string:
		b := []byte(t)
		return b, typeChar, shapeFor(len(b), shape)

	case []string:
		if len(t) == 0 {
			thrower.Throw(ErrEmptySlice)
		}
		maxLen := 0
		for _, s := range t {
			if len(s) > maxLen {
				maxLen = len(s)
			}
		}
		if maxLen == 0 {
			thrower.Throw(ErrEmptySlice)
		}
		if len(shape) != 0 && !(len(shape) == 2 &&
			shape[0] == len(t) && shape[1] == maxLen) {
			thrower.Throw(ErrShapeMismatch)
		}
		b := make([]byte, 0, len(t)*maxLen)
		for _, s := range t {
			b = append(b, s...)
			b = append(b, make([]byte, maxLen-len(s))...)
		}
		return b, typeChar, []int64{int64(len(t)), int64(maxLen)}
	}

	rv := reflect.ValueOf(values)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		ty := w.scalarKind(rv.Type().Elem().Kind())
		if ty == typeNone {
			logger.Info("unknown element type", rv.Type().Elem().Kind())
			thrower.Throw(ErrUnknownType)
		}
		return values, ty, shapeFor(rv.Len(), shape)

	default:
		ty := w.scalarKind(rv.Kind())
		if ty == typeNone {
			logger.Info("unknown type", rv.Kind())
			thrower.Throw(ErrUnknownType)
		}
		if len(shape) != 0 {
			thrower.Throw(ErrShapeMismatch)
		}
		sl := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		sl.Index(0).Set(rv)
		return sl.Interface(), ty, nil
	}
}

func (w *Writer) scalarKind(goKind reflect.Kind) int {
	switch goKind {
	case reflect.Int8:
		return typeByte

	case reflect.Int16:
		return typeShort

	case reflect.Int32:
		return typeInt

	case reflect.Float32:
		return typeFloat

	case reflect.Float64:
		return typeDouble

		// v5
	case reflect.Uint8:
		w.version = 5
		return typeUByte

	case reflect.Uint16:
		w.version = 5
		return typeUShort

	case reflect.Uint32:
		w.version = 5
		return typeUInt

	case reflect.Uint64:
		w.version = 5
		return typeUInt64

	case reflect.Int64:
		w.version = 5
		return typeInt64
	}
	// not a scalar
	return typeNone
}

func (w *Writer) checkV5Attributes(attrs *AttrMap) {
	if attrs == nil {
		return
	}
	for _, k := range attrs.Keys() {
		v, _ := attrs.Get(k)
		switch v.(type) {
		case uint8, []uint8, uint16, []uint16, uint32, []uint32,
			int64, []int64, uint64, []uint64:
			w.version = 5
		}
	}
}

func attrPayload(v any) (int32, int64, any) {
	switch t := v.(type) {
	case string:
		return typeChar, int64(len(t)), []byte(t)
	case int8:
		return typeByte, 1, []int8{t}
	case []int8:
		return typeByte, int64(len(t)), t
	case int16:
		return typeShort, 1, []int16{t}
	case []int16:
		return typeShort, int64(len(t)), t
	case int32:
		return typeInt, 1, []int32{t}
	case []int32:
		return typeInt, int64(len(t)), t
	case float32:
		return typeFloat, 1, []float32{t}
	case []float32:
		return typeFloat, int64(len(t)), t
	case float64:
		return typeDouble, 1, []float64{t}
	case []float64:
		return typeDouble, int64(len(t)), t
	case uint8:
		return typeUByte, 1, []uint8{t}
	case []uint8:
		return typeUByte, int64(len(t)), t
	case uint16:
		return typeUShort, 1, []uint16{t}
	case []uint16:
		return typeUShort, int64(len(t)), t
	case uint32:
		return typeUInt, 1, []uint32{t}
	case []uint32:
		return typeUInt, int64(len(t)), t
	case int64:
		return typeInt64, 1, []int64{t}
	case []int64:
		return typeInt64, int64(len(t)), t
	case uint64:
		return typeUInt64, 1, []uint64{t}
	case []uint64:
		return typeUInt64, int64(len(t)), t
	}
	logger.Warnf("unknown attribute type %T", v)
	thrower.Throw(ErrUnknownType)
	panic("not reached")
}

func (w *Writer) writeAttributes(attrs *AttrMap) {
	if attrs == nil || len(attrs.Keys()) == 0 {
		write32(w.bf, 0)   // attributes: absent
		w.writeNumber(0)   // attributes: absent
		return
	}
	write32(w.bf, fieldAttribute)
	w.writeNumber(int64(len(attrs.Keys())))
	for _, k := range attrs.Keys() {
		v, _ := attrs.Get(k)
		w.writeName(k)
		ty, count, payload := attrPayload(v)
		write32(w.bf, ty)
		w.writeNumber(count)
		writeAny(w.bf, payload)
		w.pad()
	}
}

func (w *Writer) writeVar(sv *savedVar, special bool) {
	w.writeName(sv.name)
	w.writeNumber(int64(len(sv.shape)))
	for _, dimName := range sv.dimNames {
		w.writeNumber(w.dimIDs[dimName])
	}
	w.writeAttributes(sv.attrs)
	write32(w.bf, int32(sv.ty))
	vsize := int64(elemSize(uint32(sv.ty)))
	for i, n := range sv.shape {
		if sv.record && i == 0 {
			continue
		}
		vsize *= n
	}
	// vsize is padded, except for a lone small record variable whose
	// records are stored unpadded.
	if !(sv.record && special) {
		vsize = roundInt64(vsize)
	}
	w.writeNumber(vsize)
	sv.patchAt = w.bf.Count()
	write64(w.bf, 0) // patched on Close
}

func roundInt64(i int64) int64 {
	return (i + 3) &^ 0x3
}

func (w *Writer) pad() {
	offset := w.bf.Count()
	extra := roundInt64(offset) - offset
	if extra > 0 {
		zero := [3]byte{}
		writeBytes(w.bf, zero[:extra])
	}
}

func (w *Writer) writeFixedData(sv *savedVar) {
	sv.begin = w.bf.Count()
	writeAny(w.bf, sv.val)
	w.pad()
}

func (w *Writer) writeRow(sv *savedVar, r int64) {
	val := reflect.ValueOf(sv.val)
	row := val.Slice(int(r*sv.rowElems), int((r+1)*sv.rowElems)).Interface()
	writeAny(w.bf, row)
}

func (w *Writer) writeRecords(special bool) {
	var recs []*savedVar
	for i := range w.vars {
		if w.vars[i].record {
			recs = append(recs, &w.vars[i])
		}
	}
	if len(recs) == 0 {
		return
	}
	for r := int64(0); r < w.numRecs; r++ {
		for _, sv := range recs {
			if r == 0 {
				sv.begin = w.bf.Count()
			}
			w.writeRow(sv, r)
			if !special {
				w.pad()
			}
		}
	}
}

func (w *Writer) specialRecordCase() bool {
	nRecordVars := 0
	small := false
	for i := range w.vars {
		if !w.vars[i].record {
			continue
		}
		nRecordVars++
		small = elemSize(uint32(w.vars[i].ty)) <= 2
	}
	return nRecordVars == 1 && small
}

func (w *Writer) writeAll() {
	writeBytes(w.bf, []byte("CDF"))
	write8(w.bf, w.version)
	w.writeNumber(w.numRecs)
	if len(w.dimNames) > 0 {
		write32(w.bf, fieldDimension)
		w.writeNumber(int64(len(w.dimNames)))
		for _, name := range w.dimNames {
			w.writeName(name)
			w.writeNumber(w.dimLengths[name]) // the record dimension is 0
		}
	} else {
		write32(w.bf, 0) // dimensions: absent
		w.writeNumber(0) // dimensions: absent
	}
	w.writeAttributes(w.globalAttrs)
	if len(w.vars) > 0 {
		write32(w.bf, fieldVariable)
		w.writeNumber(int64(len(w.vars)))
		special := w.specialRecordCase()
		for i := range w.vars {
			w.writeVar(&w.vars[i], special)
		}
		for i := range w.vars {
			if !w.vars[i].record {
				w.writeFixedData(&w.vars[i])
			}
		}
		w.writeRecords(special)
	} else {
		write32(w.bf, 0) // variables: absent
		w.writeNumber(0) // variables: absent
	}
}

// Close writes the staged file and closes it. It is safe to call more
// than once.
func (w *Writer) Close() (err error) {
	defer thrower.RecoverError(&err)
	if w.file == nil {
		return nil
	}
	w.writeAll()
	err = w.bf.Flush()
	thrower.ThrowIfError(err)
	// Patch the begin offsets now that the layout is final.
	for i := range w.vars {
		sv := &w.vars[i]
		_, err := w.file.Seek(sv.patchAt, io.SeekStart)
		thrower.ThrowIfError(err)
		write64(w.file, sv.begin)
	}
	err = w.file.Close()
	w.file = nil
	return err
}

func writeAny(w io.Writer, data any) {
	err := binary.Write(w, binary.BigEndian, data)
	thrower.ThrowIfError(err)
}

func writeBytes(w io.Writer, b []byte) {
	err := binary.Write(w, binary.BigEndian, b)
	thrower.ThrowIfError(err)
}

func write8(w io.Writer, i int8) {
	data := byte(i)
	err := binary.Write(w, binary.BigEndian, &data)
	thrower.ThrowIfError(err)
}

func write32(w io.Writer, i int32) {
	err := binary.Write(w, binary.BigEndian, &i)
	thrower.ThrowIfError(err)
}

func write64(w io.Writer, i int64) {
	err := binary.Write(w, binary.BigEndian, &i)
	thrower.ThrowIfError(err)
}

func (w *Writer) writeName(name string) {
	// name length, then the name, padded
	w.writeNumber(int64(len(name)))
	writeBytes(w.bf, []byte(name))
	w.pad()
}

func (w *Writer) writeNumber(n int64) {
	if w.version < 5 {
		write32(w.bf, int32(n))
	} else {
		write64(w.bf, n)
	}
}
