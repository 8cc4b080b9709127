// Package cdf reads and writes NetCDF classic files in the v1 (classic),
// v2 (64-bit offset) and v5 (64-bit data) formats, with no cgo.
//
// Variable payloads come back as flat typed slices in row-major order
// together with the variable's shape. Radar moment fields are large
// two-dimensional arrays, and the flat layout lets callers address rays
// and gates by stride without a re-nesting copy. ReadRows reads a
// contiguous run of rows along the first dimension, which is how sweeps
// are carved out of a volume without touching the rest of the file.
package cdf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/batchatco/go-thrower"

	"github.com/windvane/go-cfradial/internal"
)

const (
	fieldDimension = 0x0000000a
	fieldVariable  = 0x0000000b
	fieldAttribute = 0x0000000c
)

const (
	typeNone = iota // never stored in a file, only a sentinel
	typeByte        // go int8
	typeChar        // go byte; attributes of this type read back as string
	typeShort
	typeInt
	typeFloat
	typeDouble

	// v5
	typeUByte
	typeUShort
	typeUInt
	typeInt64
	typeUInt64
)

const ncpKey = "_NCProperties"

const maxDimensions = 1024

type dimension struct {
	name      string
	dimLength uint64 // 64 bits in v5; 0 marks the record dimension
}

type variable struct {
	name   string
	dimids []uint64
	attrs  *AttrMap
	vType  uint32
	vsize  int64  // bytes per record for record variables, total bytes otherwise
	begin  uint64 // 32 bits in v1, 64 bits in v2 and v5
}

type ReadSeekerCloser interface {
	io.ReadSeeker
	io.Closer
}

// File is an open classic-format NetCDF file. A File is not safe for
// concurrent use: readers share one seek cursor. Open one File per
// goroutine instead.
type File struct {
	file        ReadSeekerCloser
	version     uint8
	numRecs     uint64 // 64 bits in v5
	recSize     uint64
	dimensions  []dimension
	globalAttrs *AttrMap
	varNames    []string
	vars        map[string]*variable
	specialCase bool
}

var (
	ErrNotCDF                = errors.New("not a CDF file")
	ErrUnknownVersion        = errors.New("unknown CDF version")
	ErrUnknownType           = errors.New("unknown type")
	ErrCorruptedFile         = errors.New("corrupted file")
	ErrNotFound              = errors.New("not found")
	ErrNoStreamingDimensions = errors.New("streaming dimensions not supported")
	ErrInternal              = errors.New("internal error")
	ErrDuplicateVariable     = errors.New("duplicate variable")
	ErrTooManyDimensions     = errors.New("too many dimensions")
	ErrFillValue             = errors.New("invalid fill value")
	ErrInvalidSlice          = errors.New("invalid slice parameters")
)

var logger = internal.NewLogger()

// SetLogLevel sets the package log level and returns the old one. The
// messages are for debugging the decoder itself. Level 0 prints errors
// only, level 1 adds warnings (the default) and level 2 adds info.
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
	return int(old)
}

func fail(message string, err error) {
	logger.Error(message)
	thrower.Throw(err)
}

func assert(condition bool, message string, err error) {
	if condition {
		return
	}
	fail(message, err)
}

func readBytes(r io.Reader, nBytes uint64) []byte {
	b := make([]byte, nBytes)
	err := binary.Read(r, binary.BigEndian, b)
	thrower.ThrowIfError(err)
	return b
}

func readAny(r io.Reader, data any) {
	err := binary.Read(r, binary.BigEndian, data)
	thrower.ThrowIfError(err)
}

func read8(r io.Reader) byte {
	var data byte
	err := binary.Read(r, binary.BigEndian, &data)
	thrower.ThrowIfError(err)
	return data
}

func read32(r io.Reader) uint32 {
	var data uint32
	err := binary.Read(r, binary.BigEndian, &data)
	thrower.ThrowIfError(err)
	return data
}

func read64(r io.Reader) uint64 {
	var data uint64
	err := binary.Read(r, binary.BigEndian, &data)
	thrower.ThrowIfError(err)
	return data
}

func seekTo(f io.Seeker, offset int64) {
	_, err := f.Seek(offset, io.SeekStart)
	thrower.ThrowIfError(err)
}

// V5 only
func (f *File) checkVersion(requiredVersion int) {
	assert(f.version >= uint8(requiredVersion),
		"invalid type for this file version",
		ErrCorruptedFile)
}

// Rounds up to the next int boundary.
func roundInt32(i uint64) uint64 {
	return (i + 3) & ^uint64(0x3)
}

// Open opens the named file and parses its header. No payload bytes are
// read until a Var read.
func Open(fname string) (*File, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	f, err := New(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return f, nil
}

// New reads a classic NetCDF file from rs. On success the returned File
// owns rs and closes it on Close.
func New(rs ReadSeekerCloser) (f *File, err error) {
	defer thrower.RecoverError(&err)
	f = &File{file: rs}
	if err := f.readHeader(); err != nil {
		return nil, err
	}
	return f, nil
}

// Close releases the underlying file. It is safe to call more than once.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Attributes returns the global attributes in file order.
func (f *File) Attributes() *AttrMap {
	return f.globalAttrs
}

// ListVariables lists the variable names in file order.
func (f *File) ListVariables() []string {
	return append([]string{}, f.varNames...)
}

// ListDimensions lists the dimension names in file order.
func (f *File) ListDimensions() []string {
	var ret []string
	for _, d := range f.dimensions {
		ret = append(ret, d.name)
	}
	return ret
}

// GetDimension returns the length of the named dimension. The record
// dimension reports the current record count.
func (f *File) GetDimension(name string) (uint64, bool) {
	for _, d := range f.dimensions {
		if d.name == name {
			if d.dimLength == 0 {
				return f.numRecs, true
			}
			return d.dimLength, true
		}
	}
	return 0, false
}

func (f *File) readNumber(bf io.Reader) uint64 {
	if f.version < 5 {
		n := read32(bf)
		// The casts do sign extension.
		return uint64(int64(int32(n)))
	}
	return read64(bf)
}

func (f *File) readName(bf io.Reader) string {
	nameLen := f.readNumber(bf)
	b := readBytes(bf, roundInt32(nameLen))
	for i := uint64(0); i < nameLen; i++ {
		if b[i] == 0 {
			logger.Warnf("null found in name %q %d %d version %d",
				string(b[:nameLen]), nameLen, i, f.version)
			nameLen = i
			break
		}
	}
	return string(b[:nameLen])
}

func (f *File) getNElems(bf io.Reader, expectedField uint32) uint64 {
	fieldType := read32(bf)
	nElems := f.readNumber(bf)
	switch fieldType {
	case 0: // field absent
		assert(nElems == 0,
			fmt.Sprint("corrupted file, elems with absent field, expected: ",
				expectedField, nElems),
			ErrCorruptedFile)
	case expectedField:
		break
	default:
		fail(fmt.Sprint("corrupted file, unexpected field: ", fieldType),
			ErrCorruptedFile)
	}
	return nElems
}

func attrVals[T any](bf io.Reader, nvals uint64) any {
	vals := make([]T, nvals)
	readAny(bf, vals)
	if nvals == 1 {
		return vals[0]
	}
	return vals
}

func (f *File) getAttr(bf io.Reader) (string, any) {
	name := f.readName(bf)
	vType := read32(bf)
	nvals := f.readNumber(bf)
	nread := uint64(0)
	var values any
	switch vType {
	case typeByte:
		values = attrVals[int8](bf, nvals)
		nread = nvals

	case typeChar:
		// A char array reads back as a string.
		b := make([]byte, nvals)
		readAny(bf, b)
		values = string(b)
		nread = nvals

	case typeShort:
		values = attrVals[int16](bf, nvals)
		nread = 2 * nvals

	case typeInt:
		values = attrVals[int32](bf, nvals)
		nread = 4 * nvals

	case typeFloat:
		values = attrVals[float32](bf, nvals)
		nread = 4 * nvals

	case typeDouble:
		values = attrVals[float64](bf, nvals)
		nread = 8 * nvals

	case typeUByte:
		f.checkVersion(5)
		values = attrVals[uint8](bf, nvals)
		nread = nvals

	case typeUShort:
		f.checkVersion(5)
		values = attrVals[uint16](bf, nvals)
		nread = 2 * nvals

	case typeUInt:
		f.checkVersion(5)
		values = attrVals[uint32](bf, nvals)
		nread = 4 * nvals

	case typeInt64:
		f.checkVersion(5)
		values = attrVals[int64](bf, nvals)
		nread = 8 * nvals

	case typeUInt64:
		f.checkVersion(5)
		values = attrVals[uint64](bf, nvals)
		nread = 8 * nvals

	default:
		fail(fmt.Sprint("corrupted file, unknown type: ", vType),
			ErrCorruptedFile)
	}
	// padding
	for nread&0x3 != 0 {
		_ = read8(bf)
		nread++
	}
	return name, values
}

func (f *File) getAttrList(bf io.Reader) *AttrMap {
	nElems := f.getNElems(bf, fieldAttribute)
	attrs := newAttrMap()
	for i := uint64(0); i < nElems; i++ {
		name, val := f.getAttr(bf)
		attrs.Add(name, val)
	}
	return attrs
}

func (f *File) getDim(bf io.Reader) dimension {
	name := f.readName(bf)
	dimLength := f.readNumber(bf)
	return dimension{name, dimLength}
}

func (f *File) hasUnlimitedDimension(dimids []uint64) bool {
	return len(dimids) > 0 && f.dimensions[dimids[0]].dimLength == 0
}

func (f *File) getVar(bf io.Reader) *variable {
	name := f.readName(bf)
	nDims := f.readNumber(bf)
	assert(nDims <= maxDimensions,
		"too many dimensions",
		ErrTooManyDimensions)
	dimids := make([]uint64, nDims)
	for i := uint64(0); i < nDims; i++ {
		id := f.readNumber(bf)
		assert(id < uint64(len(f.dimensions)),
			fmt.Sprint(name, " dimension id out of range: ", id),
			ErrCorruptedFile)
		dimids[i] = id
	}
	attrs := f.getAttrList(bf)
	vType := read32(bf)
	vsize := f.readNumber(bf)
	usedVsize := vsize
	if f.hasUnlimitedDimension(dimids) {
		// The header vsize of a record variable is padded. Record reads
		// need the bytes actually used per record.
		n := uint64(1)
		for i := 1; i < len(dimids); i++ {
			n *= f.dimensions[dimids[i]].dimLength
		}
		n *= uint64(elemSize(vType))
		f.recSize += vsize
		usedVsize = n
	}
	var begin uint64
	switch f.version {
	case 1:
		begin = uint64(read32(bf))
	case 2, 5:
		begin = read64(bf)
	default:
		thrower.Throw(ErrInternal)
	}
	return &variable{name, dimids, attrs, vType, int64(usedVsize), begin}
}

func (f *File) readHeader() (err error) {
	defer thrower.RecoverError(&err)
	bf := io.Reader(bufio.NewReader(f.file))

	// magic
	b := readBytes(bf, 4)
	if string(b[:3]) != "CDF" {
		logger.Infof("not cdf: %q", string(b[:3]))
		thrower.Throw(ErrNotCDF)
	}
	version := b[3]
	switch version {
	case 1, 2, 5: // classic, 64-bit offset, 64-bit data
		break
	default:
		fail(fmt.Sprint("unknown version: ", version),
			ErrUnknownVersion)
	}
	f.version = version

	// numrecs
	numRecs := f.readNumber(bf)
	assert(numRecs != 0xffffffffffffffff,
		"streaming not supported",
		ErrNoStreamingDimensions)
	f.numRecs = numRecs

	// dim list
	nDims := f.getNElems(bf, fieldDimension)
	assert(nDims <= maxDimensions,
		"too many dimensions",
		ErrTooManyDimensions)
	if nDims > 0 {
		f.dimensions = make([]dimension, nDims)
		for i := uint64(0); i < nDims; i++ {
			f.dimensions[i] = f.getDim(bf)
		}
	}

	// gatt list
	f.globalAttrs = f.getAttrList(bf)
	f.globalAttrs.Hide(ncpKey)

	// var list
	nVars := f.getNElems(bf, fieldVariable)
	f.vars = make(map[string]*variable, nVars)
	var recordVars []*variable
	for i := uint64(0); i < nVars; i++ {
		v := f.getVar(bf)
		if _, has := f.vars[v.name]; has {
			return ErrDuplicateVariable
		}
		if f.hasUnlimitedDimension(v.dimids) {
			recordVars = append(recordVars, v)
		}
		f.vars[v.name] = v
		f.varNames = append(f.varNames, v.name)
	}
	switch len(recordVars) {
	case 0:
		assert(f.recSize == 0,
			fmt.Sprint("no record variables, record size should be zero: ", f.recSize),
			ErrInternal)
	case 1:
		// A lone byte-width or short-width record variable is stored
		// without padding between records.
		switch recordVars[0].vType {
		case typeByte, typeUByte, typeChar, typeShort, typeUShort:
			f.recSize = uint64(recordVars[0].vsize)
			f.specialCase = true
		}
	default:
		newRecSize := roundInt32(f.recSize)
		if newRecSize != f.recSize {
			logger.Info("rounded recsize=", newRecSize, "orig=", f.recSize)
			f.recSize = newRecSize
		}
	}
	return nil
}

// Var is a handle to one variable of a File.
type Var struct {
	f         *File
	v         *variable
	dimNames  []string
	shape     []int
	unlimited bool
	rowElems  int64 // elements per row along the first dimension
}

// Var returns a handle to the named variable, consulting the header
// only. It returns ErrNotFound for unknown names.
func (f *File) Var(name string) (v *Var, err error) {
	defer thrower.RecoverError(&err)
	vr, has := f.vars[name]
	if !has {
		return nil, ErrNotFound
	}
	dimNames := make([]string, len(vr.dimids))
	shape := make([]int, len(vr.dimids))
	unlimited := false
	rowElems := int64(1)
	for i, dimid := range vr.dimids {
		dim := f.dimensions[dimid]
		n := dim.dimLength
		if n == 0 {
			assert(i == 0,
				"unlimited dimension must be first",
				ErrCorruptedFile)
			unlimited = true
			n = f.numRecs
		}
		dimNames[i] = dim.name
		shape[i] = int(n)
		if i > 0 {
			rowElems *= int64(n)
		}
	}
	return &Var{
		f:         f,
		v:         vr,
		dimNames:  dimNames,
		shape:     shape,
		unlimited: unlimited,
		rowElems:  rowElems,
	}, nil
}

func (v *Var) Name() string { return v.v.name }

// Shape returns the dimension lengths. The record dimension reports the
// current record count. Scalars have an empty shape.
func (v *Var) Shape() []int {
	return append([]int{}, v.shape...)
}

// Dimensions returns the dimension names.
func (v *Var) Dimensions() []string {
	return append([]string{}, v.dimNames...)
}

// Attributes returns the variable's attributes in file order.
func (v *Var) Attributes() *AttrMap { return v.v.attrs }

// Type returns the on-disk type using CDL names (short, float, ...).
func (v *Var) Type() string { return cdlType(v.v.vType) }

// GoType returns the element type of the slices ReadAll and ReadRows
// return.
func (v *Var) GoType() string { return goType(v.v.vType) }

// Len returns the length of the first dimension, or 1 for scalars.
func (v *Var) Len() int {
	if len(v.shape) == 0 {
		return 1
	}
	return v.shape[0]
}

// Size returns the total element count.
func (v *Var) Size() int {
	n := 1
	for _, s := range v.shape {
		n *= s
	}
	return n
}

// ReadAll reads the whole payload as a flat typed slice in row-major
// order. Scalars come back as slices of length one.
func (v *Var) ReadAll() (any, error) {
	return v.ReadRows(0, v.Len())
}

// ReadRows reads rows [start, start+count) along the first dimension as
// a flat typed slice in row-major order, without touching other rows.
// Reading a scalar is ReadRows(0, 1).
func (v *Var) ReadRows(start, count int) (data any, err error) {
	defer thrower.RecoverError(&err)
	if start < 0 || count < 0 || start+count > v.Len() {
		return nil, ErrInvalidSlice
	}
	esz := int64(elemSize(v.v.vType))
	nElems := int64(count) * v.rowElems
	sizeInBytes := nElems * esz

	var bf io.Reader
	if v.unlimited && !v.f.specialCase {
		bf = v.f.newRecordReader(v.v, int64(start), int64(count))
	} else {
		byteStart := int64(start) * v.rowElems * esz
		seekTo(v.f.file, int64(v.v.begin)+byteStart)
		bf = bufio.NewReader(v.f.file)
	}
	bf = io.LimitReader(makeFillReader(v.v, bf), sizeInBytes)

	switch v.v.vType {
	case typeByte:
		data = make([]int8, nElems)
	case typeChar:
		data = make([]byte, nElems)
	case typeShort:
		data = make([]int16, nElems)
	case typeInt:
		data = make([]int32, nElems)
	case typeFloat:
		data = make([]float32, nElems)
	case typeDouble:
		data = make([]float64, nElems)
	case typeUByte:
		data = make([]uint8, nElems)
	case typeUShort:
		data = make([]uint16, nElems)
	case typeUInt:
		data = make([]uint32, nElems)
	case typeInt64:
		data = make([]int64, nElems)
	case typeUInt64:
		data = make([]uint64, nElems)
	default:
		fail("unknown type", ErrUnknownType)
	}
	if err := binary.Read(bf, binary.BigEndian, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Seeks and reads bytes.
type seekReader struct {
	file   io.ReadSeeker
	offset int64
	reader io.Reader
}

func (sr *seekReader) Read(p []byte) (int, error) {
	if sr.reader == nil {
		seekTo(sr.file, sr.offset)
		sr.reader = bufio.NewReader(sr.file)
	}
	return sr.reader.Read(p)
}

func newSeekReader(file io.ReadSeeker, offset int64) io.Reader {
	return &seekReader{file: file, offset: offset, reader: nil}
}

// Record variables interleave per record: record r of variable v lives
// at v.begin + r*recSize and spans the bytes the variable uses in one
// record.
func (f *File) newRecordReader(v *variable, startRow, countRows int64) io.Reader {
	readers := make([]io.Reader, 0, countRows)
	for r := startRow; r < startRow+countRows; r++ {
		offset := int64(v.begin) + r*int64(f.recSize)
		readers = append(readers,
			io.LimitReader(newSeekReader(f.file, offset), v.vsize))
	}
	return io.MultiReader(readers...)
}

func elemSize(vType uint32) int {
	switch vType {
	case typeByte, typeUByte, typeChar:
		return 1
	case typeShort, typeUShort:
		return 2
	case typeInt, typeUInt, typeFloat:
		return 4
	case typeDouble, typeInt64, typeUInt64:
		return 8
	}
	thrower.Throw(ErrUnknownType)
	panic("not reached")
}

func cdlType(vType uint32) string {
	switch vType {
	case typeByte:
		return "byte"
	case typeChar:
		return "char"
	case typeShort:
		return "short"
	case typeInt:
		return "int"
	case typeFloat:
		return "float"
	case typeDouble:
		return "double"
	case typeUByte:
		return "ubyte"
	case typeUShort:
		return "ushort"
	case typeUInt:
		return "uint"
	case typeInt64:
		return "int64"
	case typeUInt64:
		return "uint64"
	}
	fail("unknown type", ErrUnknownType)
	panic("not reached")
}

func goType(vType uint32) string {
	switch vType {
	case typeByte:
		return "int8"
	case typeChar, typeUByte:
		return "uint8"
	case typeShort:
		return "int16"
	case typeInt:
		return "int32"
	case typeFloat:
		return "float32"
	case typeDouble:
		return "float64"
	case typeUShort:
		return "uint16"
	case typeUInt:
		return "uint32"
	case typeInt64:
		return "int64"
	case typeUInt64:
		return "uint64"
	}
	fail("unknown type", ErrUnknownType)
	panic("not reached")
}

func beBytes(v any) []byte {
	var buf bytes.Buffer
	err := binary.Write(&buf, binary.BigEndian, v)
	thrower.ThrowIfError(err)
	return buf.Bytes()
}

// makeFillReader tops up a short payload with the variable's fill value:
// the declared _FillValue attribute or the NetCDF default for the type.
func makeFillReader(v *variable, bf io.Reader) io.Reader {
	userFV, hasUserFV := v.attrs.Get("_FillValue")
	var pattern []byte
	switch v.vType {
	case typeFloat:
		fv := math.Float32frombits(0x7cf00000)
		if hasUserFV {
			x, ok := userFV.(float32)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	case typeDouble:
		fv := math.Float64frombits(0x479e000000000000)
		if hasUserFV {
			x, ok := userFV.(float64)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	case typeByte:
		fv := int8(-0x7f) // 0x81
		if hasUserFV {
			x, ok := userFV.(int8)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = []byte{byte(fv)}

	case typeUByte:
		fv := uint8(0xff)
		if hasUserFV {
			x, ok := userFV.(uint8)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = []byte{fv}

	case typeChar:
		fv := byte(0x00)
		if hasUserFV {
			x, ok := userFV.(string)
			assert(ok && len(x) == 1, "fill value has wrong type", ErrFillValue)
			fv = x[0]
		}
		pattern = []byte{fv}

	case typeShort:
		fv := int16(-0x7fff) // 0x8001
		if hasUserFV {
			x, ok := userFV.(int16)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	case typeUShort:
		fv := uint16(0xffff)
		if hasUserFV {
			x, ok := userFV.(uint16)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	case typeInt:
		fv := int32(-0x7fffffff) // 0x80000001
		if hasUserFV {
			x, ok := userFV.(int32)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	case typeUInt:
		fv := uint32(0xffffffff)
		if hasUserFV {
			x, ok := userFV.(uint32)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	case typeInt64:
		fv := int64(-0x7ffffffffffffffe) // 0x8000000000000002
		if hasUserFV {
			x, ok := userFV.(int64)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	case typeUInt64:
		fv := uint64(0xfffffffffffffffe)
		if hasUserFV {
			x, ok := userFV.(uint64)
			assert(ok, "fill value has wrong type", ErrFillValue)
			fv = x
		}
		pattern = beBytes(fv)

	default:
		thrower.Throw(ErrInternal)
	}
	return io.MultiReader(bf, internal.NewRepeatReader(pattern))
}
