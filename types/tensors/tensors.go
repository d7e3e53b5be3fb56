// Package tensors implements a Tensor, the dense representation of a
// multi-dimensional array, and the small "array engine" the tensordict
// container builds on: flat data access, row-major indexing and assignment
// (see indexing.go in this package), leading-axis gather/scatter, and gob
// serialization.
//
// Tensors are defined by their shape (a data type and its axes' dimensions)
// and their content, stored as a flat (1D) Go slice of the dtype's Go type.
//
// There are various ways to construct a Tensor from local data:
//
//   - FromShape(shape shapes.Shape): a tensor with the given shape and zero values.
//   - FromScalarAndDimensions[T](value T, dimensions ...int): filled with a
//     replicated scalar value.
//   - FromFlatDataAndDimensions[T](data []T, dimensions ...int): set the
//     flattened values with the given data.
//   - FromValue[S](value S): conversion from a scalar or a (regular)
//     multidimensional Go slice, e.g. FromValue([][]float32{{1, 2}, {3, 5}}).
//
// Two special storage variants participate in the field dispatch of the
// tensordict container:
//
//   - Meta tensors (MetaFromShape) carry a shape but no data: indexing them
//     computes shapes only.
//   - Shared tensors (FromSharedFlatData) wrap a caller-owned flat slice
//     without copying; IsShared reports this, and mutating operations refuse
//     to reallocate the buffer away from its external owner.
//
// RequiresGrad is carried as plain metadata for the benefit of consumers that
// track differentiability per field -- no autodiff happens here.
package tensors

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/xslices"
)

// Tensor is a dense multidimensional array: a shape and a flat slice of the
// shape's dtype, laid out row-major.
//
// The zero value is invalid; use one of the From* constructors.
type Tensor struct {
	shape shapes.Shape

	// flat is a slice of the Go type of shape.DType, of length shape.Size().
	// nil for meta tensors.
	flat any

	// isShared marks flat as owned by an external party (no copy was made at
	// construction). isMeta marks a shape-only tensor.
	isShared bool
	isMeta   bool

	requiresGrad bool
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		panic(errors.New("invalid shape"))
	}
	size := shape.Size()
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size)
	return &Tensor{
		shape: shape,
		flat:  flatV.Interface(),
	}
}

// MetaFromShape returns a meta Tensor: it carries the shape but no data.
// Indexing a meta tensor computes the resulting shape without touching any
// buffer; any attempt to access its data panics.
func MetaFromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		panic(errors.New("invalid shape"))
	}
	return &Tensor{shape: shape, isMeta: true}
}

// FromScalarAndDimensions creates a tensor with the given dimensions, filled with the
// given scalar value replicated everywhere. The DType is inferred from the value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(dtypes.FromGenericsType[T](), dimensions...))
	MutableFlatData(t, func(flat []T) {
		xslices.FillSlice(flat, value)
	})
	return t
}

// FromScalar creates a scalar (rank-0) tensor with the given value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromScalarAndDimensions(value)
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the
// flattened values given in data. The data is copied. The DType is inferred from the data type.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	copyFlatConverting(reflect.ValueOf(t.flat), reflect.ValueOf(data))
	return t
}

// FromSharedFlatData creates a tensor wrapping the given flat slice without
// copying it: the storage stays shared with (and owned by) the caller, and
// Tensor.IsShared reports true. The DType is inferred from the data type.
func FromSharedFlatData[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromSharedFlatData(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	if shape.DType.GoType() != reflect.TypeOf(data).Elem() {
		exceptions.Panicf("FromSharedFlatData(%s): cannot share a %T buffer for dtype %s",
			shape, data, shape.DType)
	}
	return &Tensor{shape: shape, flat: data, isShared: true}
}

// Shape of the tensor, includes the DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// IsShared returns whether the underlying storage is shared with an external
// owner -- see FromSharedFlatData.
func (t *Tensor) IsShared() bool { return t.isShared }

// IsMeta returns whether this is a meta (shape-only) tensor -- see MetaFromShape.
func (t *Tensor) IsMeta() bool { return t.isMeta }

// RequiresGrad returns the gradient-tracking mark of the tensor. It is plain
// metadata carried along indexing operations.
func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// SetRequiresGrad sets the gradient-tracking mark. It returns the tensor to
// allow chaining.
func (t *Tensor) SetRequiresGrad(value bool) *Tensor {
	t.requiresGrad = value
	return t
}

// AssertValid panics if t is nil or if its shape is invalid.
func (t *Tensor) AssertValid() {
	if t == nil {
		panic(errors.New("Tensor is nil"))
	}
	if !t.shape.Ok() {
		panic(errors.New("Tensor shape is invalid"))
	}
}

// assertHasData panics for meta tensors on any data access.
func (t *Tensor) assertHasData() {
	t.AssertValid()
	if t.isMeta {
		exceptions.Panicf("meta tensor %s holds no data", t.shape)
	}
}

// ConstFlatData calls accessFn with the flattened data as a slice of the Go type
// corresponding to the DType. Even scalar values have a flattened data
// representation of one element.
//
// This provides accessFn with the actual Tensor data (not a copy): it must not
// be changed. See Tensor.MutableFlatData for a mutable version.
//
// It panics for meta tensors.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.assertHasData()
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flattened data as a slice of the Go
// type corresponding to the DType; the contents of the slice may be changed
// until accessFn returns.
//
// It panics for meta tensors.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	t.assertHasData()
	accessFn(t.flat)
}

// ConstFlatData is the "generics" version of Tensor.ConstFlatData. It panics
// if T doesn't match the tensor's dtype.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("ConstFlatData[%T] is incompatible with Tensor's dtype %s", v, t.shape.DType)
	}
	t.ConstFlatData(func(anyFlat any) {
		accessFn(anyFlat.([]T))
	})
}

// MutableFlatData is the "generics" version of Tensor.MutableFlatData. It
// panics if T doesn't match the tensor's dtype.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("MutableFlatData[%T] is incompatible with Tensor's dtype %s", v, t.shape.DType)
	}
	t.MutableFlatData(func(anyFlat any) {
		accessFn(anyFlat.([]T))
	})
}

// CopyFlatData returns a copy of the flat data of the Tensor. It panics if T
// doesn't match the tensor's dtype.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	var flatCopy []T
	ConstFlatData(t, func(flat []T) {
		flatCopy = xslices.Copy(flat)
	})
	return flatCopy
}

// ToScalar returns the value of a scalar (rank-0) Tensor.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	if !t.shape.IsScalar() {
		var v T
		exceptions.Panicf("ToScalar[%T] requires scalar Tensor, got shape %s instead", v, t.shape)
	}
	var value T
	ConstFlatData(t, func(flat []T) {
		value = flat[0]
	})
	return value
}

// LayoutStrides return the strides for each axis. This can be handy when
// manipulating the flat data.
func (t *Tensor) LayoutStrides() (strides []int) {
	rank := t.shape.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= t.shape.Dimensions[axis]
	}
	return
}

// Clone returns a deep copy of the tensor with owned (non-shared) storage.
// Meta tensors clone to meta tensors.
func (t *Tensor) Clone() *Tensor {
	t.AssertValid()
	var clone *Tensor
	if t.isMeta {
		clone = MetaFromShape(t.shape.Clone())
	} else {
		clone = FromShape(t.shape.Clone())
		reflect.Copy(reflect.ValueOf(clone.flat), reflect.ValueOf(t.flat))
	}
	clone.requiresGrad = t.requiresGrad
	return clone
}

// Reshape returns a tensor with the same flat data and the new dimensions. At
// most one dimension can be -1, in which case it is inferred from the size of
// the tensor. The data is shared with the receiver (a cheap metadata change).
func (t *Tensor) Reshape(dimensions ...int) *Tensor {
	t.AssertValid()
	newDims := inferReshapeDims(t.Size(), dimensions)
	return &Tensor{
		shape:        shapes.Make(t.shape.DType, newDims...),
		flat:         t.flat,
		isShared:     t.isShared,
		isMeta:       t.isMeta,
		requiresGrad: t.requiresGrad,
	}
}

// inferReshapeDims resolves an optional -1 dimension against the total size.
func inferReshapeDims(size int, dimensions []int) []int {
	newSize := 1
	inferAxis := -1
	for axis, dim := range dimensions {
		if dim == -1 {
			if inferAxis != -1 {
				exceptions.Panicf("Reshape(%v): only one dimension can be inferred", dimensions)
			}
			inferAxis = axis
		} else if dim >= 0 {
			newSize *= dim
		} else {
			exceptions.Panicf("Reshape(%v): invalid dimensions", dimensions)
		}
	}
	if !(size == newSize || (inferAxis != -1 && newSize > 0 && size%newSize == 0)) {
		exceptions.Panicf("Reshape(%v): incompatible with tensor size %d", dimensions, size)
	}
	newDims := xslices.Copy(dimensions)
	if inferAxis != -1 {
		newDims[inferAxis] = size / newSize
	}
	return newDims
}

// Equal checks whether t == other: shapes (dtype included) and every element.
// Meta tensors compare by shape only, and never equal a non-meta tensor.
func (t *Tensor) Equal(other *Tensor) bool {
	t.AssertValid()
	other.AssertValid()
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	if t.isMeta || other.isMeta {
		return t.isMeta && other.isMeta
	}
	equal := true
	t.ConstFlatData(func(flat0 any) {
		other.ConstFlatData(func(flat1 any) {
			flat0V, flat1V := reflect.ValueOf(flat0), reflect.ValueOf(flat1)
			for ii := 0; ii < flat0V.Len(); ii++ {
				if !flat0V.Index(ii).Equal(flat1V.Index(ii)) {
					equal = false
					return
				}
			}
		})
	})
	return equal
}

// InDelta checks whether Abs(t - other) < delta for every element. Shapes
// (dtype included) must match.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	t.AssertValid()
	other.AssertValid()
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	if t.shape.IsZeroSize() {
		return true
	}
	inDelta := true
	t.ConstFlatData(func(flat0 any) {
		other.ConstFlatData(func(flat1 any) {
			inDelta = xslices.SlicesInDelta(flat0, flat1, delta)
		})
	})
	return inDelta
}

// MaxSizeForString is the largest Tensor that is printed in full by String.
var MaxSizeForString = 500

// String converts to string, printing the values if the tensor is not too large.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if !t.shape.Ok() {
		return "Tensor(invalid shape)"
	}
	if t.isMeta {
		return fmt.Sprintf("%s: (meta)", t.shape)
	}
	if t.Size() > MaxSizeForString {
		return fmt.Sprintf("%s: (%d values)", t.shape, t.Size())
	}
	return fmt.Sprintf("%s: %v", t.shape, t.Value())
}

// Value returns a multidimensional slice (except if shape is a scalar)
// containing a copy of the values stored in the tensor. This is expensive, and
// usually only used for smaller tensors in tests and to print results.
func (t *Tensor) Value() any {
	t.assertHasData()
	flatV := reflect.ValueOf(t.flat)
	if t.shape.IsScalar() {
		return flatV.Index(0).Interface()
	}
	size := t.Size()
	flatCopyV := reflect.MakeSlice(flatV.Type(), size, size)
	reflect.Copy(flatCopyV, flatV)
	if t.shape.Rank() == 1 {
		return flatCopyV.Interface()
	}
	return convertDataToSlices(flatCopyV, t.shape.Dimensions...).Interface()
}

// MultiDimensionSlice lists the Go types FromValue accepts: scalars or
// multidimensional slices, up to rank 5. There are no recursions in generics'
// constraint definitions, so the levels are enumerated.
type MultiDimensionSlice interface {
	bool | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64 |
		[]bool | []int | []int8 | []int16 | []int32 | []int64 | []uint8 | []uint16 | []uint32 | []uint64 | []float32 | []float64 |
		[][]bool | [][]int | [][]int8 | [][]int16 | [][]int32 | [][]int64 | [][]uint8 | [][]uint16 | [][]uint32 | [][]uint64 | [][]float32 | [][]float64 |
		[][][]bool | [][][]int | [][][]int8 | [][][]int16 | [][][]int32 | [][][]int64 | [][][]uint8 | [][][]uint16 | [][][]uint32 | [][][]uint64 | [][][]float32 | [][][]float64 |
		[][][][]bool | [][][][]int | [][][][]int8 | [][][][]int16 | [][][][]int32 | [][][][]int64 | [][][][]uint8 | [][][][]uint16 | [][][][]uint32 | [][][][]uint64 | [][][][]float32 | [][][][]float64
}

// FromValue returns a Tensor constructed from the given multi-dimension slice
// (or scalar). If the rank of the value is larger than 1, the shape of all
// sub-slices must be the same.
//
// It panics if the shape is not regular.
func FromValue[S MultiDimensionSlice](value S) *Tensor {
	return FromAnyValue(value)
}

// FromAnyValue is a non-generic version of FromValue that returns a *Tensor.
// The input is expected to be either a scalar or a slice of slices with
// homogeneous dimensions. If the input is a tensor already, it is returned as is.
//
// It panics with an error if the value type is unsupported or the shape is not
// regular.
func FromAnyValue(value any) *Tensor {
	if valueT, ok := value.(*Tensor); ok {
		return valueT
	}
	shape, err := shapeForValue(value)
	if err != nil {
		panic(errors.Wrapf(err, "cannot create shape from %T", value))
	}
	t := FromShape(shape)
	flatV := reflect.ValueOf(t.flat)
	if shape.IsScalar() {
		flatV.Index(0).Set(reflect.ValueOf(value).Convert(flatV.Type().Elem()))
		return t
	}
	copySlicesRecursively(flatV, reflect.ValueOf(value), t.LayoutStrides())
	return t
}

// copySlicesRecursively copy values on a multi-dimension slice to a flat data
// slice assuming the strides for each dimension. Element types are converted
// if needed (e.g. Go `int` to the dtype's int64).
func copySlicesRecursively(data reflect.Value, mdSlice reflect.Value, strides []int) {
	if len(strides) == 1 {
		copyFlatConverting(data, mdSlice)
		return
	}
	numElements := mdSlice.Len()
	subStrides := strides[1:]
	for ii := 0; ii < numElements; ii++ {
		start := ii * strides[0]
		end := (ii + 1) * strides[0]
		copySlicesRecursively(data.Slice(start, end), mdSlice.Index(ii), subStrides)
	}
}

// copyFlatConverting copies a 1D slice into another, converting element types
// if they differ.
func copyFlatConverting(dst, src reflect.Value) {
	if dst.Type() == src.Type() {
		reflect.Copy(dst, src)
		return
	}
	elemT := dst.Type().Elem()
	for ii := 0; ii < src.Len(); ii++ {
		dst.Index(ii).Set(src.Index(ii).Convert(elemT))
	}
}

// convertDataToSlices takes data as a flat slice, and creates a
// multidimensional slice with the given dimensions that points to the given data.
func convertDataToSlices(dataV reflect.Value, dimensions ...int) reflect.Value {
	if len(dimensions) <= 1 {
		return dataV
	}
	resultT := dataV.Type().Elem()
	for range dimensions {
		resultT = reflect.SliceOf(resultT)
	}
	strides := make([]int, len(dimensions))
	currentStride := 1
	for axis := len(dimensions) - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= dimensions[axis]
	}
	return createSlicesRecursively(resultT, dataV, dimensions, strides)
}

// createSlicesRecursively recursively creates the nested slices pointing into
// the flat data, assuming the strides for each dimension.
func createSlicesRecursively(resultT reflect.Type, data reflect.Value, dimensions []int, strides []int) reflect.Value {
	if len(strides) == 1 {
		return data
	}
	numElements := dimensions[0]
	slice := reflect.MakeSlice(resultT, numElements, numElements)
	subStrides := strides[1:]
	subDimensions := dimensions[1:]
	subResultT := resultT.Elem()
	for ii := 0; ii < numElements; ii++ {
		start := ii * strides[0]
		end := (ii + 1) * strides[0]
		subSlice := createSlicesRecursively(subResultT, data.Slice(start, end), subDimensions, subStrides)
		slice.Index(ii).Set(subSlice)
	}
	return slice
}

func shapeForValue(v any) (shape shapes.Shape, err error) {
	err = shapeForValueRecursive(&shape, reflect.ValueOf(v), reflect.TypeOf(v))
	return
}

func shapeForValueRecursive(shape *shapes.Shape, v reflect.Value, t reflect.Type) error {
	if t.Kind() == reflect.Slice {
		t = t.Elem()
		shape.Dimensions = append(shape.Dimensions, v.Len())
		shapePrefix := shape.Clone()
		if v.Len() == 0 {
			return errors.Errorf("value with empty slice not valid for Tensor conversion: %v -- use FromShape for zero-sized tensors", v)
		}
		err := shapeForValueRecursive(shape, v.Index(0), t)
		if err != nil {
			return err
		}
		// All other elements must have the same shape as the first one.
		for ii := 1; ii < v.Len(); ii++ {
			shapeTest := shapePrefix.Clone()
			err = shapeForValueRecursive(&shapeTest, v.Index(ii), t)
			if err != nil {
				return err
			}
			if !shape.Equal(shapeTest) {
				return errors.Errorf("sub-slices have irregular shapes, found shapes %q, and %q", shape, shapeTest)
			}
		}
	} else if t.Kind() == reflect.Pointer {
		return errors.Errorf("cannot convert Pointer (%s) to a concrete value for tensors", t)
	} else {
		shape.DType = dtypes.FromGoType(t)
		if shape.DType == dtypes.InvalidDType {
			return errors.Errorf("cannot convert type %s to a concrete tensor type", t)
		}
	}
	return nil
}
