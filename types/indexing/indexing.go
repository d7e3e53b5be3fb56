// Package indexing defines Axis, one element of an index expression over the
// batch axes of a tensor or tensor dictionary, and the pure shape algebra over
// index expressions: ExpandEllipsis and InferShape.
//
// An index expression is a list of Axis values, one per axis being indexed
// (plus NewAxis insertions and at most one Ellipsis). Axis values are built
// with the constructor functions:
//
//   - At(i): a single integer index, the axis is dropped from the result;
//   - Range(start, stop), RangeToEnd(from), RangeFromStart(to), Full(): a
//     contiguous range, optionally with a Stride modifier;
//   - Pick(indices...): fancy indexing by a list of positions;
//   - Mask(values...): fancy indexing by a boolean mask over the axis;
//   - NewAxis(): inserts an axis of dimension 1;
//   - Ellipsis(): stands for as many Full() as needed to fill the remaining
//     axes.
//
// Ranges follow Python slice semantics: negative boundaries count from the end
// of the axis, out-of-range boundaries are clamped, and negative strides
// enumerate backwards. So Full().Stride(-1) reverses an axis.
//
// The functions here never touch data: they only compute the index tuple and
// the resulting dimensions. See types/tensors for the dense application and
// package jagged for the batched ragged application.
package indexing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
)

// AxisKind discriminates the variants of an Axis index element.
type AxisKind int

const (
	// AxisInvalid is the zero value of an Axis, not valid in an index expression.
	AxisInvalid AxisKind = iota

	// AxisAt indexes a single position, dropping the axis.
	AxisAt

	// AxisRange takes a contiguous (strided) range of the axis.
	AxisRange

	// AxisPick takes an arbitrary list of positions of the axis.
	AxisPick

	// AxisMask takes the positions of the axis where the boolean mask is true.
	AxisMask

	// AxisNewAxis inserts a new axis of dimension 1.
	AxisNewAxis

	// AxisEllipsis stands for as many Full() as needed to complete the index.
	AxisEllipsis
)

// String implements fmt.Stringer.
func (k AxisKind) String() string {
	switch k {
	case AxisAt:
		return "At"
	case AxisRange:
		return "Range"
	case AxisPick:
		return "Pick"
	case AxisMask:
		return "Mask"
	case AxisNewAxis:
		return "NewAxis"
	case AxisEllipsis:
		return "Ellipsis"
	default:
		return "Invalid"
	}
}

// Axis is one element of an index expression. Use the constructor functions
// (At, Range, Pick, Mask, NewAxis, Ellipsis) to create it; the zero value is
// invalid.
//
// Axis values are plain immutable values: the Stride and Reshape modifiers
// return modified copies.
type Axis struct {
	kind AxisKind

	// At.
	index int

	// Range. If full, start/stop are ignored; if noEnd, the range runs to the
	// end of the axis. stride 0 means 1.
	start, stop, stride int
	full, noEnd         bool

	// Pick. dims defaults to {len(picks)} and can be overridden by Reshape for
	// multidimensional fancy indices.
	picks []int
	dims  []int

	// Mask.
	mask []bool
}

// At returns an Axis indexing a single position: the axis is dropped from the
// result. Negative index counts from the end of the axis.
func At(index int) Axis {
	return Axis{kind: AxisAt, index: index}
}

// Range returns an Axis taking positions in [start, stop). Negative boundaries
// count from the end of the axis.
func Range(start, stop int) Axis {
	return Axis{kind: AxisRange, start: start, stop: stop}
}

// RangeToEnd returns an Axis taking positions from `from` to the end of the axis.
func RangeToEnd(from int) Axis {
	return Axis{kind: AxisRange, start: from, noEnd: true}
}

// RangeFromStart returns an Axis taking positions from the start of the axis to `to` (exclusive).
func RangeFromStart(to int) Axis {
	return Axis{kind: AxisRange, start: 0, stop: to}
}

// Full returns an Axis taking the axis in full.
func Full() Axis {
	return Axis{kind: AxisRange, full: true}
}

// Stride returns a copy of the range Axis with the given stride. A negative
// stride enumerates backwards. It panics on stride 0 or if the Axis is not a
// range.
func (axis Axis) Stride(stride int) Axis {
	if axis.kind != AxisRange {
		exceptions.Panicf("indexing.Axis.Stride is only valid for range elements, got %s", axis)
	}
	if stride == 0 {
		exceptions.Panicf("indexing.Axis.Stride(0): stride cannot be zero")
	}
	axis2 := axis
	axis2.stride = stride
	return axis2
}

// Pick returns an Axis taking the given positions of the axis, in order,
// possibly with repeats. Negative positions count from the end of the axis.
//
// An empty Pick is valid and selects nothing.
func Pick(indices ...int) Axis {
	return Axis{kind: AxisPick, picks: indices, dims: []int{len(indices)}}
}

// Reshape returns a copy of the Pick Axis declared with the given index-array
// dimensions -- the equivalent of indexing with a multidimensional integer
// tensor. The product of dims must match the number of picked indices.
func (axis Axis) Reshape(dims ...int) Axis {
	if axis.kind != AxisPick {
		exceptions.Panicf("indexing.Axis.Reshape is only valid for Pick elements, got %s", axis)
	}
	size := 1
	for _, dim := range dims {
		if dim < 0 {
			exceptions.Panicf("indexing.Axis.Reshape(%v): dimensions must be non-negative", dims)
		}
		size *= dim
	}
	if size != len(axis.picks) {
		exceptions.Panicf("indexing.Axis.Reshape(%v): dimensions size %d is incompatible with %d picked indices",
			dims, size, len(axis.picks))
	}
	axis2 := axis
	axis2.dims = dims
	return axis2
}

// Mask returns an Axis taking the positions of the axis where values is true.
// The mask length must match the dimension of the axis being indexed.
func Mask(values ...bool) Axis {
	return Axis{kind: AxisMask, mask: values}
}

// NewAxis returns an Axis that inserts a new axis of dimension 1, consuming no
// input axis.
func NewAxis() Axis {
	return Axis{kind: AxisNewAxis}
}

// Ellipsis returns the ellipsis marker Axis: it stands for as many Full() as
// needed to fill out the remaining axes. At most one is allowed per index
// expression.
func Ellipsis() Axis {
	return Axis{kind: AxisEllipsis}
}

// Kind returns the variant of the index element.
func (axis Axis) Kind() AxisKind { return axis.kind }

// Dims returns the dimensions of the index array for Pick and Mask elements,
// and nil for everything else. For Pick it is {len(indices)} unless changed by
// Reshape; for Mask it is {len(mask)}.
func (axis Axis) Dims() []int {
	switch axis.kind {
	case AxisPick:
		return axis.dims
	case AxisMask:
		return []int{len(axis.mask)}
	}
	return nil
}

// TrueCount returns the number of true entries of a Mask element.
func (axis Axis) TrueCount() (count int) {
	for _, value := range axis.mask {
		if value {
			count++
		}
	}
	return
}

// Single resolves an At element against the dimension of the axis it indexes,
// normalizing negatives. It panics for out-of-bounds indices or non-At elements.
func (axis Axis) Single(dim int) int {
	if axis.kind != AxisAt {
		exceptions.Panicf("indexing.Axis.Single is only valid for At elements, got %s", axis)
	}
	index := axis.index
	if index < 0 {
		index += dim
	}
	if index < 0 || index >= dim {
		exceptions.Panicf("index %d is out-of-bounds for axis with dimension %d", axis.index, dim)
	}
	return index
}

// Indices resolves a consuming Axis (Range, Pick or Mask) against the
// dimension of the axis it indexes and returns the concrete positions
// selected, in order. It panics for out-of-bounds picks, a mask whose length
// doesn't match dim, or non-consuming elements.
func (axis Axis) Indices(dim int) []int {
	switch axis.kind {
	case AxisRange:
		start, stop, stride := axis.rangeFor(dim)
		var indices []int
		if stride > 0 {
			for ii := start; ii < stop; ii += stride {
				indices = append(indices, ii)
			}
		} else {
			for ii := start; ii > stop; ii += stride {
				indices = append(indices, ii)
			}
		}
		return indices

	case AxisPick:
		indices := make([]int, len(axis.picks))
		for ii, pick := range axis.picks {
			index := pick
			if index < 0 {
				index += dim
			}
			if index < 0 || index >= dim {
				exceptions.Panicf("picked index %d is out-of-bounds for axis with dimension %d", pick, dim)
			}
			indices[ii] = index
		}
		return indices

	case AxisMask:
		if len(axis.mask) != dim {
			exceptions.Panicf("boolean mask length %d doesn't match the dimension %d of the axis it indexes",
				len(axis.mask), dim)
		}
		indices := make([]int, 0, axis.TrueCount())
		for ii, value := range axis.mask {
			if value {
				indices = append(indices, ii)
			}
		}
		return indices
	}
	exceptions.Panicf("indexing.Axis.Indices is not valid for %s elements", axis.kind)
	return nil
}

// rangeFor normalizes the range against the axis dimension, following Python
// slice.indices semantics: negative boundaries count from the end, boundaries
// are clamped to the valid range, and defaults depend on the stride sign.
func (axis Axis) rangeFor(dim int) (start, stop, stride int) {
	stride = axis.stride
	if stride == 0 {
		stride = 1
	}
	if axis.full {
		if stride > 0 {
			return 0, dim, stride
		}
		return dim - 1, -1, stride
	}

	start = axis.start
	if start < 0 {
		start += dim
	}
	stop = axis.stop
	if axis.noEnd {
		if stride > 0 {
			stop = dim
		} else {
			stop = -1 - dim // Clamped below.
		}
	} else if stop < 0 {
		stop += dim
	}

	if stride > 0 {
		start = min(max(start, 0), dim)
		stop = min(max(stop, 0), dim)
	} else {
		start = min(max(start, -1), dim-1)
		stop = min(max(stop, -1), dim-1)
	}
	return
}

// String implements fmt.Stringer, printing the element the way it would appear
// in a Python-style index expression.
func (axis Axis) String() string {
	switch axis.kind {
	case AxisAt:
		return strconv.Itoa(axis.index)
	case AxisRange:
		var b strings.Builder
		if axis.full {
			b.WriteString(":")
		} else {
			b.WriteString(strconv.Itoa(axis.start))
			b.WriteString(":")
			if !axis.noEnd {
				b.WriteString(strconv.Itoa(axis.stop))
			}
		}
		if axis.stride != 0 && axis.stride != 1 {
			b.WriteString(":")
			b.WriteString(strconv.Itoa(axis.stride))
		}
		return b.String()
	case AxisPick:
		return fmt.Sprintf("%v", axis.picks)
	case AxisMask:
		return fmt.Sprintf("%v", axis.mask)
	case AxisNewAxis:
		return "newaxis"
	case AxisEllipsis:
		return "..."
	}
	return "<invalid>"
}

// exprString prints a whole index expression for error messages.
func exprString(axes []Axis) string {
	parts := make([]string, len(axes))
	for ii, axis := range axes {
		parts[ii] = axis.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
