package indexing

import (
	"slices"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/tensordict/types/shapes"
)

// InferShape computes the dimensions resulting from indexing a tensor (or
// tensor dictionary batch) of the given dims with the index expression,
// without touching any data.
//
// The expression is expected to be free of Ellipsis elements -- see
// ExpandEllipsis. Indexing a probe tensor of the given dims with the same
// expression always yields exactly these dimensions.
//
// Rules, in order:
//
//   - A single At element drops the leading dimension.
//   - A single Mask element results in its true-count as the leading dimension.
//   - A single empty Pick element also drops the leading dimension.
//   - If every element is a fancy index (Pick or Mask) and there is one per
//     dimension, all index arrays must select the same shape (true-count for
//     masks), and the result is that shape: fancy indexing collapses all batch
//     axes.
//   - Otherwise elements are walked against dims left to right: ranges and
//     masks consume one dimension and contribute their selection count, picks
//     consume one dimension and contribute their full index-array dimensions
//     (more than one for a Reshape'd Pick), NewAxis contributes a new
//     dimension of 1, At consumes a dimension and contributes nothing.
//     Unconsumed trailing dimensions are appended unchanged.
//
// It panics with a descriptive message on unsupported elements, mismatched
// fancy-index shapes, or an expression with more consuming elements than dims
// has dimensions.
func InferShape(dims []int, axes ...Axis) []int {
	if len(axes) == 1 {
		if single, ok := inferSingle(dims, axes[0]); ok {
			return single
		}
	}

	if fancy, ok := inferAllFancy(dims, axes); ok {
		return fancy
	}

	var result []int
	next := 0 // Next dimension of dims to be consumed.
	consume := func(axis Axis) int {
		if next >= len(dims) {
			exceptions.Panicf("the shape %s is incompatible with the index %s",
				shapes.DimsString(dims), exprString(axes))
		}
		dim := dims[next]
		next++
		return dim
	}

	for _, axis := range axes {
		switch axis.Kind() {
		case AxisRange:
			dim := consume(axis)
			result = append(result, len(axis.Indices(dim)))
		case AxisPick:
			consume(axis)
			result = append(result, axis.Dims()...)
		case AxisMask:
			consume(axis)
			result = append(result, axis.TrueCount())
		case AxisNewAxis:
			result = append(result, 1)
		case AxisAt:
			consume(axis)
		default:
			exceptions.Panicf("batch dimensions cannot be computed for index element %s (in index %s)",
				axis, exprString(axes))
		}
	}
	result = append(result, dims[next:]...)
	return result
}

// inferSingle implements the single-element fast paths of InferShape.
func inferSingle(dims []int, axis Axis) ([]int, bool) {
	switch axis.Kind() {
	case AxisAt:
		if len(dims) == 0 {
			exceptions.Panicf("the shape %s is incompatible with the index (%s)", shapes.DimsString(dims), axis)
		}
		return slices.Clone(dims[1:]), true
	case AxisMask:
		result := []int{axis.TrueCount()}
		return append(result, dims[1:]...), true
	case AxisPick:
		pickDims := axis.Dims()
		if len(pickDims) == 1 && pickDims[0] == 0 {
			// An empty selection falls back to dropping the leading dimension.
			return slices.Clone(dims[1:]), true
		}
		if len(pickDims) == 1 {
			result := []int{pickDims[0]}
			return append(result, dims[1:]...), true
		}
	}
	return nil, false
}

// inferAllFancy handles a full-rank tuple of fancy indices: all index arrays
// must select the same shape, which becomes the result -- every batch axis is
// collapsed into the index-array shape. A Mask selects its true-count entries.
func inferAllFancy(dims []int, axes []Axis) ([]int, bool) {
	if len(axes) == 0 || len(axes) != len(dims) {
		return nil, false
	}
	for _, axis := range axes {
		if axis.Kind() != AxisPick && axis.Kind() != AxisMask {
			return nil, false
		}
	}
	selectedDims := func(axis Axis) []int {
		if axis.Kind() == AxisMask {
			return []int{axis.TrueCount()}
		}
		return axis.Dims()
	}
	first := selectedDims(axes[0])
	for _, axis := range axes[1:] {
		if !slices.Equal(selectedDims(axis), first) {
			exceptions.Panicf("all tensor indices must have the same shape, got %s and %s",
				shapes.DimsString(selectedDims(axis)), shapes.DimsString(first))
		}
	}
	return slices.Clone(first), true
}
