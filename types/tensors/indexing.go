package tensors

import (
	"reflect"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/tensordict/types/indexing"
	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/xslices"
)

// Index returns a new tensor with the selection described by the index
// expression. The expression may contain one Ellipsis; axes not covered by it
// are taken in full. The resulting shape always matches
// indexing.InferShape over the normalized expression.
//
// Indexing a meta tensor returns a meta tensor: only shapes are computed.
// The RequiresGrad mark is propagated to the result.
func (t *Tensor) Index(axes ...indexing.Axis) *Tensor {
	t.AssertValid()
	dims := t.shape.Dimensions
	expanded := indexing.ExpandEllipsis(dims, axes...)
	resultDims := indexing.InferShape(dims, expanded...)
	resultShape := shapes.Make(t.shape.DType, resultDims...)
	if t.isMeta {
		return MetaFromShape(resultShape).SetRequiresGrad(t.requiresGrad)
	}
	result := FromShape(resultShape)
	result.requiresGrad = t.requiresGrad
	if resultShape.IsZeroSize() {
		return result
	}
	if isZipIndex(dims, expanded) {
		t.gatherZip(result, expanded)
	} else {
		t.gatherWalk(result, expanded)
	}
	return result
}

// SetIndex assigns value to the selection described by the index expression,
// in place. The shape of value must match exactly the shape Index would
// return for the same expression (dtype included).
func (t *Tensor) SetIndex(value *Tensor, axes ...indexing.Axis) {
	t.AssertValid()
	value.AssertValid()
	dims := t.shape.Dimensions
	expanded := indexing.ExpandEllipsis(dims, axes...)
	resultDims := indexing.InferShape(dims, expanded...)
	targetShape := shapes.Make(t.shape.DType, resultDims...)
	if !value.shape.Equal(targetShape) {
		exceptions.Panicf("cannot assign tensor of shape %s to selection of shape %s (tensor shape %s)",
			value.shape, targetShape, t.shape)
	}
	t.assertHasData()
	value.assertHasData()
	if targetShape.IsZeroSize() {
		return
	}
	if isZipIndex(dims, expanded) {
		t.scatterZip(value, expanded)
	} else {
		t.scatterWalk(value, expanded)
	}
}

// GatherRows returns a new tensor with the given rows of the leading axis, in
// order, possibly with repeats. Negative rows count from the end. An empty
// rows selection yields a tensor with leading dimension 0.
func (t *Tensor) GatherRows(rows []int) *Tensor {
	if len(rows) == 0 {
		t.AssertValid()
		if t.Rank() == 0 {
			exceptions.Panicf("GatherRows requires a tensor of rank >= 1, got shape %s", t.shape)
		}
		dims := xslices.Copy(t.shape.Dimensions)
		dims[0] = 0
		empty := shapes.Make(t.shape.DType, dims...)
		if t.isMeta {
			return MetaFromShape(empty).SetRequiresGrad(t.requiresGrad)
		}
		return FromShape(empty).SetRequiresGrad(t.requiresGrad)
	}
	return t.Index(indexing.Pick(rows...))
}

// ScatterRows assigns the rows of src to the given rows of the leading axis of
// t, in place. src must have dimensions {len(rows), t.Shape().Dimensions[1:]...}.
func (t *Tensor) ScatterRows(rows []int, src *Tensor) {
	if len(rows) == 0 {
		return
	}
	t.SetIndex(src, indexing.Pick(rows...))
}

// isZipIndex reports whether the normalized expression is a full-rank tuple of
// fancy indices, in which case all axes collapse into the shared index-array
// shape and selections are zipped instead of walked as an outer product.
func isZipIndex(dims []int, expanded []indexing.Axis) bool {
	if len(dims) == 0 || len(expanded) != len(dims) {
		return false
	}
	for _, axis := range expanded {
		if axis.Kind() != indexing.AxisPick && axis.Kind() != indexing.AxisMask {
			return false
		}
	}
	return true
}

// zipSelections resolves every fancy element of a full-rank fancy tuple into
// concrete positions, validating that they all select the same number of
// entries.
func (t *Tensor) zipSelections(expanded []indexing.Axis) [][]int {
	dims := t.shape.Dimensions
	selections := make([][]int, len(expanded))
	for axisIdx, axis := range expanded {
		selections[axisIdx] = axis.Indices(dims[axisIdx])
		if len(selections[axisIdx]) != len(selections[0]) {
			exceptions.Panicf("all tensor indices must have the same shape, got %d and %d selected entries",
				len(selections[axisIdx]), len(selections[0]))
		}
	}
	return selections
}

func (t *Tensor) gatherZip(result *Tensor, expanded []indexing.Axis) {
	selections := t.zipSelections(expanded)
	strides := t.LayoutStrides()
	srcV := reflect.ValueOf(t.flat)
	dstV := reflect.ValueOf(result.flat)
	for entry := 0; entry < len(selections[0]); entry++ {
		offset := 0
		for axisIdx, selection := range selections {
			offset += selection[entry] * strides[axisIdx]
		}
		dstV.Index(entry).Set(srcV.Index(offset))
	}
}

func (t *Tensor) scatterZip(value *Tensor, expanded []indexing.Axis) {
	selections := t.zipSelections(expanded)
	strides := t.LayoutStrides()
	srcV := reflect.ValueOf(value.flat)
	dstV := reflect.ValueOf(t.flat)
	for entry := 0; entry < len(selections[0]); entry++ {
		offset := 0
		for axisIdx, selection := range selections {
			offset += selection[entry] * strides[axisIdx]
		}
		dstV.Index(offset).Set(srcV.Index(entry))
	}
}

// walkSelections resolves the consuming elements of a normalized expression
// into per-axis position lists (At resolves to a single position), and returns
// the size of the contiguous trailing block left unconsumed.
func (t *Tensor) walkSelections(expanded []indexing.Axis) (selections [][]int, block int) {
	dims := t.shape.Dimensions
	next := 0
	for _, axis := range expanded {
		switch axis.Kind() {
		case indexing.AxisAt:
			selections = append(selections, []int{axis.Single(dims[next])})
			next++
		case indexing.AxisRange, indexing.AxisPick, indexing.AxisMask:
			selections = append(selections, axis.Indices(dims[next]))
			next++
		case indexing.AxisNewAxis:
			// Inserted axes have dimension 1 and don't affect the flat layout.
		default:
			exceptions.Panicf("cannot apply index element %s to tensor %s", axis, t.shape)
		}
	}
	block = 1
	for _, dim := range dims[next:] {
		block *= dim
	}
	return
}

func (t *Tensor) gatherWalk(result *Tensor, expanded []indexing.Axis) {
	selections, block := t.walkSelections(expanded)
	if block == 0 {
		return
	}
	strides := t.LayoutStrides()
	srcV := reflect.ValueOf(t.flat)
	dstV := reflect.ValueOf(result.flat)
	dst := 0
	var walk func(level, offset int)
	walk = func(level, offset int) {
		if level == len(selections) {
			reflect.Copy(dstV.Slice(dst, dst+block), srcV.Slice(offset, offset+block))
			dst += block
			return
		}
		for _, position := range selections[level] {
			walk(level+1, offset+position*strides[level])
		}
	}
	walk(0, 0)
}

func (t *Tensor) scatterWalk(value *Tensor, expanded []indexing.Axis) {
	selections, block := t.walkSelections(expanded)
	if block == 0 {
		return
	}
	strides := t.LayoutStrides()
	srcV := reflect.ValueOf(value.flat)
	dstV := reflect.ValueOf(t.flat)
	src := 0
	var walk func(level, offset int)
	walk = func(level, offset int) {
		if level == len(selections) {
			reflect.Copy(dstV.Slice(offset, offset+block), srcV.Slice(src, src+block))
			src += block
			return
		}
		for _, position := range selections[level] {
			walk(level+1, offset+position*strides[level])
		}
	}
	walk(0, 0)
}
