package jagged

import (
	"slices"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/gomlx/tensordict/types/indexing"
	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/tensors"
	"github.com/gomlx/tensordict/types/xslices"
)

// Index returns a new jagged tensor with the batch elements selected by the
// index element, in order, possibly with repeats. The new tensor owns fresh
// lengths, offsets and flat buffers.
//
// Indexing the batch dimension with a plain integer is rejected: a jagged
// tensor cannot drop its batch dimension. Use Pick with a single position to
// select a batch of one.
func (jt *Tensor) Index(axis indexing.Axis) *Tensor {
	if axis.Kind() == indexing.AxisAt {
		exceptions.Panicf(
			"indexing a jagged tensor batch dimension with an integer is not supported, "+
				"call Index(indexing.Pick(%d)) to select a batch of one instead", axis.Single(jt.BatchSize()))
	}
	rows := axis.Indices(jt.BatchSize())
	return jt.gatherBatch(rows)
}

func (jt *Tensor) gatherBatch(rows []int) *Tensor {
	numKeys := jt.NumKeys()
	batchSize := jt.BatchSize()
	newLengths := make([]int, numKeys*len(rows))
	var valueRows []int
	for keyIdx := 0; keyIdx < numKeys; keyIdx++ {
		for newBatchIdx, row := range rows {
			newLengths[keyIdx*len(rows)+newBatchIdx] = jt.current.lengths[keyIdx*batchSize+row]
			start, stop := jt.span(keyIdx, row)
			for pos := start; pos < stop; pos++ {
				valueRows = append(valueRows, pos)
			}
		}
	}
	values := jt.current.values.GatherRows(valueRows)
	var weights *tensors.Tensor
	if jt.current.weights != nil {
		weights = jt.current.weights.GatherRows(valueRows)
	}
	result, err := FromLengths(jt.keys, newLengths, values, weights)
	if err != nil {
		panic(err)
	}
	return result
}

// SetIndex overwrites the batch elements selected by the index element with
// the contents of other, in place. The keys of other must match jt's keys,
// in the same order, and other's batch size must match the number of selected
// elements. Spans may change length: the flat buffers are rebuilt and the new
// layout is installed atomically, so a panic partway through a write never
// leaves the tensor in a mixed state.
//
// Unlike reads, a plain integer index element is accepted and selects one
// batch element.
func (jt *Tensor) SetIndex(axis indexing.Axis, other *Tensor) {
	if !slices.Equal(jt.keys, other.keys) {
		exceptions.Panicf("mismatch of keys in jagged tensor assignment: %q and %q",
			jt.keys, other.keys)
	}
	batchSize := jt.BatchSize()
	var rows []int
	if axis.Kind() == indexing.AxisAt {
		rows = []int{axis.Single(batchSize)}
	} else {
		rows = axis.Indices(batchSize)
	}
	if other.BatchSize() != len(rows) {
		exceptions.Panicf("assigned jagged tensor has batch size %d, index selects %d elements",
			other.BatchSize(), len(rows))
	}
	if jt.DType() != other.DType() {
		exceptions.Panicf("assigned jagged tensor has dtype %s, target has dtype %s",
			other.DType(), jt.DType())
	}
	if (jt.current.weights == nil) != (other.current.weights == nil) {
		exceptions.Panicf("cannot assign between weighted and unweighted jagged tensors")
	}

	// Target position of each written row, last write wins for repeats.
	writtenBy := make(map[int]int, len(rows))
	for j, row := range rows {
		if row < 0 || row >= batchSize {
			exceptions.Panicf("batch element %d out-of-bounds for batch size %d", row, batchSize)
		}
		writtenBy[row] = j
	}

	numKeys := jt.NumKeys()
	newLengths := make([]int, len(jt.current.lengths))
	for keyIdx := 0; keyIdx < numKeys; keyIdx++ {
		for batchIdx := 0; batchIdx < batchSize; batchIdx++ {
			if j, ok := writtenBy[batchIdx]; ok {
				newLengths[keyIdx*batchSize+batchIdx] = other.current.lengths[keyIdx*len(rows)+j]
			} else {
				newLengths[keyIdx*batchSize+batchIdx] = jt.current.lengths[keyIdx*batchSize+batchIdx]
			}
		}
	}
	newOffsets := append([]int{0}, xslices.CumSum(newLengths)...)

	// Assemble the interleaving of kept and written spans as row gathers on
	// the two source buffers, then scatter both into fresh buffers.
	var keptSrc, keptDst, writtenSrc, writtenDst []int
	for keyIdx := 0; keyIdx < numKeys; keyIdx++ {
		for batchIdx := 0; batchIdx < batchSize; batchIdx++ {
			dst := newOffsets[keyIdx*batchSize+batchIdx]
			if j, ok := writtenBy[batchIdx]; ok {
				start, stop := other.span(keyIdx, j)
				for pos := start; pos < stop; pos++ {
					writtenSrc = append(writtenSrc, pos)
					writtenDst = append(writtenDst, dst)
					dst++
				}
			} else {
				start, stop := jt.span(keyIdx, batchIdx)
				for pos := start; pos < stop; pos++ {
					keptSrc = append(keptSrc, pos)
					keptDst = append(keptDst, dst)
					dst++
				}
			}
		}
	}

	rebuild := func(kept, written *tensors.Tensor) *tensors.Tensor {
		dims := xslices.Copy(kept.Shape().Dimensions)
		dims[0] = xslices.Last(newOffsets)
		fresh := tensors.FromShape(shapes.Make(kept.DType(), dims...))
		fresh.ScatterRows(keptDst, kept.GatherRows(keptSrc))
		fresh.ScatterRows(writtenDst, written.GatherRows(writtenSrc))
		return fresh
	}
	fresh := &buffers{
		lengths: newLengths,
		offsets: newOffsets,
		values:  rebuild(jt.current.values, other.current.values),
	}
	if jt.current.weights != nil {
		fresh.weights = rebuild(jt.current.weights, other.current.weights)
	}
	if klog.V(1).Enabled() {
		klog.Infof("jagged.SetIndex: rewrote %d of %d batch elements, values %s -> %s",
			len(rows), batchSize, jt.current.values.Shape(), fresh.values.Shape())
	}
	jt.current = fresh
}
