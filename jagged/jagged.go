// Package jagged implements a batched ragged tensor: a set of named keys over
// a shared batch dimension, where every (key, batch element) pair holds a
// variable-length span of a flat values buffer.
//
// The layout follows the usual "keyed jagged" representation: for K keys and
// batch size N, a lengths table conceptually shaped (K, N) and stored
// row-major gives the number of entries of each span, and an offsets table of
// K*N+1 cumulative sums locates them in the flat values (and optional
// weights) buffer.
//
// Layout invariant: offsets[0] == 0, offsets[i+1] == offsets[i] + lengths[i]
// and offsets[K*N] == number of rows of values (== of weights, when present).
// All constructors and mutating operations preserve it.
package jagged

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/tensors"
	"github.com/gomlx/tensordict/types/xslices"
)

// Tensor is a keyed jagged tensor. It is created with FromLengths or
// FromOffsets and mutated in place only by SetIndex.
//
// The zero value is not valid.
type Tensor struct {
	keys []string

	// current points to the active buffers. SetIndex assembles a fully formed
	// replacement and installs it with a single pointer assignment, so a
	// failed write never leaves the tensor with mixed old and new state.
	current *buffers
}

// buffers holds the jagged layout. It is immutable once installed in a Tensor.
type buffers struct {
	lengths []int // (K, N), row-major.
	offsets []int // K*N+1 cumulative sums of lengths.

	values  *tensors.Tensor
	weights *tensors.Tensor // Optional, same leading dimension as values.
}

// FromLengths creates a jagged tensor from its keys, per-span lengths and flat
// buffers. lengths must be shaped (len(keys), batchSize), row-major. weights
// is optional (may be nil); when given it must have the same leading dimension
// as values.
func FromLengths(keys []string, lengths []int, values, weights *tensors.Tensor) (*Tensor, error) {
	if len(keys) == 0 {
		return nil, errors.Errorf("jagged tensor requires at least one key")
	}
	if len(lengths)%len(keys) != 0 {
		return nil, errors.Errorf("len(lengths)=%d is not a multiple of the %d keys %q",
			len(lengths), len(keys), keys)
	}
	for ii, length := range lengths {
		if length < 0 {
			return nil, errors.Errorf("negative length %d at position %d", length, ii)
		}
	}
	offsets := append([]int{0}, xslices.CumSum(lengths)...)
	return fromOffsets(keys, xslices.Copy(lengths), offsets, values, weights)
}

// FromOffsets creates a jagged tensor from its keys, cumulative offsets and
// flat buffers. offsets must have len(keys)*batchSize+1 entries starting at 0.
// See FromLengths.
func FromOffsets(keys []string, offsets []int, values, weights *tensors.Tensor) (*Tensor, error) {
	if len(keys) == 0 {
		return nil, errors.Errorf("jagged tensor requires at least one key")
	}
	if len(offsets) == 0 || offsets[0] != 0 {
		return nil, errors.Errorf("offsets must start at 0, got %v", offsets)
	}
	if (len(offsets)-1)%len(keys) != 0 {
		return nil, errors.Errorf("len(offsets)=%d does not cover a multiple of the %d keys %q",
			len(offsets), len(keys), keys)
	}
	lengths := make([]int, len(offsets)-1)
	for ii := range lengths {
		lengths[ii] = offsets[ii+1] - offsets[ii]
		if lengths[ii] < 0 {
			return nil, errors.Errorf("offsets must be non-decreasing, got %d followed by %d",
				offsets[ii], offsets[ii+1])
		}
	}
	return fromOffsets(keys, lengths, xslices.Copy(offsets), values, weights)
}

func fromOffsets(keys []string, lengths, offsets []int, values, weights *tensors.Tensor) (*Tensor, error) {
	if values == nil || values.Rank() < 1 {
		return nil, errors.Errorf("values must be a tensor of rank >= 1")
	}
	total := xslices.Last(offsets)
	if values.Shape().Dimensions[0] != total {
		return nil, errors.Errorf("values has %d rows, lengths sum to %d",
			values.Shape().Dimensions[0], total)
	}
	if weights != nil && (weights.Rank() < 1 || weights.Shape().Dimensions[0] != total) {
		return nil, errors.Errorf("weights has shape %s, expected %d rows to match the lengths",
			weights.Shape(), total)
	}
	return &Tensor{
		keys: xslices.Copy(keys),
		current: &buffers{
			lengths: lengths,
			offsets: offsets,
			values:  values,
			weights: weights,
		},
	}, nil
}

// Keys returns the ordered keys of the jagged tensor. The returned slice must
// not be modified.
func (jt *Tensor) Keys() []string { return jt.keys }

// NumKeys returns the number of keys.
func (jt *Tensor) NumKeys() int { return len(jt.keys) }

// BatchSize returns the size N of the shared batch dimension.
func (jt *Tensor) BatchSize() int { return len(jt.current.lengths) / len(jt.keys) }

// Lengths returns the (K, N) row-major span lengths. The returned slice must
// not be modified.
func (jt *Tensor) Lengths() []int { return jt.current.lengths }

// Offsets returns the K*N+1 cumulative offsets. The returned slice must not
// be modified.
func (jt *Tensor) Offsets() []int { return jt.current.offsets }

// Values returns the flat values buffer.
func (jt *Tensor) Values() *tensors.Tensor { return jt.current.values }

// Weights returns the flat weights buffer, or nil for an unweighted tensor.
func (jt *Tensor) Weights() *tensors.Tensor { return jt.current.weights }

// DType of the values buffer.
func (jt *Tensor) DType() dtypes.DType { return jt.current.values.DType() }

// Shape returns the batch shape (batchSize) of the jagged tensor, with the
// dtype of the values buffer. The per-element span dimension is ragged and not
// part of the shape.
func (jt *Tensor) Shape() shapes.Shape {
	return shapes.Make(jt.DType(), jt.BatchSize())
}

// Rank of the batch shape, always 1: jagged tensors have a single batch
// dimension.
func (jt *Tensor) Rank() int { return 1 }

// IsShared reports whether the flat buffers share storage with user slices.
func (jt *Tensor) IsShared() bool {
	return jt.current.values.IsShared() ||
		(jt.current.weights != nil && jt.current.weights.IsShared())
}

// IsMeta reports whether the flat buffers are shape-only meta tensors.
func (jt *Tensor) IsMeta() bool { return jt.current.values.IsMeta() }

// RequiresGrad reports whether the values buffer is marked for gradients.
func (jt *Tensor) RequiresGrad() bool { return jt.current.values.RequiresGrad() }

// span returns the values rows of the (key, batch element) pair.
func (jt *Tensor) span(keyIdx, batchIdx int) (start, stop int) {
	pos := keyIdx*jt.BatchSize() + batchIdx
	return jt.current.offsets[pos], jt.current.offsets[pos+1]
}

// Get returns the values rows of one (key, batch element) span as a dense
// tensor of shape (length, trailing values dims...).
func (jt *Tensor) Get(key string, batchIdx int) *tensors.Tensor {
	keyIdx := jt.keyIndex(key)
	if batchIdx < 0 || batchIdx >= jt.BatchSize() {
		exceptions.Panicf("batch element %d out-of-bounds for batch size %d", batchIdx, jt.BatchSize())
	}
	start, stop := jt.span(keyIdx, batchIdx)
	return jt.current.values.GatherRows(xslices.Iota(start, stop-start))
}

func (jt *Tensor) keyIndex(key string) int {
	for ii, k := range jt.keys {
		if k == key {
			return ii
		}
	}
	exceptions.Panicf("key %q not present in jagged tensor with keys %q", key, jt.keys)
	return -1
}

// Clone returns a deep copy of the jagged tensor with owned buffers.
func (jt *Tensor) Clone() *Tensor {
	return jt.gatherBatch(xslices.Iota(0, jt.BatchSize()))
}

// Equal checks whether jt == other: same keys in the same order, same lengths
// and bit-identical values (and weights, when present).
func (jt *Tensor) Equal(other *Tensor) bool {
	if jt == other {
		return true
	}
	if !slices.Equal(jt.keys, other.keys) {
		return false
	}
	if !slices.Equal(jt.current.lengths, other.current.lengths) {
		return false
	}
	if !jt.current.values.Equal(other.current.values) {
		return false
	}
	if (jt.current.weights == nil) != (other.current.weights == nil) {
		return false
	}
	if jt.current.weights != nil && !jt.current.weights.Equal(other.current.weights) {
		return false
	}
	return true
}

// String prints a summary of the jagged tensor layout.
func (jt *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "jagged.Tensor{keys=%q, batchSize=%d, values=%s",
		jt.keys, jt.BatchSize(), jt.current.values.Shape())
	if jt.current.weights != nil {
		fmt.Fprintf(&sb, ", weights=%s", jt.current.weights.Shape())
	}
	sb.WriteString("}")
	return sb.String()
}
