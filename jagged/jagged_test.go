package jagged

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/tensordict/types/indexing"
	"github.com/gomlx/tensordict/types/tensors"
)

// testJagged builds a weighted jagged tensor with keys {"a","b"} and batch
// size 4:
//
//	a: [v0] [] [v1 v2] [v3]
//	b: [v4 v5] [v6] [] [v7 v8 v9]
func testJagged(t *testing.T) *Tensor {
	lengths := []int{
		1, 0, 2, 1, // key "a"
		2, 1, 0, 3, // key "b"
	}
	values := tensors.FromValue([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	weights := tensors.FromValue([]float32{0, 10, 20, 30, 40, 50, 60, 70, 80, 90})
	jt, err := FromLengths([]string{"a", "b"}, lengths, values, weights)
	require.NoError(t, err)
	return jt
}

func TestFromLengths(t *testing.T) {
	jt := testJagged(t)
	require.Equal(t, []string{"a", "b"}, jt.Keys())
	require.Equal(t, 2, jt.NumKeys())
	require.Equal(t, 4, jt.BatchSize())
	require.Equal(t, []int{0, 1, 1, 3, 4, 6, 7, 7, 10}, jt.Offsets())
	require.Equal(t, dtypes.Float32, jt.DType())
	assert.Equal(t, []int{4}, jt.Shape().Dimensions)
	assert.Equal(t, 1, jt.Rank())

	// A values buffer whose rows don't match the lengths sum is rejected.
	_, err := FromLengths([]string{"a"}, []int{2, 2},
		tensors.FromValue([]float32{1, 2, 3}), nil)
	require.ErrorContains(t, err, "lengths sum")

	// Lengths must cover all keys evenly.
	_, err = FromLengths([]string{"a", "b"}, []int{1, 1, 1},
		tensors.FromValue([]float32{1, 2, 3}), nil)
	require.ErrorContains(t, err, "not a multiple")
}

func TestFromOffsets(t *testing.T) {
	jt, err := FromOffsets([]string{"a", "b"},
		[]int{0, 1, 1, 3, 4, 6, 7, 7, 10},
		tensors.FromValue([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}), nil)
	require.NoError(t, err)
	require.Equal(t, []int{1, 0, 2, 1, 2, 1, 0, 3}, jt.Lengths())

	_, err = FromOffsets([]string{"a"}, []int{0, 2, 1},
		tensors.FromValue([]float32{1}), nil)
	require.ErrorContains(t, err, "non-decreasing")
}

func TestGet(t *testing.T) {
	jt := testJagged(t)
	require.Equal(t, []float32{1, 2}, jt.Get("a", 2).Value())
	require.Equal(t, []int{0}, jt.Get("a", 1).Shape().Dimensions)
	require.Equal(t, []float32{7, 8, 9}, jt.Get("b", 3).Value())

	err := exceptions.TryCatch[error](func() { jt.Get("c", 0) })
	require.ErrorContains(t, err, "not present")
}

func TestIndex(t *testing.T) {
	jt := testJagged(t)

	part := jt.Index(indexing.Pick(1, 3))
	require.Equal(t, 2, part.BatchSize())
	require.Equal(t, []int{0, 1, 1, 3}, part.Lengths())
	require.Equal(t, []float32{3, 6, 7, 8, 9}, part.Values().Value())
	require.Equal(t, []float32{30, 60, 70, 80, 90}, part.Weights().Value())

	// Masks and ranges select batch elements too.
	require.True(t, part.Equal(jt.Index(indexing.Mask(false, true, false, true))))
	require.True(t, jt.Index(indexing.Range(0, 2)).Equal(jt.Index(indexing.Pick(0, 1))))

	// Plain integers cannot index the batch dimension of a jagged tensor.
	err := exceptions.TryCatch[error](func() { jt.Index(indexing.At(1)) })
	require.ErrorContains(t, err, "call Index(indexing.Pick(1))")

	// Indexing never mutates the source.
	require.True(t, jt.Equal(testJagged(t)))
}

func TestSetIndexRoundTrip(t *testing.T) {
	jt := testJagged(t)
	original := testJagged(t)

	// Reading rows then writing them back is a no-op, bit for bit.
	rows := jt.Index(indexing.Pick(1, 3))
	jt.SetIndex(indexing.Pick(1, 3), rows)
	require.Equal(t, original.Lengths(), jt.Lengths())
	require.Equal(t, original.Offsets(), jt.Offsets())
	require.True(t, original.Values().Equal(jt.Values()))
	require.True(t, original.Weights().Equal(jt.Weights()))
}

func TestSetIndexResizesSpans(t *testing.T) {
	jt := testJagged(t)

	// Replace batch element 1 with longer spans under both keys.
	replacement, err := FromLengths([]string{"a", "b"},
		[]int{3, 1},
		tensors.FromValue([]float32{-1, -2, -3, -4}),
		tensors.FromValue([]float32{1, 2, 3, 4}))
	require.NoError(t, err)

	jt.SetIndex(indexing.At(1), replacement)
	require.Equal(t, []int{1, 3, 2, 1, 2, 1, 0, 3}, jt.Lengths())
	require.Equal(t, []float32{-1, -2, -3}, jt.Get("a", 1).Value())
	require.Equal(t, []float32{-4}, jt.Get("b", 1).Value())
	// Neighboring spans are untouched.
	require.Equal(t, []float32{0}, jt.Get("a", 0).Value())
	require.Equal(t, []float32{1, 2}, jt.Get("a", 2).Value())
	require.Equal(t, []float32{7, 8, 9}, jt.Get("b", 3).Value())
	// The layout invariant holds after the write.
	require.Equal(t, 13, jt.Values().Shape().Dimensions[0])
	require.Equal(t, 13, jt.Offsets()[len(jt.Offsets())-1])
}

func TestSetIndexKeyMismatch(t *testing.T) {
	jt := testJagged(t)
	other, err := FromLengths([]string{"a", "c"},
		[]int{1, 1},
		tensors.FromValue([]float32{1, 2}),
		tensors.FromValue([]float32{1, 2}))
	require.NoError(t, err)

	err = exceptions.TryCatch[error](func() { jt.SetIndex(indexing.At(0), other) })
	require.ErrorContains(t, err, "mismatch of keys")

	// Same keys in a different order are a mismatch too.
	swapped, err := FromLengths([]string{"b", "a"},
		[]int{1, 1},
		tensors.FromValue([]float32{1, 2}),
		tensors.FromValue([]float32{1, 2}))
	require.NoError(t, err)
	err = exceptions.TryCatch[error](func() { jt.SetIndex(indexing.At(0), swapped) })
	require.ErrorContains(t, err, "mismatch of keys")
}

func TestSetIndexBatchSizeMismatch(t *testing.T) {
	jt := testJagged(t)
	other := jt.Index(indexing.Pick(0))
	err := exceptions.TryCatch[error](func() { jt.SetIndex(indexing.Pick(0, 1), other) })
	require.ErrorContains(t, err, "batch size 1")
}

func TestGobRoundTrip(t *testing.T) {
	jt := testJagged(t)
	var buf bytes.Buffer
	require.NoError(t, jt.GobSerialize(gob.NewEncoder(&buf)))
	recovered, err := GobDeserialize(gob.NewDecoder(&buf))
	require.NoError(t, err)
	require.True(t, jt.Equal(recovered))
}

func TestString(t *testing.T) {
	jt := testJagged(t)
	assert.Contains(t, jt.String(), `keys=["a" "b"]`)
	assert.Contains(t, jt.String(), "batchSize=4")
}
