package indexing

import (
	"fmt"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferShape(t *testing.T) {
	dims := []int{4, 5, 6}

	// Single-element fast paths.
	assert.Equal(t, []int{5, 6}, InferShape(dims, At(0)))
	assert.Equal(t, []int{2, 5, 6}, InferShape(dims, Pick(0, 2)))
	assert.Equal(t, []int{5, 6}, InferShape(dims, Pick()))
	assert.Equal(t, []int{3, 5, 6}, InferShape(dims, Mask(true, false, true, true)))
	assert.Equal(t, []int{0, 5, 6}, InferShape(dims, Mask(false, false, false, false)))

	// General walk.
	assert.Equal(t, []int{2, 1, 5, 6}, InferShape(dims, Range(1, 3), NewAxis()))
	assert.Equal(t, []int{2, 1, 6}, InferShape([]int{4, 6}, Range(1, 3), NewAxis()))
	assert.Equal(t, []int{6}, InferShape(dims, At(0), At(1)))
	assert.Equal(t, []int{4, 5, 6}, InferShape(dims, Full(), Full(), Full()))
	assert.Equal(t, []int{2, 3, 6}, InferShape(dims, Full().Stride(2), Range(2, 5)))
	assert.Equal(t, []int{1, 4, 5, 6}, InferShape(dims, NewAxis()))
	assert.Equal(t, []int{2, 2, 6}, InferShape(dims, Pick(0, 1), Mask(true, false, true, false, false)))
	assert.Equal(t, []int{2, 2, 5, 6}, InferShape(dims, Pick(0, 1, 2, 3).Reshape(2, 2)))
	assert.Equal(t, []int{2, 2, 6}, InferShape(dims, Pick(0, 1, 2, 3).Reshape(2, 2), At(1)))
	assert.Equal(t, []int{5}, InferShape(dims, At(1), Full(), At(0)))
	assert.Equal(t, []int{}, InferShape([]int{4}, At(2)))

	// A full-rank tuple of fancy indices collapses all batch axes into the
	// shared index-array shape.
	assert.Equal(t, []int{2}, InferShape(dims, Pick(0, 1), Pick(1, 2), Pick(3, 4)))
	assert.Equal(t, []int{2, 2},
		InferShape(dims, Pick(0, 1, 2, 3).Reshape(2, 2), Pick(1, 2, 3, 4).Reshape(2, 2), Pick(0, 1, 2, 3).Reshape(2, 2)))
}

func TestInferShapeMatchesProbe(t *testing.T) {
	// The equivalence against real dense indexing lives in types/tensors; here
	// we spot-check the documented combinations over a (4,5,6) base.
	dims := []int{4, 5, 6}
	testCases := []struct {
		axes []Axis
		want []int
	}{
		{[]Axis{At(0)}, []int{5, 6}},
		{[]Axis{Pick(0, 2)}, []int{2, 5, 6}},
		{[]Axis{Range(1, 3), NewAxis()}, []int{2, 1, 5, 6}},
		{[]Axis{Full(), At(2), Pick(1, 1, 3)}, []int{4, 3}},
		{[]Axis{Mask(true, true, false, false), Full(), Range(0, 4)}, []int{2, 5, 4}},
	}
	for _, testCase := range testCases {
		t.Run(fmt.Sprintf("%v", testCase.axes), func(t *testing.T) {
			assert.Equal(t, testCase.want, InferShape(dims, testCase.axes...))
		})
	}
}

func TestInferShapeErrors(t *testing.T) {
	dims := []int{4, 5, 6}

	// More consuming elements than dimensions.
	err := exceptions.TryCatch[error](func() {
		InferShape(dims, At(0), At(0), At(0), At(0))
	})
	require.ErrorContains(t, err, "incompatible with the index")

	// Fancy indices with mismatched shapes.
	err = exceptions.TryCatch[error](func() {
		InferShape(dims, Pick(0, 1), Pick(1, 2), Pick(0, 1, 2))
	})
	require.ErrorContains(t, err, "all tensor indices must have the same shape")

	// Ellipsis must have been expanded before shape inference.
	err = exceptions.TryCatch[error](func() {
		InferShape(dims, Ellipsis(), At(0))
	})
	require.ErrorContains(t, err, "cannot be computed for index element")
}
