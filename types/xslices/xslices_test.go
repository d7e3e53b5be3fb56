package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyAndFill(t *testing.T) {
	slice := []int{0, 1, 2}
	c := Copy(slice)
	c[0] = -1
	assert.Equal(t, []int{0, 1, 2}, slice)
	FillSlice(c, 7)
	assert.Equal(t, []int{7, 7, 7}, c)
}

func TestLast(t *testing.T) {
	assert.Equal(t, 5, Last([]int{0, 1, 2, 3, 4, 5}))
}

func TestIota(t *testing.T) {
	assert.Equal(t, []int{3, 4, 5, 6}, Iota(3, 4))
	assert.Empty(t, Iota(0, 0))
}

func TestCumSum(t *testing.T) {
	assert.Equal(t, []int{2, 2, 3, 4, 5, 8, 9, 10, 11}, CumSum([]int{2, 0, 1, 1, 1, 3, 1, 1, 1}))
	assert.Empty(t, CumSum([]int{}))
}

func TestSlicesInDelta(t *testing.T) {
	require.True(t, SlicesInDelta([]float32{1, 2, 3}, []float32{1, 2, 3.0001}, 1e-3))
	require.False(t, SlicesInDelta([]float32{1, 2, 3}, []float32{1, 2, 4}, 1e-3))
	require.False(t, SlicesInDelta([]int{1}, []int{1, 2}, 1e-3))
}
