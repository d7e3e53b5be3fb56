package distributions

import (
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/gomlx/tensordict"
	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/tensors"
)

func TestScaleMapping(t *testing.T) {
	assert.InDelta(t, math.Log(2), ScaleMapping("softplus")(0), 1e-9)
	assert.InDelta(t, 1.0, ScaleMapping("exp")(0), 1e-9)
	assert.Equal(t, 0.0, ScaleMapping("relu")(-3))
	assert.Equal(t, 3.0, ScaleMapping("relu")(3))
	assert.Equal(t, -3.0, ScaleMapping("none")(-3))

	// A biased softplus maps a raw value of 0 to its bias.
	assert.InDelta(t, 1.0, ScaleMapping("biased_softplus")(0), 1e-9)
	assert.InDelta(t, 0.5, ScaleMapping("biased_softplus_0.5")(0), 1e-9)
	assert.InDelta(t, 2.0, ScaleMapping("biased_softplus_2.0")(0), 1e-9)

	err := exceptions.TryCatch[error](func() { ScaleMapping("sigmoid") })
	require.ErrorContains(t, err, "unknown scale mapping")
	err = exceptions.TryCatch[error](func() { ScaleMapping("biased_softplus_x") })
	require.ErrorContains(t, err, "invalid bias")
}

func TestScaleMappingsArePositive(t *testing.T) {
	for _, name := range []string{"softplus", "exp", "biased_softplus", "biased_softplus_0.1"} {
		mapFn := ScaleMapping(name)
		for _, x := range []float64{-10, -1, 0, 1, 10} {
			assert.Greaterf(t, mapFn(x), 0.0, "mapping %q at %g", name, x)
		}
	}
}

func TestNormalParams(t *testing.T) {
	params := tensors.FromValue([][]float32{
		{1, 2, 0, -100},
		{3, 4, 0, -100},
	})
	loc, scale := NormalParams(params, "biased_softplus", 0)
	require.Equal(t, [][]float32{{1, 2}, {3, 4}}, loc.Value())

	scaleValues := scale.Value().([][]float32)
	assert.InDelta(t, 1.0, float64(scaleValues[0][0]), 1e-6)
	// Very negative raw values are clamped to the lower bound.
	assert.InDelta(t, DefaultScaleLB, float64(scaleValues[0][1]), 1e-9)
	for _, row := range scaleValues {
		for _, v := range row {
			assert.Greater(t, float64(v), 0.0)
		}
	}

	// An odd last dimension cannot be split into loc and scale.
	err := exceptions.TryCatch[error](func() {
		NormalParams(tensors.FromValue([]float32{1, 2, 3}), "exp", 0)
	})
	require.ErrorContains(t, err, "even last dimension")
}

func TestNormalParamsFloat16(t *testing.T) {
	params := tensors.FromFlatDataAndDimensions([]float16.Float16{
		float16.Fromfloat32(1), float16.Fromfloat32(0),
	}, 2)
	loc, scale := NormalParams(params, "exp", 0)
	require.Equal(t, dtypes.Float16, loc.DType())
	require.Equal(t, dtypes.Float16, scale.DType())
	scaleV := scale.Value().([]float16.Float16)
	assert.InDelta(t, 1.0, float64(scaleV[0].Float32()), 1e-3)
}

func TestNormalParamsModule(t *testing.T) {
	td := tensordict.New(2)
	td.SetValue("params", [][]float64{{1, 0}, {2, 0}})
	module := NewNormalParamsModule("params", "loc", "scale", "biased_softplus", 0)
	require.Equal(t, []string{"params"}, module.InKeys())
	require.Equal(t, []string{"loc", "scale"}, module.OutKeys())

	module.Apply(td)
	require.Equal(t, [][]float64{{1}, {2}}, td.GetTensor("loc").Value())
	scale := td.GetTensor("scale").Value().([][]float64)
	assert.InDelta(t, 1.0, scale[0][0], 1e-9)
	assert.InDelta(t, 1.0, scale[1][0], 1e-9)
}

func TestDelta(t *testing.T) {
	point := tensors.FromValue([]float64{1, 2, 3})
	d := NewDelta(point)
	require.True(t, d.Sample().Equal(point))
	require.True(t, d.Mean().Equal(point))
	require.True(t, d.Mode().Equal(point))

	// Samples are copies, not views.
	sample := d.Sample()
	tensors.MutableFlatData(sample, func(flat []float64) { flat[0] = -1 })
	require.True(t, d.Param().Equal(point))

	logProb := d.LogProb(tensors.FromValue([]float64{1, 0, 3}))
	require.Equal(t, []float64{0, math.Inf(-1), 0}, logProb.Value())

	// Matches within tolerance count as the point.
	logProb = d.LogProb(tensors.FromValue([]float64{1 + 1e-8, 2, 3}))
	require.Equal(t, []float64{0, 0, 0}, logProb.Value())
	logProb = d.WithTolerance(1e-12, 0).LogProb(tensors.FromValue([]float64{1 + 1e-8, 2, 3}))
	require.Equal(t, []float64{math.Inf(-1), 0, 0}, logProb.Value())

	err := exceptions.TryCatch[error](func() {
		d.LogProb(tensors.FromShape(shapes.Make(dtypes.Float64, 4)))
	})
	require.ErrorContains(t, err, "shape")
}

func TestDeltaEventDims(t *testing.T) {
	point := tensors.FromValue([][]float64{{1, 2}, {3, 4}})
	d := NewDelta(point).WithEventDims(1)
	logProb := d.LogProb(tensors.FromValue([][]float64{{1, 2}, {3, -4}}))
	require.Equal(t, []int{2}, logProb.Shape().Dimensions)
	require.Equal(t, []float64{0, math.Inf(-1)}, logProb.Value())

	err := exceptions.TryCatch[error](func() { d.WithEventDims(3) })
	require.ErrorContains(t, err, "rank")
}

func TestDeltaSampleDims(t *testing.T) {
	point := tensors.FromValue([]float64{1, 2})
	sample := NewDelta(point).Sample(3)
	require.Equal(t, []int{3, 2}, sample.Shape().Dimensions)
	require.Equal(t, [][]float64{{1, 2}, {1, 2}, {1, 2}}, sample.Value())
}
