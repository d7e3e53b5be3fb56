// Package distributions holds the tensor-level helpers backing batched
// probability distributions: extracting location and scale parameters from a
// single network output, the positive mappings applied to raw scale values,
// and the degenerate Delta distribution.
package distributions

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"

	"github.com/gomlx/tensordict"
	"github.com/gomlx/tensordict/nn"
	"github.com/gomlx/tensordict/types/indexing"
	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/tensors"
	"github.com/gomlx/tensordict/types/xslices"
)

// ScaleMapping returns the positive mapping registered under name, applied
// to raw scale parameters. The recognized names are "softplus", "exp",
// "relu", "none", "biased_softplus" (with a bias of 1) and
// "biased_softplus_<bias>" for an arbitrary bias, e.g. "biased_softplus_0.5".
func ScaleMapping(name string) func(float64) float64 {
	switch name {
	case "softplus":
		return softplus
	case "exp":
		return math.Exp
	case "relu":
		return func(x float64) float64 { return math.Max(0, x) }
	case "none":
		return func(x float64) float64 { return x }
	case "biased_softplus":
		return biasedSoftplus(1.0)
	}
	if suffix, found := strings.CutPrefix(name, "biased_softplus_"); found {
		bias, err := strconv.ParseFloat(suffix, 64)
		if err != nil {
			exceptions.Panicf("invalid bias in scale mapping %q: %v", name, err)
		}
		return biasedSoftplus(bias)
	}
	exceptions.Panicf("unknown scale mapping %q", name)
	return nil
}

func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// biasedSoftplus shifts softplus so a raw value of 0 maps to bias.
func biasedSoftplus(bias float64) func(float64) float64 {
	if bias <= 0 {
		exceptions.Panicf("biased softplus requires a positive bias, got %g", bias)
	}
	shift := math.Log(math.Expm1(bias))
	return func(x float64) float64 {
		return softplus(x + shift)
	}
}

// DefaultScaleLB is the default lower bound applied to mapped scale values.
const DefaultScaleLB = 1e-4

// NormalParams splits the last dimension of params in two halves -- location
// and raw scale -- applies the named scale mapping to the raw scale and
// clamps it from below by scaleLB. A non-positive scaleLB uses
// DefaultScaleLB.
//
// It panics if the last dimension of params is odd or if params is not a
// float tensor.
func NormalParams(params *tensors.Tensor, mapping string, scaleLB float64) (loc, scale *tensors.Tensor) {
	if params.Rank() == 0 {
		exceptions.Panicf("NormalParams requires a tensor of rank >= 1, got shape %s", params.Shape())
	}
	lastDim := params.Shape().Dimensions[params.Rank()-1]
	if lastDim%2 != 0 {
		exceptions.Panicf("NormalParams requires an even last dimension to split, got shape %s", params.Shape())
	}
	if scaleLB <= 0 {
		scaleLB = DefaultScaleLB
	}
	mapFn := ScaleMapping(mapping)
	half := lastDim / 2
	loc = params.Index(indexing.Ellipsis(), indexing.Range(0, half))
	scale = params.Index(indexing.Ellipsis(), indexing.Range(half, lastDim))
	applyUnaryFloat(scale, func(x float64) float64 {
		return math.Max(mapFn(x), scaleLB)
	})
	return
}

// applyUnaryFloat applies fn to every element of t, in place. It panics for
// non-float dtypes.
func applyUnaryFloat(t *tensors.Tensor, fn func(float64) float64) {
	switch t.DType() {
	case dtypes.Float16:
		tensors.MutableFlatData(t, func(flat []float16.Float16) {
			for ii, v := range flat {
				flat[ii] = float16.Fromfloat32(float32(fn(float64(v.Float32()))))
			}
		})
	case dtypes.Float32:
		tensors.MutableFlatData(t, func(flat []float32) {
			for ii, v := range flat {
				flat[ii] = float32(fn(float64(v)))
			}
		})
	case dtypes.Float64:
		tensors.MutableFlatData(t, func(flat []float64) {
			for ii, v := range flat {
				flat[ii] = fn(v)
			}
		})
	default:
		exceptions.Panicf("dtype %s is not a float type", t.DType())
	}
}

// NewNormalParamsModule returns a module that reads the field inKey,
// splits it with NormalParams using the named scale mapping, and writes the
// location under locKey and the bounded scale under scaleKey.
func NewNormalParamsModule(inKey, locKey, scaleKey, mapping string, scaleLB float64) nn.Module {
	return nn.NewFunc([]string{inKey}, []string{locKey, scaleKey},
		func(inputs []tensordict.Field) []tensordict.Field {
			params, ok := inputs[0].(*tensors.Tensor)
			if !ok {
				exceptions.Panicf("field %q is not a dense tensor", inKey)
			}
			loc, scale := NormalParams(params, mapping, scaleLB)
			return []tensordict.Field{loc, scale}
		})
}

// DeltaDefaultTolerance is the absolute and relative tolerance used by
// Delta.LogProb when comparing values to the distribution point.
const DeltaDefaultTolerance = 1e-6

// Delta is the degenerate distribution concentrated on a single point: it
// samples to its parameter with probability one.
type Delta struct {
	param      *tensors.Tensor
	atol, rtol float64
	eventDims  int
}

// NewDelta creates a Delta distribution concentrated on param, with the
// default tolerances and no event dimensions.
func NewDelta(param *tensors.Tensor) *Delta {
	param.AssertValid()
	return &Delta{param: param, atol: DeltaDefaultTolerance, rtol: DeltaDefaultTolerance}
}

// WithTolerance sets the absolute and relative tolerances used by LogProb.
// It returns the updated distribution for chaining.
func (d *Delta) WithTolerance(atol, rtol float64) *Delta {
	d.atol, d.rtol = atol, rtol
	return d
}

// WithEventDims marks the given number of trailing axes as event dimensions:
// LogProb reduces over them, so a value matches only if every element of the
// event matches. It returns the updated distribution for chaining.
func (d *Delta) WithEventDims(n int) *Delta {
	if n < 0 || n > d.param.Rank() {
		exceptions.Panicf("Delta with %d event dimensions, but the point has rank %d",
			n, d.param.Rank())
	}
	d.eventDims = n
	return d
}

// Param returns the point the distribution is concentrated on.
func (d *Delta) Param() *tensors.Tensor { return d.param }

// Sample returns the point of the distribution, replicated over the given
// leading sample dimensions. With no dimensions it is a copy of the point.
func (d *Delta) Sample(dims ...int) *tensors.Tensor {
	if len(dims) == 0 {
		return d.param.Clone()
	}
	outDims := append(xslices.Copy(dims), d.param.Shape().Dimensions...)
	out := tensors.FromShape(shapes.Make(d.param.DType(), outDims...))
	out.SetRequiresGrad(d.param.RequiresGrad())
	repeats := 1
	for _, dim := range dims {
		repeats *= dim
	}
	blockSize := d.param.Shape().Size()
	d.param.ConstFlatData(func(paramFlat any) {
		out.MutableFlatData(func(outFlat any) {
			paramV, outV := reflect.ValueOf(paramFlat), reflect.ValueOf(outFlat)
			for ii := 0; ii < repeats; ii++ {
				reflect.Copy(outV.Slice(ii*blockSize, (ii+1)*blockSize), paramV)
			}
		})
	})
	return out
}

// Mean of the distribution, its point.
func (d *Delta) Mean() *tensors.Tensor { return d.param.Clone() }

// Mode of the distribution, its point.
func (d *Delta) Mode() *tensors.Tensor { return d.param.Clone() }

// LogProb returns 0 where value matches the point of the distribution within
// tolerance and -Inf elsewhere, as a Float64 tensor. Event dimensions are
// reduced: the result has the point's dimensions minus the event axes, and an
// entry matches only if its whole event matches.
func (d *Delta) LogProb(value *tensors.Tensor) *tensors.Tensor {
	if !value.Shape().Equal(d.param.Shape()) {
		exceptions.Panicf("LogProb value has shape %s, distribution point has shape %s",
			value.Shape(), d.param.Shape())
	}
	dims := d.param.Shape().Dimensions
	batchDims := dims[:len(dims)-d.eventDims]
	eventSize := 1
	for _, dim := range dims[len(dims)-d.eventDims:] {
		eventSize *= dim
	}
	isFloat := d.param.DType().IsFloat()
	logProb := tensors.FromShape(shapes.Make(dtypes.Float64, batchDims...))
	d.param.ConstFlatData(func(paramFlat any) {
		value.ConstFlatData(func(valueFlat any) {
			paramV, valueV := reflect.ValueOf(paramFlat), reflect.ValueOf(valueFlat)
			tensors.MutableFlatData(logProb, func(out []float64) {
				for ii := range out {
					for jj := ii * eventSize; jj < (ii+1)*eventSize; jj++ {
						if !d.elemEqual(paramV.Index(jj), valueV.Index(jj), isFloat) {
							out[ii] = math.Inf(-1)
							break
						}
					}
				}
			})
		})
	})
	return logProb
}

func (d *Delta) elemEqual(param, value reflect.Value, isFloat bool) bool {
	if !isFloat {
		return param.Equal(value)
	}
	p := toFloat64(param)
	v := toFloat64(value)
	return math.Abs(v-p) <= d.atol+d.rtol*math.Abs(p)
}

func toFloat64(v reflect.Value) float64 {
	if f16, ok := v.Interface().(float16.Float16); ok {
		return float64(f16.Float32())
	}
	return v.Convert(reflect.TypeOf(float64(0))).Float()
}
