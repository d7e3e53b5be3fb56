package nn

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/tensordict"
	"github.com/gomlx/tensordict/types/tensors"
)

// addOne returns a module computing out = in + 1 element-wise.
func addOne(inKey, outKey string) *Func {
	return NewFunc([]string{inKey}, []string{outKey}, func(inputs []tensordict.Field) []tensordict.Field {
		result := inputs[0].(*tensors.Tensor).Clone()
		tensors.MutableFlatData(result, func(flat []float32) {
			for ii := range flat {
				flat[ii]++
			}
		})
		return []tensordict.Field{result}
	})
}

func TestFunc(t *testing.T) {
	td := tensordict.New(3)
	td.SetValue("x", []float32{0, 1, 2})
	module := addOne("x", "y")
	require.Equal(t, []string{"x"}, module.InKeys())
	require.Equal(t, []string{"y"}, module.OutKeys())

	module.Apply(td)
	require.Equal(t, []float32{1, 2, 3}, td.GetTensor("y").Value())
}

func TestSequentialKeys(t *testing.T) {
	s := NewSequential(
		addOne("x", "hidden"),
		addOne("bias", "extra"),
		addOne("hidden", "out"),
	)
	// "hidden" is produced internally, so it is not an input of the sequence.
	require.Equal(t, []string{"x", "bias"}, s.InKeys())
	require.Equal(t, []string{"hidden", "extra", "out"}, s.OutKeys())
	require.Equal(t, 3, s.Len())
}

func TestSequentialApply(t *testing.T) {
	td := tensordict.New(2)
	td.SetValue("x", []float32{0, 10})
	s := NewSequential(addOne("x", "hidden"), addOne("hidden", "out"))
	s.Apply(td)
	require.Equal(t, []float32{2, 12}, td.GetTensor("out").Value())
	require.Equal(t, []float32{1, 11}, td.GetTensor("hidden").Value())
}

func TestSelectSubsequence(t *testing.T) {
	first := addOne("x", "hidden")
	second := addOne("bias", "extra")
	third := addOne("hidden", "out")
	s := NewSequential(first, second, third)

	// Only the modules on the x -> out path survive.
	sub := s.SelectSubsequence([]string{"x"}, []string{"out"})
	require.Equal(t, 2, sub.Len())
	require.Same(t, first, sub.Module(0))
	require.Same(t, third, sub.Module(1))
	require.Equal(t, []string{"x"}, sub.InKeys())
	require.Equal(t, []string{"hidden", "out"}, sub.OutKeys())

	// Nil defaults to the sequence's own keys.
	require.Equal(t, 3, s.SelectSubsequence(nil, nil).Len())

	// A disconnected selection is an error.
	err := exceptions.TryCatch[error](func() {
		s.SelectSubsequence([]string{"bias"}, []string{"out"})
	})
	require.ErrorContains(t, err, "no modules connect")
}

// addPair returns a module computing out = a + b element-wise.
func addPair(aKey, bKey, outKey string) *Func {
	return NewFunc([]string{aKey, bKey}, []string{outKey}, func(inputs []tensordict.Field) []tensordict.Field {
		result := inputs[0].(*tensors.Tensor).Clone()
		inputs[1].(*tensors.Tensor).ConstFlatData(func(other any) {
			tensors.MutableFlatData(result, func(flat []float32) {
				for ii, value := range other.([]float32) {
					flat[ii] += value
				}
			})
		})
		return []tensordict.Field{result}
	})
}

func TestSelectSubsequencePartialInputs(t *testing.T) {
	first := addOne("x", "hidden")
	second := addPair("hidden", "bias", "out")
	s := NewSequential(first, second)

	// A module with only some of its inputs derivable is never selected.
	err := exceptions.TryCatch[error](func() {
		s.SelectSubsequence([]string{"x"}, []string{"out"})
	})
	require.ErrorContains(t, err, "no modules connect")

	// With every input available, the whole chain survives.
	sub := s.SelectSubsequence([]string{"x", "bias"}, []string{"out"})
	require.Equal(t, 2, sub.Len())
	require.Same(t, first, sub.Module(0))
	require.Same(t, second, sub.Module(1))
}
