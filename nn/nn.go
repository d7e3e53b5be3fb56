// Package nn implements modules that transform TensorDicts: each module
// declares the field keys it reads and the keys it writes, and applying it
// maps one TensorDict to another. Modules compose with Sequential, which
// also computes the dataflow between its parts.
package nn

import (
	"slices"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/tensordict"
	"github.com/gomlx/tensordict/types"
)

// Module reads the fields named by InKeys from a TensorDict and writes the
// fields named by OutKeys.
type Module interface {
	// InKeys are the field keys the module reads, in order.
	InKeys() []string

	// OutKeys are the field keys the module writes, in order.
	OutKeys() []string

	// Apply reads the input fields from td, computes, and returns td with
	// the output fields set. Implementations are expected to write into td
	// and return it, so outputs accumulate along a Sequential.
	Apply(td *tensordict.TensorDict) *tensordict.TensorDict
}

// Func wraps a plain Go function as a Module. The function receives the
// input fields in the order of inKeys and must return one field per out key.
type Func struct {
	inKeys, outKeys []string
	fn              func(inputs []tensordict.Field) []tensordict.Field
}

// NewFunc creates a Module from the function and its input and output keys.
func NewFunc(inKeys, outKeys []string, fn func(inputs []tensordict.Field) []tensordict.Field) *Func {
	if len(outKeys) == 0 {
		exceptions.Panicf("NewFunc requires at least one output key")
	}
	return &Func{
		inKeys:  slices.Clone(inKeys),
		outKeys: slices.Clone(outKeys),
		fn:      fn,
	}
}

// InKeys implements Module.
func (f *Func) InKeys() []string { return f.inKeys }

// OutKeys implements Module.
func (f *Func) OutKeys() []string { return f.outKeys }

// Apply implements Module.
func (f *Func) Apply(td *tensordict.TensorDict) *tensordict.TensorDict {
	inputs := make([]tensordict.Field, len(f.inKeys))
	for ii, key := range f.inKeys {
		inputs[ii] = td.Get(key)
	}
	outputs := f.fn(inputs)
	if len(outputs) != len(f.outKeys) {
		exceptions.Panicf("module with output keys %q returned %d values", f.outKeys, len(outputs))
	}
	for ii, key := range f.outKeys {
		td.Set(key, outputs[ii])
	}
	return td
}

// Sequential applies its modules in order, each seeing the outputs of the
// previous ones.
type Sequential struct {
	modules []Module

	inKeys, outKeys []string
}

// NewSequential creates a Sequential from the given modules. The sequence's
// input keys are the keys some module reads without a previous module having
// written them; its output keys are everything written.
func NewSequential(modules ...Module) *Sequential {
	if len(modules) == 0 {
		exceptions.Panicf("NewSequential requires at least one module")
	}
	s := &Sequential{modules: modules}
	produced := types.MakeSet[string]()
	seenIn := types.MakeSet[string]()
	for _, module := range modules {
		for _, key := range module.InKeys() {
			if !produced.Has(key) && !seenIn.Has(key) {
				seenIn.Insert(key)
				s.inKeys = append(s.inKeys, key)
			}
		}
		for _, key := range module.OutKeys() {
			if !produced.Has(key) {
				produced.Insert(key)
				s.outKeys = append(s.outKeys, key)
			}
		}
	}
	return s
}

// InKeys implements Module.
func (s *Sequential) InKeys() []string { return s.inKeys }

// OutKeys implements Module.
func (s *Sequential) OutKeys() []string { return s.outKeys }

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int { return len(s.modules) }

// Module returns the ii-th module of the sequence.
func (s *Sequential) Module(ii int) Module { return s.modules[ii] }

// Apply implements Module, folding td through every module in order.
func (s *Sequential) Apply(td *tensordict.TensorDict) *tensordict.TensorDict {
	for _, module := range s.modules {
		td = module.Apply(td)
	}
	return td
}

// SelectSubsequence returns a new Sequential keeping only the modules that
// are computable from inKeys alone and contribute to outKeys. Nil inKeys or
// outKeys default to the sequence's own. It panics if no module survives.
func (s *Sequential) SelectSubsequence(inKeys, outKeys []string) *Sequential {
	if inKeys == nil {
		inKeys = s.inKeys
	}
	if outKeys == nil {
		outKeys = s.outKeys
	}

	// Forward pass: modules whose every input is derivable from inKeys.
	influenced := make([]bool, len(s.modules))
	available := types.SetWith(inKeys...)
	for ii, module := range s.modules {
		derivable := true
		for _, key := range module.InKeys() {
			if !available.Has(key) {
				derivable = false
				break
			}
		}
		if derivable {
			influenced[ii] = true
			available.Insert(module.OutKeys()...)
		}
	}

	// Backward pass: modules writing a needed key, starting from outKeys.
	var selected []Module
	needed := types.SetWith(outKeys...)
	for ii := len(s.modules) - 1; ii >= 0; ii-- {
		if !influenced[ii] {
			continue
		}
		module := s.modules[ii]
		writesNeeded := false
		for _, key := range module.OutKeys() {
			if needed.Has(key) {
				writesNeeded = true
				break
			}
		}
		if !writesNeeded {
			continue
		}
		selected = append([]Module{module}, selected...)
		needed.Insert(module.InKeys()...)
	}
	if len(selected) == 0 {
		exceptions.Panicf("no modules connect input keys %q to output keys %q", inKeys, outKeys)
	}
	return NewSequential(selected...)
}
