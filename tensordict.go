// Package tensordict implements a dictionary of tensors sharing common
// leading "batch" dimensions, and indexable as if it were a single tensor:
// indexing a TensorDict applies the same batch index expression to every
// field, dense or ragged, and returns a new TensorDict with the resulting
// batch shape.
//
// Fields are polymorphic: dense *tensors.Tensor values, ragged
// *jagged.Tensor values (registered when the jagged package is imported), or
// any foreign type registered with RegisterFieldKind. Every field's shape must have the TensorDict's batch
// dimensions as a prefix; dimensions beyond the batch prefix are free per
// field.
package tensordict

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/tensordict/types"
	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/tensors"
)

// TensorDict is an ordered dictionary of fields over shared batch dimensions.
//
// It is created with New and populated with Set. The zero value is not valid.
type TensorDict struct {
	batchDims []int
	keys      []string
	fields    map[string]Field
}

// New creates an empty TensorDict with the given batch dimensions. A
// TensorDict with no batch dimensions (a "scalar" dict) is valid and holds
// arbitrarily shaped fields.
func New(batchDims ...int) *TensorDict {
	for _, dim := range batchDims {
		if dim < 0 {
			exceptions.Panicf("New(%v): batch dimensions must be non-negative", batchDims)
		}
	}
	return &TensorDict{
		batchDims: slices.Clone(batchDims),
		fields:    make(map[string]Field),
	}
}

// FromMap creates a TensorDict with the given batch dimensions and fields.
// Keys are inserted in sorted order. Plain Go values (scalars or
// multidimensional slices) are converted to dense tensors.
func FromMap(batchDims []int, fields map[string]any) *TensorDict {
	td := New(batchDims...)
	for _, key := range types.SortedKeys(fields) {
		td.SetValue(key, fields[key])
	}
	return td
}

// BatchDims returns the shared leading dimensions of every field. The
// returned slice must not be modified.
func (td *TensorDict) BatchDims() []int { return td.batchDims }

// Set stores the field under key, replacing any previous value. The field's
// shape must have the batch dimensions as a prefix; for ragged fields this
// means their batch size must be the single batch dimension of the
// TensorDict.
func (td *TensorDict) Set(key string, field Field) *TensorDict {
	// Resolving the kind early rejects unsupported field types at insertion.
	_, _ = fieldKindOf(field)
	if !field.Shape().HasPrefix(td.batchDims) {
		exceptions.Panicf("field %q with shape %s is incompatible with batch dimensions %s",
			key, field.Shape(), shapes.DimsString(td.batchDims))
	}
	if _, found := td.fields[key]; !found {
		td.keys = append(td.keys, key)
	}
	td.fields[key] = field
	return td
}

// SetValue converts a plain Go value (a scalar, a multidimensional slice or a
// Field) to a field and stores it under key. See Set.
func (td *TensorDict) SetValue(key string, value any) *TensorDict {
	if field, ok := value.(Field); ok {
		return td.Set(key, field)
	}
	return td.Set(key, tensors.FromAnyValue(value))
}

// Get returns the field stored under key. It panics if the key is not
// present.
func (td *TensorDict) Get(key string) Field {
	field, found := td.fields[key]
	if !found {
		exceptions.Panicf("key %q not present in TensorDict with keys %q", key, td.keys)
	}
	return field
}

// GetTensor returns the dense field stored under key. It panics if the key
// is not present or the field is not dense.
func (td *TensorDict) GetTensor(key string) *tensors.Tensor {
	field := td.Get(key)
	t, ok := field.(*tensors.Tensor)
	if !ok {
		exceptions.Panicf("field %q is %s, not a dense tensor", key, FieldKindOf(field))
	}
	return t
}

// Has reports whether key is present.
func (td *TensorDict) Has(key string) bool {
	_, found := td.fields[key]
	return found
}

// Delete removes the field stored under key, if present.
func (td *TensorDict) Delete(key string) {
	if _, found := td.fields[key]; !found {
		return
	}
	delete(td.fields, key)
	td.keys = slices.DeleteFunc(td.keys, func(k string) bool { return k == key })
}

// Keys returns the field keys in insertion order. The returned slice must not
// be modified.
func (td *TensorDict) Keys() []string { return td.keys }

// Len returns the number of fields.
func (td *TensorDict) Len() int { return len(td.fields) }

// Select returns a new TensorDict with the same batch dimensions holding only
// the given keys. Fields are shared, not copied. It panics if a key is not
// present.
func (td *TensorDict) Select(keys ...string) *TensorDict {
	selected := New(td.batchDims...)
	for _, key := range keys {
		selected.Set(key, td.Get(key))
	}
	return selected
}

// Exclude returns a new TensorDict with the same batch dimensions holding all
// fields except the given keys. Fields are shared, not copied.
func (td *TensorDict) Exclude(keys ...string) *TensorDict {
	excluded := New(td.batchDims...)
	for _, key := range td.keys {
		if !slices.Contains(keys, key) {
			excluded.Set(key, td.fields[key])
		}
	}
	return excluded
}

// Clone returns a deep copy of the TensorDict: every field is cloned.
func (td *TensorDict) Clone() *TensorDict {
	clone := New(td.batchDims...)
	for _, key := range td.keys {
		_, ops := fieldKindOf(td.fields[key])
		clone.Set(key, ops.Clone(td.fields[key]))
	}
	return clone
}

// Equal checks whether both TensorDicts have the same batch dimensions, the
// same keys in the same insertion order, and equal fields.
func (td *TensorDict) Equal(other *TensorDict) bool {
	if td == other {
		return true
	}
	if !slices.Equal(td.batchDims, other.batchDims) || !slices.Equal(td.keys, other.keys) {
		return false
	}
	for _, key := range td.keys {
		field, otherField := td.fields[key], other.fields[key]
		kind, ops := fieldKindOf(field)
		if otherKind, _ := fieldKindOf(otherField); otherKind != kind {
			return false
		}
		if !ops.Equal(field, otherField) {
			return false
		}
	}
	return true
}

// String lists the batch dimensions and each field on its own line.
func (td *TensorDict) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TensorDict(batch=%s){", shapes.DimsString(td.batchDims))
	for _, key := range td.keys {
		fmt.Fprintf(&sb, "\n\t%q: %s", key, td.fields[key])
	}
	if len(td.keys) > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}
