package tensordict

import (
	"slices"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/tensordict/types/indexing"
	"github.com/gomlx/tensordict/types/shapes"
)

// Index applies a batch index expression to every field and returns a new
// TensorDict with the resulting batch dimensions. The expression only indexes
// the batch dimensions: per-field trailing dimensions are always preserved.
//
// The expression may contain one Ellipsis element; batch dimensions not
// covered by it are taken in full. Fields are new values but may share
// storage with the original for kinds whose indexing is a pure metadata
// operation.
func (td *TensorDict) Index(axes ...indexing.Axis) *TensorDict {
	expanded := indexing.ExpandEllipsis(td.batchDims, axes...)
	newBatchDims := indexing.InferShape(td.batchDims, expanded...)
	result := New(newBatchDims...)
	for _, key := range td.keys {
		field := td.fields[key]
		_, ops := fieldKindOf(field)
		result.Set(key, ops.Index(field, td.batchDims, expanded))
	}
	return result
}

// SetIndex writes the fields of value over the selected batch elements of the
// corresponding fields of td, in place. value must have exactly the keys of
// td, and its batch dimensions must equal the batch dimensions Index would
// produce for the same expression.
func (td *TensorDict) SetIndex(value *TensorDict, axes ...indexing.Axis) {
	expanded := indexing.ExpandEllipsis(td.batchDims, axes...)
	targetDims := indexing.InferShape(td.batchDims, expanded...)
	if !slices.Equal(value.batchDims, targetDims) {
		exceptions.Panicf("cannot assign TensorDict with batch dimensions %s to selection with batch dimensions %s",
			shapes.DimsString(value.batchDims), shapes.DimsString(targetDims))
	}
	missing := slices.Clone(td.keys)
	missing = slices.DeleteFunc(missing, value.Has)
	if len(missing) > 0 || value.Len() != td.Len() {
		exceptions.Panicf("cannot assign TensorDict with keys %q to TensorDict with keys %q",
			value.keys, td.keys)
	}
	for _, key := range td.keys {
		field := td.fields[key]
		_, ops := fieldKindOf(field)
		ops.SetIndex(field, value.fields[key], td.batchDims, expanded)
	}
}
