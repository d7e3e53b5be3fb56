package tensordict

import (
	"encoding/gob"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"k8s.io/klog/v2"

	"github.com/gomlx/tensordict/types/indexing"
	"github.com/gomlx/tensordict/types/shapes"
	"github.com/gomlx/tensordict/types/tensors"
)

// Field is the capability surface a value must provide to be stored in a
// TensorDict. Both *tensors.Tensor (dense fields) and *jagged.Tensor (ragged
// fields) implement it.
//
// For a dense field Shape is the full array shape; for a ragged field it is
// the batch shape (batchSize), the ragged span dimension not being part of
// any shape.
type Field interface {
	Shape() shapes.Shape
	DType() dtypes.DType
	Rank() int
	IsShared() bool
	IsMeta() bool
	RequiresGrad() bool
}

// FieldOps implement the batched operations of one kind of Field. The
// batch index expressions passed to Index and SetIndex are already normalized
// (see indexing.ExpandEllipsis) to one element per batch dimension of the
// owning TensorDict.
type FieldOps struct {
	// Matches reports whether the field value is of this kind.
	Matches func(field Field) bool

	// Index returns a new field with the selected batch elements.
	Index func(field Field, batchDims []int, axes []indexing.Axis) Field

	// SetIndex writes value over the selected batch elements of field, in
	// place.
	SetIndex func(field Field, value Field, batchDims []int, axes []indexing.Axis)

	// Clone returns a deep copy of the field.
	Clone func(field Field) Field

	// Equal compares two fields of this kind.
	Equal func(field, other Field) bool

	// GobSerialize and GobDeserialize implement binary serialization of the
	// field. Optional: fields of a kind without them cannot be saved.
	GobSerialize   func(field Field, encoder *gob.Encoder) error
	GobDeserialize func(decoder *gob.Decoder) (Field, error)
}

var (
	registeredFieldKinds = make(map[string]FieldOps)
	fieldKindOrder       []string
)

// RegisterFieldKind registers the operations of one kind of field under the
// given name. The dense kind is registered during initialization; the ragged
// kind registers itself when the jagged package is imported. Registering
// extra kinds lets foreign field types be stored in a TensorDict.
//
// To be safe, call RegisterFieldKind during initialization of a package.
func RegisterFieldKind(name string, ops FieldOps) {
	if _, found := registeredFieldKinds[name]; !found {
		fieldKindOrder = append(fieldKindOrder, name)
	}
	registeredFieldKinds[name] = ops
	klog.V(1).Infof("tensordict: registered field kind %q", name)
}

// FieldKindOf returns the name of the registered kind handling the field.
// It panics if no registered kind matches.
func FieldKindOf(field Field) string {
	name, _ := fieldKindOf(field)
	return name
}

func fieldKindOf(field Field) (string, FieldOps) {
	for _, name := range fieldKindOrder {
		ops := registeredFieldKinds[name]
		if ops.Matches(field) {
			return name, ops
		}
	}
	exceptions.Panicf("no registered field kind handles values of type %T (registered kinds: %q)",
		field, fieldKindOrder)
	return "", FieldOps{}
}

// FieldKindDense is the name of the registered kind handling *tensors.Tensor
// fields.
const FieldKindDense = "dense"

func init() {
	RegisterFieldKind(FieldKindDense, FieldOps{
		Matches: func(field Field) bool {
			_, ok := field.(*tensors.Tensor)
			return ok
		},
		Index:    denseIndex,
		SetIndex: denseSetIndex,
		Clone: func(field Field) Field {
			return field.(*tensors.Tensor).Clone()
		},
		Equal: func(field, other Field) bool {
			return field.(*tensors.Tensor).Equal(other.(*tensors.Tensor))
		},
		GobSerialize: func(field Field, encoder *gob.Encoder) error {
			return field.(*tensors.Tensor).GobSerialize(encoder)
		},
		GobDeserialize: func(decoder *gob.Decoder) (Field, error) {
			return tensors.GobDeserialize(decoder)
		},
	})
}

// denseIndex applies a normalized batch index expression to a dense field.
// When every batch dimension is indexed by a fancy element the batch axes
// collapse to the shared selection shape, zipping the selections; the
// trailing (non-batch) dimensions of the field are preserved either way.
func denseIndex(field Field, batchDims []int, axes []indexing.Axis) Field {
	t := field.(*tensors.Tensor)
	if len(batchDims) > 1 && allFancy(axes) {
		flat, rows := flattenFancyBatch(t, batchDims, axes)
		return flat.GatherRows(rows)
	}
	return t.Index(axes...)
}

func denseSetIndex(field Field, value Field, batchDims []int, axes []indexing.Axis) {
	t := field.(*tensors.Tensor)
	v, ok := value.(*tensors.Tensor)
	if !ok {
		exceptions.Panicf("cannot assign a %T to a dense field", value)
	}
	if len(batchDims) > 1 && allFancy(axes) {
		flat, rows := flattenFancyBatch(t, batchDims, axes)
		flat.ScatterRows(rows, v)
		return
	}
	t.SetIndex(v, axes...)
}

func allFancy(axes []indexing.Axis) bool {
	for _, axis := range axes {
		if axis.Kind() != indexing.AxisPick && axis.Kind() != indexing.AxisMask {
			return false
		}
	}
	return len(axes) > 0
}

// flattenFancyBatch reshapes the field so its batch axes form a single
// leading axis (sharing storage with t) and linearizes the zipped fancy
// selections into rows of that axis.
func flattenFancyBatch(t *tensors.Tensor, batchDims []int, axes []indexing.Axis) (flat *tensors.Tensor, rows []int) {
	selections := make([][]int, len(axes))
	for axisIdx, axis := range axes {
		selections[axisIdx] = axis.Indices(batchDims[axisIdx])
		if len(selections[axisIdx]) != len(selections[0]) {
			exceptions.Panicf("all tensor indices must have the same shape, got %d and %d selected entries",
				len(selections[axisIdx]), len(selections[0]))
		}
	}
	flatBatch := 1
	for _, dim := range batchDims {
		flatBatch *= dim
	}
	flatDims := append([]int{flatBatch}, t.Shape().Dimensions[len(batchDims):]...)
	flat = t.Reshape(flatDims...)
	rows = make([]int, len(selections[0]))
	for entry := range rows {
		row := 0
		for axisIdx, selection := range selections {
			row = row*batchDims[axisIdx] + selection[entry]
		}
		rows[entry] = row
	}
	return
}
