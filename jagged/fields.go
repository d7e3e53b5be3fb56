package jagged

import (
	"encoding/gob"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/tensordict"
	"github.com/gomlx/tensordict/types/indexing"
)

// FieldKind is the name under which jagged tensors are registered as a
// TensorDict field kind. The registration happens when this package is
// imported; a program that never imports it gets dense-only dictionaries.
const FieldKind = "jagged"

func init() {
	tensordict.RegisterFieldKind(FieldKind, tensordict.FieldOps{
		Matches: func(field tensordict.Field) bool {
			_, ok := field.(*Tensor)
			return ok
		},
		Index: func(field tensordict.Field, batchDims []int, axes []indexing.Axis) tensordict.Field {
			jt := field.(*Tensor)
			if len(axes) == 0 {
				// A TensorDict without batch dimensions indexes to a copy.
				return jt.Clone()
			}
			return jt.Index(axes[0])
		},
		SetIndex: func(field, value tensordict.Field, batchDims []int, axes []indexing.Axis) {
			target := field.(*Tensor)
			other, ok := value.(*Tensor)
			if !ok {
				exceptions.Panicf("cannot assign a %T to a jagged field", value)
			}
			axis := indexing.Full()
			if len(axes) > 0 {
				axis = axes[0]
			}
			target.SetIndex(axis, other)
		},
		Clone: func(field tensordict.Field) tensordict.Field {
			return field.(*Tensor).Clone()
		},
		Equal: func(field, other tensordict.Field) bool {
			return field.(*Tensor).Equal(other.(*Tensor))
		},
		GobSerialize: func(field tensordict.Field, encoder *gob.Encoder) error {
			return field.(*Tensor).GobSerialize(encoder)
		},
		GobDeserialize: func(decoder *gob.Decoder) (tensordict.Field, error) {
			return GobDeserialize(decoder)
		},
	})
}
