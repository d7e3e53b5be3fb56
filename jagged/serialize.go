package jagged

import (
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/gomlx/tensordict/types/tensors"
)

// header is the gob-encoded layout metadata of a jagged tensor; the flat
// buffers follow it in the stream.
type header struct {
	Keys       []string
	Lengths    []int
	HasWeights bool
}

// GobSerialize the jagged tensor in binary format: layout metadata first,
// then the flat buffers.
func (jt *Tensor) GobSerialize(encoder *gob.Encoder) (err error) {
	err = encoder.Encode(header{
		Keys:       jt.keys,
		Lengths:    jt.current.lengths,
		HasWeights: jt.current.weights != nil,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to write jagged tensor layout")
	}
	err = jt.current.values.GobSerialize(encoder)
	if err != nil {
		return errors.WithMessagef(err, "failed to write jagged tensor values")
	}
	if jt.current.weights != nil {
		err = jt.current.weights.GobSerialize(encoder)
		if err != nil {
			return errors.WithMessagef(err, "failed to write jagged tensor weights")
		}
	}
	return nil
}

// GobDeserialize a jagged tensor from the decoder.
func GobDeserialize(decoder *gob.Decoder) (jt *Tensor, err error) {
	var h header
	err = decoder.Decode(&h)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read jagged tensor layout")
	}
	values, err := tensors.GobDeserialize(decoder)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read jagged tensor values")
	}
	var weights *tensors.Tensor
	if h.HasWeights {
		weights, err = tensors.GobDeserialize(decoder)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read jagged tensor weights")
		}
	}
	return FromLengths(h.Keys, h.Lengths, values, weights)
}
