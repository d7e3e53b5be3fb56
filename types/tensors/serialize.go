package tensors

import (
	"encoding/gob"
	"os"
	"reflect"

	"github.com/pkg/errors"

	"github.com/gomlx/tensordict/types/shapes"
)

// GobSerialize the tensor in binary format: shape first, then the flat data.
//
// It returns an error for I/O errors.
// It panics for invalid or meta tensors (meta tensors hold no data to write).
func (t *Tensor) GobSerialize(encoder *gob.Encoder) (err error) {
	if t == nil {
		panic(errors.New("Tensor is nil"))
	}
	t.AssertValid()
	t.assertHasData()
	err = t.shape.GobSerialize(encoder)
	if err != nil {
		return
	}
	err = encoder.Encode(t.flat)
	if err != nil {
		err = errors.Wrapf(err, "failed to write Tensor data")
	}
	return
}

// GobDeserialize a Tensor from the decoder.
//
// The returned tensor owns the decoded data, no copy is made.
func GobDeserialize(decoder *gob.Decoder) (t *Tensor, err error) {
	shape, err := shapes.GobDeserialize(decoder)
	if err != nil {
		err = errors.WithMessagef(err, "failed to deserialize Tensor shape")
		return
	}
	flatPtrV := reflect.New(reflect.SliceOf(shape.DType.GoType()))
	err = decoder.Decode(flatPtrV.Interface())
	if err != nil {
		err = errors.Wrapf(err, "failed to deserialize Tensor data")
		return
	}
	t = &Tensor{
		shape: shape,
		flat:  flatPtrV.Elem().Interface(),
	}
	return
}

// Save the tensor to the given file path, in gob binary format.
//
// It returns an error for I/O errors.
// It may panic if the tensor is invalid.
func (t *Tensor) Save(filePath string) (err error) {
	t.AssertValid()
	var f *os.File
	f, err = os.Create(filePath)
	if err != nil {
		err = errors.Wrapf(err, "creating %q to save tensor", filePath)
		return
	}
	enc := gob.NewEncoder(f)
	err = t.GobSerialize(enc)
	if err != nil {
		err = errors.WithMessagef(err, "saving Tensor to %q", filePath)
		return
	}
	err = f.Close()
	if err != nil {
		err = errors.Wrapf(err, "close file %q, where tensor was saved", filePath)
		return
	}
	return
}

// Load a tensor from the file path given.
func Load(filePath string) (t *Tensor, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		err = errors.Wrapf(err, "opening %q to load Tensor", filePath)
		return
	}
	dec := gob.NewDecoder(f)
	t, err = GobDeserialize(dec)
	if err != nil {
		err = errors.WithMessagef(err, "loading Tensor from %q", filePath)
		return
	}
	_ = f.Close()
	return
}
