package tensordict

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
)

// dictHeader is the gob-encoded metadata of a TensorDict; the fields follow
// it in the stream, each prefixed by its key and kind name.
type dictHeader struct {
	BatchDims []int
	Keys      []string
	Kinds     []string
}

// GobSerialize the TensorDict in binary format. It returns an error if any
// field is of a kind registered without serialization support.
func (td *TensorDict) GobSerialize(encoder *gob.Encoder) (err error) {
	h := dictHeader{
		BatchDims: td.batchDims,
		Keys:      td.keys,
		Kinds:     make([]string, 0, len(td.keys)),
	}
	for _, key := range td.keys {
		kind, ops := fieldKindOf(td.fields[key])
		if ops.GobSerialize == nil {
			return errors.Errorf("field %q of kind %q does not support serialization", key, kind)
		}
		h.Kinds = append(h.Kinds, kind)
	}
	err = encoder.Encode(h)
	if err != nil {
		return errors.Wrapf(err, "failed to write TensorDict layout")
	}
	for ii, key := range td.keys {
		ops := registeredFieldKinds[h.Kinds[ii]]
		err = ops.GobSerialize(td.fields[key], encoder)
		if err != nil {
			return errors.WithMessagef(err, "failed to write TensorDict field %q", key)
		}
	}
	return nil
}

// GobDeserialize a TensorDict from the decoder. All field kinds present in
// the stream must have been registered with deserialization support.
func GobDeserialize(decoder *gob.Decoder) (td *TensorDict, err error) {
	var h dictHeader
	err = decoder.Decode(&h)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read TensorDict layout")
	}
	if len(h.Kinds) != len(h.Keys) {
		return nil, errors.Errorf("corrupt TensorDict stream: %d keys but %d kinds", len(h.Keys), len(h.Kinds))
	}
	td = New(h.BatchDims...)
	for ii, key := range h.Keys {
		ops, found := registeredFieldKinds[h.Kinds[ii]]
		if !found || ops.GobDeserialize == nil {
			return nil, errors.Errorf("field %q has kind %q, which is not registered for deserialization",
				key, h.Kinds[ii])
		}
		field, err := ops.GobDeserialize(decoder)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read TensorDict field %q", key)
		}
		td.Set(key, field)
	}
	return td, nil
}

// Save the TensorDict to the given file path, in gob binary format.
func (td *TensorDict) Save(filePath string) (err error) {
	var f *os.File
	f, err = os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating %q to save TensorDict", filePath)
	}
	enc := gob.NewEncoder(f)
	err = td.GobSerialize(enc)
	if err != nil {
		return errors.WithMessagef(err, "saving TensorDict to %q", filePath)
	}
	err = f.Close()
	if err != nil {
		return errors.Wrapf(err, "close file %q, where TensorDict was saved", filePath)
	}
	return nil
}

// Load a TensorDict from the file path given.
func Load(filePath string) (td *TensorDict, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q to load TensorDict", filePath)
	}
	dec := gob.NewDecoder(f)
	td, err = GobDeserialize(dec)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading TensorDict from %q", filePath)
	}
	_ = f.Close()
	return td, nil
}
