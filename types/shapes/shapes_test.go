/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package shapes

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 4*4*3*2, int(shape1.Memory()))
	require.Equal(t, 2, shape1.Dim(-1))
	require.Equal(t, 4, shape1.Dim(0))

	require.Panics(t, func() { Make(dtypes.Float32, 3, -1) })
	require.Panics(t, func() { shape1.Dim(3) })

	shape2 := Make(dtypes.Float32, 4, 0, 2)
	require.True(t, shape2.Ok())
	require.True(t, shape2.IsZeroSize())
	require.Equal(t, 0, shape2.Size())
}

func TestHasPrefix(t *testing.T) {
	shape := Make(dtypes.Int32, 4, 5, 6)
	require.True(t, shape.HasPrefix(nil))
	require.True(t, shape.HasPrefix([]int{4}))
	require.True(t, shape.HasPrefix([]int{4, 5}))
	require.True(t, shape.HasPrefix([]int{4, 5, 6}))
	require.False(t, shape.HasPrefix([]int{5}))
	require.False(t, shape.HasPrefix([]int{4, 5, 6, 7}))
}

func TestEqual(t *testing.T) {
	s1 := Make(dtypes.Float32, 2, 3)
	s2 := Make(dtypes.Float32, 2, 3)
	s3 := Make(dtypes.Float64, 2, 3)
	s4 := Make(dtypes.Float32, 3, 2)
	require.True(t, s1.Equal(s2))
	require.False(t, s1.Equal(s3))
	require.True(t, s1.EqualDimensions(s3))
	require.False(t, s1.Equal(s4))

	clone := s1.Clone()
	clone.Dimensions[0] = 7
	require.Equal(t, 2, s1.Dimensions[0])
}

func TestGobSerialization(t *testing.T) {
	shape := Make(dtypes.Float64, 2, 3, 4)
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	require.NoError(t, shape.GobSerialize(enc))

	dec := gob.NewDecoder(&buf)
	recovered, err := GobDeserialize(dec)
	require.NoError(t, err)
	require.True(t, shape.Equal(recovered))
}
