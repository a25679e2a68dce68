// bitvector_test.go -- test suite for bitvector
//
// (c) Sudhi Herle 2018
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitVectorSimple(t *testing.T) {
	require := require.New(t)

	bv := newBitVector(100)
	require.Equal(uint64(128), bv.Size())

	for i := uint64(0); i < bv.Size(); i++ {
		if 1 == (i & 1) {
			bv.Set(i)
		}
	}

	for i := uint64(0); i < bv.Size(); i++ {
		if 1 == (i & 1) {
			require.True(bv.IsSet(i), "%d not set", i)
		} else {
			require.False(bv.IsSet(i), "%d is set", i)
		}
	}
}

func TestBitVectorMerge(t *testing.T) {
	require := require.New(t)

	av := newBitVector(60)
	bv := newBitVector(60)
	require.Equal(uint64(64), av.Size())
	require.Equal(uint64(64), bv.Size())

	for i := uint64(0); i < av.Size(); i++ {
		if 1 == (i & 1) {
			bv.Set(i)
		} else {
			av.Set(i)
		}
	}

	av.Merge(bv)
	for i := uint64(0); i < av.Size(); i++ {
		require.True(av.IsSet(i), "merged bit %d not set", i)
	}
}
