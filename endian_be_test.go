// endian_be_test.go -- test suite for endian-convertors:
// Run this on Big-endian machines!
//
// (c) Sudhi Herle 2018
//
// Author: Sudhi Herle <sudhi@herle.net>
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

// +build ppc64 mips mips64

package heightoracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndianOnBE(t *testing.T) {
	a0 := uint32(0xabcd1234)
	b0 := toBigEndianUint32(a0)
	require.Equal(t, a0, b0)

	a1 := uint64(0xabcd1234baadf00d)
	b1 := toBigEndianUint64(a1)
	require.Equal(t, a1, b1)

	a2 := uint16(0xabcd)
	b2 := toBigEndianUint16(a2)
	require.Equal(t, a2, b2)

	b0 = toLittleEndianUint32(a0)
	require.Equal(t, uint32(0x3412cdab), b0)

	b1 = toLittleEndianUint64(a1)
	require.Equal(t, uint64(0x0df0adba3412cdab), b1)

	b2 = toLittleEndianUint16(a2)
	require.Equal(t, uint16(0xcdab), b2)
}
