// packing_test.go -- test suite for the height packer

package heightoracle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPack4HeightsBoundary(t *testing.T) {
	require := require.New(t)

	block, err := pack4Heights([4]uint32{0, 1, 100, 262143})
	require.NoError(err)

	got := unpack4Heights(block)
	require.Equal([4]uint32{0, 1, 100, 262143}, got)
}

func TestPack4HeightsAllMax(t *testing.T) {
	require := require.New(t)

	block, err := pack4Heights([4]uint32{MaxHeight, MaxHeight, MaxHeight, MaxHeight})
	require.NoError(err)

	got := unpack4Heights(block)
	require.Equal([4]uint32{MaxHeight, MaxHeight, MaxHeight, MaxHeight}, got)
}

func TestPack4HeightsRejectsOverflow(t *testing.T) {
	require := require.New(t)

	_, err := pack4Heights([4]uint32{0, 0, 0, 262144})
	require.ErrorIs(err, ErrHeightOutOfRange)
}

func TestSerializeHeightsFiveElements(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	require.NoError(SerializeHeights([]uint32{1, 2, 3, 4, 5}, &buf))

	b := buf.Bytes()
	require.Equal([]byte{0x05, 0x00, 0x00, 0x00, 0x01}, b[:5])
	require.Len(b, 5+9*2)

	back, err := DeserializeHeights(bytes.NewReader(b))
	require.NoError(err)
	require.Equal([]uint32{1, 2, 3, 4, 5}, back)
}

func TestSerializeHeightsEmpty(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	require.NoError(SerializeHeights(nil, &buf))

	require.Equal([]byte{0x00, 0x00, 0x00, 0x00, 0x00}, buf.Bytes())

	back, err := DeserializeHeights(bytes.NewReader(buf.Bytes()))
	require.NoError(err)
	require.Empty(back)
}

func TestSerializeDeserializeHeightsRoundtrip(t *testing.T) {
	require := require.New(t)

	heights := make([]uint32, 0, 4*227931)
	for i := uint32(0); i < 227931; i++ {
		heights = append(heights, i%MaxHeight)
	}

	var buf bytes.Buffer
	require.NoError(SerializeHeights(heights, &buf))

	back, err := DeserializeHeights(bytes.NewReader(buf.Bytes()))
	require.NoError(err)
	require.Equal(heights, back)
}

func TestDeserializeHeightsShortReadIsError(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	require.NoError(SerializeHeights([]uint32{1, 2, 3, 4, 5}, &buf))

	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := DeserializeHeights(bytes.NewReader(truncated))
	require.Error(err)
}

func TestHeightPackerRoundtrip(t *testing.T) {
	require := require.New(t)

	p := NewHeightPacker()
	require.Equal(18, p.Width())
	require.Equal(uint32(MaxHeight), p.Max())

	values := []uint32{0, 1, 100, 262143, 7, 42}
	data, err := p.Pack(values)
	require.NoError(err)
	require.Len(data, 9*2)

	require.Equal(values, p.Unpack(data, len(values)))
}

func TestBitPackerWideWidthRoundtrip(t *testing.T) {
	require := require.New(t)

	p, err := NewBitPacker(25)
	require.NoError(err)

	values := []uint32{0, 1, 1 << 20, p.Max()}
	data, err := p.Pack(values)
	require.NoError(err)

	require.Equal(values, p.Unpack(data, len(values)))
}

func TestBitPackerRejectsOverflowAndBadWidth(t *testing.T) {
	require := require.New(t)

	_, err := NewBitPacker(33)
	require.Error(err)

	p, err := NewBitPacker(10)
	require.NoError(err)

	_, err = p.Pack([]uint32{1 << 10})
	require.ErrorIs(err, ErrHeightOutOfRange)
}

func TestPackUnpackBitsFallback(t *testing.T) {
	require := require.New(t)

	values := []uint32{0, 1, 1000000, (1 << 22) - 1, 5}
	data := PackBits(values, 22)
	back := UnpackBits(data, 22, len(values))
	require.Equal(values, back)
}
