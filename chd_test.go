// chd_test.go -- test suite for the CHD minimal perfect hash
//
// (c) Sudhi Herle 2018
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var keyw = []string{
	"expectoration",
	"mizzenmastman",
	"stockfather",
	"pictorialness",
	"villainous",
	"unquality",
	"sized",
	"Tarahumari",
	"endocrinotherapy",
	"quicksandy",
	"heretics",
	"pediment",
	"spleen's",
	"Shepard's",
	"paralyzed",
	"megahertzes",
	"Richardson's",
	"mechanics's",
	"Springfield",
	"burlesques",
}

func TestCHDSimple(t *testing.T) {
	require := require.New(t)

	c := NewChdBuilder()
	for _, s := range keyw {
		require.NoError(c.Add([]byte(s)), "add key %s", s)
	}

	chd, err := c.Freeze(0.9)
	require.NoError(err, "freeze")

	n := uint64(chd.Len())
	require.Equal(len(keyw), chd.Len())

	seen := make(map[uint64]string)
	for _, s := range keyw {
		j := chd.Find([]byte(s))
		require.Less(j, n, "key %s mapping %d out-of-bounds", s, j)

		if other, ok := seen[j]; ok {
			t.Fatalf("slot %d already mapped to key %s (collision with %s)", j, other, s)
		}
		seen[j] = s
	}
}

func TestCHDDuplicateKeyRejected(t *testing.T) {
	require := require.New(t)

	c := NewChdBuilder()
	require.NoError(c.Add([]byte("dup")))
	require.ErrorIs(c.Add([]byte("dup")), ErrDuplicateKey)
}

func TestCHDFreezeThenAddFails(t *testing.T) {
	require := require.New(t)

	c := NewChdBuilder()
	require.NoError(c.Add([]byte("a")))

	_, err := c.Freeze(0.9)
	require.NoError(err)

	require.ErrorIs(c.Add([]byte("b")), ErrFrozen)
}

func TestCHDMarshal(t *testing.T) {
	require := require.New(t)

	b := NewChdBuilder()
	for _, s := range keyw {
		require.NoError(b.Add([]byte(s)))
	}

	c, err := b.Freeze(0.9)
	require.NoError(err, "freeze failed")

	var buf bytes.Buffer
	n, err := c.MarshalBinary(&buf)
	require.NoError(err, "marshal failed")
	require.Greater(n, 0)

	var c2 Chd
	require.NoError(c2.UnmarshalBinaryMmap(buf.Bytes()), "unmarshal failed")

	for _, s := range keyw {
		x := c.Find([]byte(s))
		y := c2.Find([]byte(s))
		require.Equal(x, y, "mismatched mapping for key %s", s)
	}
}

func TestCHDEmptyKeySet(t *testing.T) {
	require := require.New(t)

	c := NewChdBuilder()
	chd, err := c.Freeze(0.9)
	require.NoError(err)
	require.Equal(0, chd.Len())
}
