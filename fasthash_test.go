// fasthash_test.go -- synthetic large-key-set stress test for the CHD
// MPHF engine.
//
// Builds test keys with github.com/opencoff/go-fasthash's
// Hash64(seed, []byte) to get a large set of well-distributed uint64
// digests cheaply, then turns those digests into 8-byte string keys
// (Chd hashes arbitrary byte strings, not just uint64s), exercising a
// much larger synthetic construction than the small literal word list
// in chd_test.go.

package heightoracle

import (
	"encoding/binary"
	"testing"

	"github.com/opencoff/go-fasthash"
	"github.com/stretchr/testify/require"
)

func TestCHDLargeSyntheticKeySet(t *testing.T) {
	require := require.New(t)

	const n = 20000
	seed := rand64()

	c := NewChdBuilder()
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(i))

		h := fasthash.Hash64(seed, buf[:])

		var key [8]byte
		binary.LittleEndian.PutUint64(key[:], h)
		keys[i] = key[:]

		require.NoError(c.Add(keys[i]), "add key %d", i)
	}

	chd, err := c.Freeze(0.85)
	require.NoError(err, "freeze")
	require.Equal(n, chd.Len())

	seen := make(map[uint64]int, n)
	for i, k := range keys {
		slot := chd.Find(k)
		require.Less(slot, uint64(n))

		if other, ok := seen[slot]; ok {
			t.Fatalf("slot %d already mapped to key %d (collision with %d)", slot, other, i)
		}
		seen[slot] = i
	}
}
