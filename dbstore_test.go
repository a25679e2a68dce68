// dbstore_test.go -- test suite for Writer/Reader

package heightoracle

import (
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

var kvWords = []string{
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

func TestKVStoreRoundtrip(t *testing.T) {
	require := require.New(t)

	fn := fmt.Sprintf("%s/kvstore%d.db", os.TempDir(), rand.Int())
	defer os.Remove(fn)

	wr, err := NewWriter(fn)
	require.NoError(err, "can't create db")

	kvmap := make(map[string]string)
	for _, s := range kvWords {
		err = wr.Add([]byte(s), []byte(s))
		require.NoError(err, "can't add key %s", s)
		kvmap[s] = s
	}
	require.Equal(len(kvWords), wr.Len())

	require.NoError(wr.Freeze(0.9), "freeze failed")

	rd, err := NewReader(fn, 10)
	require.NoError(err, "open failed")
	defer rd.Close()

	require.Equal(len(kvWords), rd.Len())

	for k, v := range kvmap {
		val, err := rd.Find([]byte(k))
		require.NoError(err, "can't find key %s", k)
		require.Equal(v, string(val))
	}

	for i := 0; i < 10; i++ {
		missing := fmt.Sprintf("no-such-key-%d", i)
		_, err := rd.Find([]byte(missing))
		require.Error(err, "unexpectedly found absent key %s", missing)
	}
}

func TestKVStoreDuplicateKey(t *testing.T) {
	require := require.New(t)

	fn := fmt.Sprintf("%s/kvstoredup%d.db", os.TempDir(), rand.Int())
	defer os.Remove(fn)

	wr, err := NewWriter(fn)
	require.NoError(err)
	defer wr.Abort()

	require.NoError(wr.Add([]byte("a"), []byte("1")))
	require.Equal(ErrExists, wr.Add([]byte("a"), []byte("2")))
}

func TestKVStoreFrozenRejectsAdd(t *testing.T) {
	require := require.New(t)

	fn := fmt.Sprintf("%s/kvstorefrozen%d.db", os.TempDir(), rand.Int())
	defer os.Remove(fn)

	wr, err := NewWriter(fn)
	require.NoError(err)

	require.NoError(wr.Add([]byte("a"), []byte("1")))
	require.NoError(wr.Freeze(0.9))

	require.Equal(ErrFrozen, wr.Add([]byte("b"), []byte("2")))
}
