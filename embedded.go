//go:build embedded

// embedded.go -- process-wide singleton oracle over compiled-in assets
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

import (
	"bytes"
	_ "embed"
	"sync"
)

//go:embed assets/phash.ptrh.dat
var embeddedPhash []byte

//go:embed assets/heights.u18packed.dat
var embeddedHeightsPacked []byte

var (
	embeddedOnce    sync.Once
	embeddedOracle  *Oracle
	embeddedLoadErr error
)

// loadEmbedded deserializes the compiled-in phash and heights blobs
// exactly once, no matter how many goroutines call it concurrently.
// A partially-initialized Oracle is never observed: sync.Once
// guarantees the write to embeddedOracle happens-before any caller
// returns from Once.Do.
func loadEmbedded() {
	heights, err := DeserializeHeights(bytes.NewReader(embeddedHeightsPacked))
	if err != nil {
		embeddedLoadErr = err
		return
	}

	oracle, err := LoadFromBytes(embeddedPhash, heights)
	if err != nil {
		embeddedLoadErr = err
		return
	}

	embeddedOracle = oracle
}

// GuessHeightPreBIP34Unchecked is the process-wide embedded oracle's
// lookup entry point. The first call triggers a one-shot load of the
// compiled-in assets; subsequent calls observe the fully initialized
// oracle with no further synchronization cost beyond sync.Once's fast
// path.
//
// Failure to deserialize the embedded assets is a fatal process error
// -- the blobs are compiled into the binary and treated as trusted, so
// it panics rather than returning an error; there is no recovery short
// of shipping a correct binary.
func GuessHeightPreBIP34Unchecked(id BlockHash) uint32 {
	embeddedOnce.Do(loadEmbedded)
	if embeddedLoadErr != nil {
		panic("heightoracle: failed to load embedded oracle: " + embeddedLoadErr.Error())
	}
	return embeddedOracle.Lookup(id)
}

// GuessHeightPreBIP34FromHexUnchecked is the hex convenience wrapper
// over GuessHeightPreBIP34Unchecked. Malformed hex panics.
func GuessHeightPreBIP34FromHexUnchecked(hex string) uint32 {
	id := MustParseBlockHash(hex)
	return GuessHeightPreBIP34Unchecked(id)
}
