// fasthash.go -- fast non-cryptographic hashing for CHD keys
//
// Caller-supplied byte-string keys are first reduced to a uint64 with
// xxhash, then mixed with a borrowed variant of Zi Long Tan's
// superfast hash to spread bits across the bucket and pilot-search
// space.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

import "github.com/cespare/xxhash/v2"

// keyHash reduces an arbitrary byte-string key to a uint64 digest.
func keyHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// mix is the compression function for the mixing hash, borrowed from
// Zi Long Tan's superfast hash.
func mix(h uint64) uint64 {
	h ^= h >> 23
	h *= 0x2127599bf4325c37
	h ^= h >> 47
	return h
}

// rhash hashes a 64-bit key digest with a given seed and salt, folding
// the result modulo sz. sz need not be a power of two; the bucket
// count and slot-table size are both sized to the key count, not
// rounded up.
func rhash(seed uint32, keyDigest uint64, sz uint64, salt uint64) uint64 {
	const m uint64 = 0x880355f21e6d1965
	h := keyDigest

	h *= m
	h ^= mix(salt)
	h *= m
	h ^= mix(uint64(seed))
	h *= m
	return mix(h) % sz
}
