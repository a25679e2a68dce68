// chd.go -- fast minimal perfect hashing for massive key sets
//
// This is an implementation of CHD in http://cmph.sourceforge.net/papers/esa09.pdf,
// operating over arbitrary byte-string keys and extended with a remap
// table (seed.go) so that Find is truly minimal: it always returns a
// value in [0, N).
//
// (c) Sudhi Herle 2018
//
// License GPLv2
package heightoracle

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// maxSeed bounds the per-bucket pilot search; exhausting it without a
// collision-free assignment is a construction failure for that bucket.
const maxSeed uint32 = 65536 * 2

// maxSaltRetries bounds the number of construction attempts Freeze
// makes. After an attempt in which a bucket exhausts its pilot search,
// Freeze picks a fresh top-level salt and retries the whole
// construction.
const maxSaltRetries = 8

// bucketLambda is the average number of keys per bucket. One pilot is
// stored per bucket, so the pilot table costs seedsize*8/bucketLambda
// bits per key.
const bucketLambda = 6

// ChdBuilder accumulates a closed set of distinct byte-string keys and,
// once Freeze is called, builds a minimal perfect hash function over
// them using the Compress Hash Displace algorithm.
type ChdBuilder struct {
	order  []string // preserves Add() order for deterministic iteration
	digest map[string]uint64
	salt   uint64
	frozen bool
}

// NewChdBuilder creates an empty CHD builder.
func NewChdBuilder() *ChdBuilder {
	return &ChdBuilder{
		digest: make(map[string]uint64),
		salt:   rand64(),
	}
}

// Add adds a new key to the MPH builder. Keys are arbitrary byte
// strings (the caller owns any further hashing/encoding). Duplicate
// keys are rejected with ErrDuplicateKey.
func (c *ChdBuilder) Add(key []byte) error {
	if c.frozen {
		return ErrFrozen
	}

	s := string(key)
	if _, ok := c.digest[s]; ok {
		return ErrDuplicateKey
	}

	c.digest[s] = keyHash(key)
	c.order = append(c.order, s)
	return nil
}

// Len returns the number of distinct keys added so far.
func (c *ChdBuilder) Len() int {
	return len(c.order)
}

// Freeze builds a constant-time minimal perfect hash table using the
// CHD algorithm at the given load factor (0 < load <= 1). The slot
// table is sized to ceil(N/load); the slack above N is what the remap
// table compresses away, so values close to 1 minimize the remap
// overhead while lower values speed up the pilot search. 0.97 is a
// good default; below that the remap table starts to dominate the
// bits-per-element budget.
func (c *ChdBuilder) Freeze(load float64) (*Chd, error) {
	if load <= 0 || load > 1 {
		return nil, fmt.Errorf("heightoracle: invalid load factor %f", load)
	}
	if c.frozen {
		return nil, ErrFrozen
	}

	n := uint64(len(c.order))
	if n == 0 {
		c.frozen = true
		return &Chd{n: 0, seed: makeSeeds(nil, 0), remap: &remapTable{n: 0}}, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxSaltRetries; attempt++ {
		chd, err := c.tryFreeze(n, load)
		if err == nil {
			c.frozen = true
			return chd, nil
		}
		lastErr = err
		c.salt = rand64() // fresh seed for the next bounded-budget retry
	}

	return nil, fmt.Errorf("%w: %v", ErrMPHFFail, lastErr)
}

func (c *ChdBuilder) tryFreeze(n uint64, load float64) (*Chd, error) {
	m := uint64(math.Ceil(float64(n) / load))
	if m < n {
		m = n
	}

	nbuckets := (n + bucketLambda - 1) / bucketLambda

	bs := make(buckets, nbuckets)
	for i := range bs {
		bs[i].slot = uint64(i)
	}

	for i, s := range c.order {
		d := c.digest[s]
		j := rhash(0, d, nbuckets, c.salt)
		b := &bs[j]
		b.items = append(b.items, bucketItem{digest: d, index: i})
	}

	occ := newBitVector(m)
	bOcc := newBitVector(m)
	seeds := make([]uint32, nbuckets)

	sort.Sort(bs)

	var maxSeedUsed uint32
	for bi := range bs {
		b := &bs[bi]
		if len(b.items) == 0 {
			continue
		}

		found := false
		for s := uint32(1); s < maxSeed; s++ {
			bOcc.Reset()
			ok := true
			for _, it := range b.items {
				h := rhash(s, it.digest, m, c.salt)
				if occ.IsSet(h) || bOcc.IsSet(h) {
					ok = false
					break
				}
				bOcc.Set(h)
			}
			if !ok {
				continue
			}

			occ.Merge(bOcc)
			seeds[b.slot] = s
			if s > maxSeedUsed {
				maxSeedUsed = s
			}
			found = true
			break
		}

		if !found {
			return nil, fmt.Errorf("no collision-free seed for bucket %d after %d tries", b.slot, maxSeed)
		}
	}

	remap := buildRemapTable(occ, n, m)

	return &Chd{
		n:     n,
		m:     m,
		seed:  makeSeeds(seeds, maxSeedUsed),
		remap: remap,
		salt:  c.salt,
	}, nil
}

// buildRemapTable compresses occupied slots in [n, m) down into the
// holes left in [0, n). Unoccupied overflow slots (never produced by a
// real key) are left mapped to hole 0 -- any value in [0, n) is a valid
// answer for a key outside the original set.
func buildRemapTable(occ *bitVector, n, m uint64) *remapTable {
	if m <= n {
		return &remapTable{n: n}
	}

	holes := make([]uint32, 0, m-n)
	for i := uint64(0); i < n; i++ {
		if !occ.IsSet(i) {
			holes = append(holes, uint32(i))
		}
	}

	remap := make([]uint32, m-n)
	hi := 0
	for i := n; i < m; i++ {
		if occ.IsSet(i) {
			remap[i-n] = holes[hi]
			hi++
		} else if len(holes) > 0 {
			remap[i-n] = holes[0]
		}
	}

	return &remapTable{n: n, remap: remap}
}

// Chd represents a frozen, minimal perfect hash function for the
// given set of keys.
type Chd struct {
	n     uint64 // key count; Find's range is [0, n)
	m     uint64 // slot-table size, ceil(n/load)
	seed  seeder
	remap *remapTable
	salt  uint64
}

// Len returns N, the number of keys the MPHF was built over. Find
// always returns a value in [0, Len()).
func (c *Chd) Len() int { return int(c.n) }

// SeedSize returns the width in bytes of each stored pilot value.
func (c *Chd) SeedSize() byte { return c.seed.seedsize() }

// Find returns the unique slot assigned to key, for keys in the
// original build set. For keys outside that set, Find returns some
// value in [0, Len()) with no further guarantee (see package docs on
// domain violations).
func (c *Chd) Find(key []byte) uint64 {
	return c.FindDigest(keyHash(key))
}

// FindDigest is Find's digest-based entry point, useful when the
// caller has already reduced its key to a uint64 (e.g. during
// construction, or for synthetic-key tests).
func (c *Chd) FindDigest(digest uint64) uint64 {
	nbuckets := uint64(c.seed.length())
	if nbuckets == 0 || c.m == 0 {
		return 0
	}
	j := rhash(0, digest, nbuckets, c.salt)
	s := c.seed.seed(j)
	slot := rhash(s, digest, c.m, c.salt)
	return c.remap.apply(slot)
}

// chdMagic marks the on-disk serialization format's version.
const chdMagic = "CHD1"

// chdHeaderSize is the fixed header: 4-byte magic, 1-byte seedsize,
// 3 bytes reserved, 8-byte salt, 8-byte N, 8-byte slot-table size m,
// 8-byte bucket count.
const chdHeaderSize = 4 + 1 + 3 + 8 + 8 + 8 + 8

// MarshalBinary encodes the MPHF (pilot table + remap table) into a
// self-describing binary form suitable for durable storage. A
// subsequent UnmarshalBinaryMmap reconstructs an equivalent Chd.
func (c *Chd) MarshalBinary(w io.Writer) (int, error) {
	var hdr [chdHeaderSize]byte
	copy(hdr[0:4], chdMagic)
	hdr[4] = c.seed.seedsize()
	binary.LittleEndian.PutUint64(hdr[8:16], c.salt)
	binary.LittleEndian.PutUint64(hdr[16:24], c.n)
	binary.LittleEndian.PutUint64(hdr[24:32], c.m)
	binary.LittleEndian.PutUint64(hdr[32:40], uint64(c.seed.length()))

	nw, err := writeAll(w, hdr[:])
	if err != nil {
		return nw, err
	}

	sn, err := c.seed.marshal(w)
	nw += sn
	if err != nil {
		return nw, err
	}

	rn, err := c.remap.marshal(w)
	return nw + rn, err
}

// UnmarshalBinaryMmap reads a previously marshalled Chd. buf may be a
// memory-mapped or otherwise externally-owned byte slice; the pilot
// and remap tables alias into it directly (zero-copy).
func (c *Chd) UnmarshalBinaryMmap(buf []byte) error {
	if len(buf) < chdHeaderSize {
		return fmt.Errorf("%w: short buffer", ErrBadMagic)
	}

	hdr := buf[:chdHeaderSize]
	if string(hdr[0:4]) != chdMagic {
		return ErrBadMagic
	}

	size := hdr[4]
	salt := binary.LittleEndian.Uint64(hdr[8:16])
	n := binary.LittleEndian.Uint64(hdr[16:24])
	m := binary.LittleEndian.Uint64(hdr[24:32])
	nbuckets := binary.LittleEndian.Uint64(hdr[32:40])

	if m < n {
		return fmt.Errorf("%w: slot table %d smaller than key count %d", ErrBadMagic, m, n)
	}

	vals := buf[chdHeaderSize:]

	var seed seeder
	switch size {
	case 1:
		if uint64(len(vals)) < nbuckets {
			return fmt.Errorf("%w: partial 8-bit seed table", ErrBadMagic)
		}
		s := &u8Seeder{}
		if err := s.unmarshal(vals[:nbuckets]); err != nil {
			return err
		}
		seed = s
		vals = vals[nbuckets:]

	case 2:
		need := nbuckets * 2
		if uint64(len(vals)) < need {
			return fmt.Errorf("%w: partial 16-bit seed table", ErrBadMagic)
		}
		s := &u16Seeder{}
		if err := s.unmarshal(vals[:need]); err != nil {
			return err
		}
		seed = s
		vals = vals[need:]

	case 4:
		need := nbuckets * 4
		if uint64(len(vals)) < need {
			return fmt.Errorf("%w: partial 32-bit seed table", ErrBadMagic)
		}
		s := &u32Seeder{}
		if err := s.unmarshal(vals[:need]); err != nil {
			return err
		}
		seed = s
		vals = vals[need:]

	default:
		return fmt.Errorf("%w: unknown seed size %d", ErrBadMagic, size)
	}

	remap := &remapTable{n: n}
	if _, err := remap.unmarshal(vals); err != nil {
		return err
	}

	c.n = n
	c.m = m
	c.seed = seed
	c.remap = remap
	c.salt = salt
	return nil
}

// DumpMeta writes human-readable MPHF metadata to w.
func (c *Chd) DumpMeta(w io.Writer) {
	fmt.Fprintf(w, "  CHD with %d-bit seeds <salt %#x>, n=%d, slots=%d, buckets=%d\n",
		int(c.SeedSize())*8, c.salt, c.n, c.m, c.seed.length())
}

// bitsPerElement returns the pilot-table and remap-table overhead, in
// bits per key, for MemoryStats.
func (c *Chd) bitsPerElement() (pilotBits, remapBits float64) {
	if c.n == 0 {
		return 0, 0
	}
	pilotBits = float64(c.seed.length()) * float64(c.seed.seedsize()) * 8 / float64(c.n)
	remapBits = float64(len(c.remap.remap)) * 32 / float64(c.n)
	return pilotBits, remapBits
}

func writeAll(w io.Writer, buf []byte) (int, error) {
	n, err := w.Write(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errShortWrite(n)
	}
	return n, nil
}
