// seed.go -- compact pilot (seed) table and remap table for the CHD MPHF
//
// One pilot is stored per bucket (about N/bucketLambda of them). The
// slot table is over-allocated to ceil(N/load), so Find() on the raw
// pilot table alone can return values up to that larger bound.
// remapTable compresses those overflow slots down into the holes left
// below N, so the MPHF is truly minimal -- see DESIGN.md.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

import (
	"encoding/binary"
	"io"
)

// seeder abstracts the pilot (seed) table so it can be stored at the
// narrowest width the construction actually needed: 1, 2 or 4 bytes
// per bucket.
type seeder interface {
	// seed returns the pilot value at bucket index h.
	seed(h uint64) uint32

	// marshal writes the seed table to w.
	marshal(w io.Writer) (int, error)

	// unmarshal reads the seed table from a (possibly memory-mapped)
	// byte slice.
	unmarshal(b []byte) error

	// seedsize is the width in bytes of each stored seed (1, 2 or 4).
	seedsize() byte

	// length is the number of buckets (the modulus for the bucket
	// assignment step of evaluation).
	length() int
}

var (
	_ seeder = &u8Seeder{}
	_ seeder = &u16Seeder{}
	_ seeder = &u32Seeder{}
)

func makeSeeds(s []uint32, max uint32) seeder {
	switch {
	case max < 256:
		return newU8Seeder(s)
	case max < 65536:
		return newU16Seeder(s)
	default:
		return newU32Seeder(s)
	}
}

// 8-bit seed table.
type u8Seeder struct {
	seeds []uint8
}

func newU8Seeder(v []uint32) seeder {
	bs := make([]byte, len(v))
	for i, a := range v {
		bs[i] = byte(a & 0xff)
	}
	return &u8Seeder{seeds: bs}
}

func (u *u8Seeder) seed(h uint64) uint32 { return uint32(u.seeds[h]) }
func (u *u8Seeder) length() int          { return len(u.seeds) }
func (u *u8Seeder) seedsize() byte       { return 1 }
func (u *u8Seeder) marshal(w io.Writer) (int, error) {
	return writeAll(w, u.seeds)
}
func (u *u8Seeder) unmarshal(b []byte) error {
	u.seeds = b
	return nil
}

// 16-bit seed table.
type u16Seeder struct {
	seeds []uint16
}

func newU16Seeder(v []uint32) seeder {
	us := make([]uint16, len(v))
	for i, a := range v {
		us[i] = uint16(a & 0xffff)
	}
	return &u16Seeder{seeds: us}
}

func (u *u16Seeder) seed(h uint64) uint32 { return uint32(u.seeds[h]) }
func (u *u16Seeder) length() int          { return len(u.seeds) }
func (u *u16Seeder) seedsize() byte       { return 2 }
func (u *u16Seeder) marshal(w io.Writer) (int, error) {
	return writeAll(w, u16sToByteSlice(u.seeds))
}
func (u *u16Seeder) unmarshal(b []byte) error {
	u.seeds = bsToUint16Slice(b)
	return nil
}

// 32-bit seed table.
type u32Seeder struct {
	seeds []uint32
}

func newU32Seeder(v []uint32) seeder {
	return &u32Seeder{seeds: v}
}

func (u *u32Seeder) seed(h uint64) uint32 { return u.seeds[h] }
func (u *u32Seeder) length() int          { return len(u.seeds) }
func (u *u32Seeder) seedsize() byte       { return 4 }
func (u *u32Seeder) marshal(w io.Writer) (int, error) {
	return writeAll(w, u32sToByteSlice(u.seeds))
}
func (u *u32Seeder) unmarshal(b []byte) error {
	u.seeds = bsToUint32Slice(b)
	return nil
}

// remapTable compresses slot-table overflow slots (indices in
// [n, m)) down into the holes left in [0, n) once every key has been
// assigned a slot. It is what makes Chd.Find truly minimal: without
// it, a key's raw slot could land anywhere in [0, m).
type remapTable struct {
	n     uint64   // number of keys (and the bound every remapped slot falls under)
	remap []uint32 // remap[slot-n] for slot in [n, m)
}

func (r *remapTable) apply(slot uint64) uint64 {
	if slot < r.n {
		return slot
	}
	return uint64(r.remap[slot-r.n])
}

func (r *remapTable) marshal(w io.Writer) (int, error) {
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(r.remap)))
	nw, err := writeAll(w, lenbuf[:])
	if err != nil {
		return nw, err
	}
	if len(r.remap) == 0 {
		return nw, nil
	}
	n, err := writeAll(w, u32sToByteSlice(r.remap))
	return nw + n, err
}

func (r *remapTable) unmarshal(b []byte) (consumed int, err error) {
	if len(b) < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	count := int(binary.LittleEndian.Uint32(b[:4]))
	need := 4 + count*4
	if len(b) < need {
		return 0, io.ErrUnexpectedEOF
	}
	if count > 0 {
		r.remap = bsToUint32Slice(b[4:need])
	}
	return need, nil
}
