// dbreader.go -- query interface for a constant DB built with Writer
//
// (c) Sudhi Herle 2018
//
// Author: Sudhi Herle <sudhi@herle.net>
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/opencoff/golang-lru"
)

// Reader is the query interface for a previously constructed constant
// database (built with Writer). The only meaningful operation on such
// a database is Find/Lookup.
type Reader struct {
	chd *Chd

	cache *lru.ARCCache

	offset []uint64
	digest []uint64
	vlen   []uint32

	nkeys uint64
	salt  []byte

	mmap []byte
	fd   *os.File
	fn   string
}

// NewReader opens a previously constructed database in file fn and
// prepares it for querying. Records are opportunistically cached after
// being read from disk; up to 'cache' records are retained in memory
// (default 128 when cache <= 0).
func NewReader(fn string, cache int) (rd *Reader, err error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	if cache <= 0 {
		cache = 128
	}

	rd = &Reader{
		chd:  &Chd{},
		salt: make([]byte, 16),
		fd:   fd,
		fn:   fn,
	}

	st, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: can't stat: %s", fn, err)
	}

	if st.Size() < (64 + 32) {
		return nil, fmt.Errorf("%s: file too small or corrupted", fn)
	}

	var hdrb [64]byte
	if _, err = io.ReadFull(fd, hdrb[:]); err != nil {
		return nil, fmt.Errorf("%s: can't read header: %s", fn, err)
	}

	offtbl, err := rd.decodeHeader(hdrb[:], st.Size())
	if err != nil {
		return nil, err
	}

	if err := rd.verifyChecksum(hdrb[:], offtbl, st.Size()); err != nil {
		return nil, err
	}

	// 8 + 8 + 4: offset, digest, vlen
	tblsz := rd.nkeys * (8 + 8 + 4)
	if uint64(st.Size()) < (64 + 32 + tblsz) {
		return nil, fmt.Errorf("%s: corrupt header", fn)
	}

	rd.cache, err = lru.NewARC(cache)
	if err != nil {
		return nil, err
	}

	mmapsz := st.Size() - int64(offtbl) - 32
	bs, err := syscall.Mmap(int(fd.Fd()), int64(offtbl), int(mmapsz), syscall.PROT_READ, syscall.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%s: can't mmap %d bytes at off %d: %s", fn, mmapsz, offtbl, err)
	}

	offsz := rd.nkeys * 8
	digsz := rd.nkeys * 8
	vlensz := rd.nkeys * 4

	rd.mmap = bs
	rd.offset = bsToUint64Slice(bs[:offsz])
	rd.digest = bsToUint64Slice(bs[offsz : offsz+digsz])
	rd.vlen = bsToUint32Slice(bs[offsz+digsz : offsz+digsz+vlensz])

	// The writer pads the marshaled Chd to an 8-byte boundary; offtbl is
	// page-aligned, so the relative offset has the same alignment.
	chdoff := (offsz + digsz + vlensz + 7) &^ uint64(7)
	if err := rd.chd.UnmarshalBinaryMmap(bs[chdoff:]); err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal hash table: %s", fn, err)
	}

	return rd, nil
}

// Len returns the total number of distinct keys in the DB.
func (rd *Reader) Len() int {
	return int(rd.nkeys)
}

// Close unmaps and closes the DB.
func (rd *Reader) Close() {
	syscall.Munmap(rd.mmap)
	rd.fd.Close()
	rd.cache.Purge()
	rd.chd = nil
	rd.fd = nil
	rd.salt = nil
	rd.fn = ""
}

// Lookup looks up key in the table and returns the corresponding
// value. If the key is not found, value is nil and ok is false.
func (rd *Reader) Lookup(key []byte) ([]byte, bool) {
	v, err := rd.Find(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Find looks up key and returns its value. It returns ErrNoKey if the
// key was never added to the DB, or an I/O or checksum error on a
// corrupted record.
func (rd *Reader) Find(key []byte) ([]byte, error) {
	s := string(key)
	if v, ok := rd.cache.Get(s); ok {
		return v.([]byte), nil
	}

	want := xxhash.Sum64(key)

	// Guaranteed: 0 <= i < rd.nkeys
	i := rd.chd.Find(key)
	if toLittleEndianUint64(rd.digest[i]) != want {
		return nil, ErrNoKey
	}

	vlen := toLittleEndianUint32(rd.vlen[i])
	off := toLittleEndianUint64(rd.offset[i])

	val, err := rd.decodeRecord(off, vlen)
	if err != nil {
		return nil, err
	}

	rd.cache.Add(s, val)
	return val, nil
}

func (rd *Reader) decodeRecord(off uint64, vlen uint32) ([]byte, error) {
	if _, err := rd.fd.Seek(int64(off), 0); err != nil {
		return nil, err
	}

	data := make([]byte, vlen+8)
	if _, err := io.ReadFull(rd.fd, data); err != nil {
		return nil, err
	}

	be := binary.BigEndian
	csum := be.Uint64(data[:8])

	var o [8]byte
	be.PutUint64(o[:], off)

	h := siphash.New(rd.salt)
	h.Write(o[:])
	h.Write(data[8:])
	exp := h.Sum64()

	if csum != exp {
		return nil, fmt.Errorf("%s: corrupted record at off %d (exp %#x, saw %#x)", rd.fn, off, exp, csum)
	}
	return data[8:], nil
}

func (rd *Reader) verifyChecksum(hdrb []byte, offtbl uint64, sz int64) error {
	h := sha512.New512_256()
	h.Write(hdrb)

	remsz := sz - int64(offtbl) - 32

	rd.fd.Seek(int64(offtbl), 0)

	nw, err := io.CopyN(h, rd.fd, remsz)
	if err != nil {
		return fmt.Errorf("%s: metadata i/o error: %s", rd.fn, err)
	}
	if nw != remsz {
		return fmt.Errorf("%s: partial read while verifying checksum, exp %d, saw %d", rd.fn, remsz, nw)
	}

	var expsum [32]byte
	rd.fd.Seek(sz-32, 0)
	if _, err := io.ReadFull(rd.fd, expsum[:]); err != nil {
		return fmt.Errorf("%s: checksum i/o error: %s", rd.fn, err)
	}

	csum := h.Sum(nil)
	if subtle.ConstantTimeCompare(csum, expsum[:]) != 1 {
		return fmt.Errorf("%s: checksum failure; exp %#x, saw %#x", rd.fn, expsum[:], csum)
	}

	rd.fd.Seek(int64(offtbl), 0)
	return nil
}

// entry condition: b is 64 bytes long.
func (rd *Reader) decodeHeader(b []byte, sz int64) (uint64, error) {
	if string(b[:4]) != "KVDB" {
		return 0, fmt.Errorf("%s: bad file magic", rd.fn)
	}

	be := binary.BigEndian
	i := 8 // skip magic + flags

	copy(rd.salt, b[i:i+16])
	i += 16
	rd.nkeys = be.Uint64(b[i : i+8])
	i += 8
	offtbl := be.Uint64(b[i : i+8])

	if offtbl < 64 || offtbl >= uint64(sz-32) {
		return 0, fmt.Errorf("%s: corrupt header", rd.fn)
	}

	return offtbl, nil
}
