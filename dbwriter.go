// dbwriter.go -- constant key/value database built on the CHD MPHF
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
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
)

// Writer constructs a read-only constant database: a set of
// byte-string key/value pairs indexed by a minimal perfect hash
// function, with per-record siphash integrity and a file-level strong
// checksum.
//
// The DB has the following general structure:
//   - 64 byte file header: big-endian encoding of all multibyte ints
//      * magic    [4]byte "KVDB"
//      * flags    uint32  for now, all zeros
//      * salt     [16]byte random salt for siphash record integrity
//      * nkeys    uint64  number of keys in the DB
//      * offtbl   uint64  file offset of <offset, digest, vlen> table
//   - Contiguous series of records, one per non-empty value (keys are
//     not stored; only their digests, below):
//      * cksum    uint64  siphash checksum of value, offset (big endian)
//      * val      []byte  value bytes
//   - Possibly a gap until the next page-size boundary
//   - Offset table, indexed by MPHF slot, one entry per key:
//      * offset  uint64  little-endian file offset of the record
//      * digest  uint64  little-endian xxhash digest of the key
//        (membership check: a slot found for a key NOT in the DB will
//        resolve to some other key's digest, which won't match)
//   - Val-len table: nkeys worth of little-endian uint32 value lengths
//   - Zero padding up to the next 8-byte boundary
//   - Marshaled Chd bytes (Chd.MarshalBinary())
//   - 32 bytes of strong checksum (SHA512_256) over the header and
//     everything from the offset table onward except itself; the
//     records are covered only by their own siphash checksums
type Writer struct {
	fd *os.File
	bb *ChdBuilder

	keymap map[string]*dbrecord

	salt []byte

	off uint64

	fntmp  string
	fn     string
	frozen bool
}

type dbrecord struct {
	off    uint64
	vlen   uint32
	digest uint64
}

// NewWriter prepares file fn to hold a constant DB. Once Freeze is
// called, the DB is immutable and readers open it with NewReader.
func NewWriter(fn string) (*Writer, error) {
	tmp := fmt.Sprintf("%s.tmp.%d", fn, rand32())
	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	salt := randbytes(16)

	w := &Writer{
		fd:     fd,
		bb:     NewChdBuilder(),
		keymap: make(map[string]*dbrecord),
		salt:   salt,
		off:    64,
		fn:     fn,
		fntmp:  tmp,
	}

	var z [64]byte
	if _, err := writeAll(fd, z[:]); err != nil {
		fd.Close()
		os.Remove(tmp)
		return nil, err
	}

	return w, nil
}

// Len returns the number of distinct keys added so far.
func (w *Writer) Len() int {
	return len(w.keymap)
}

// Add adds a single key/value pair. Duplicate keys return ErrExists.
func (w *Writer) Add(key, val []byte) error {
	if w.frozen {
		return ErrFrozen
	}
	return w.addRecord(key, val)
}

// Freeze builds the minimal perfect hash, writes the DB and closes it.
// load controls the MPHF table size; typical values are 0.75-0.9.
func (w *Writer) Freeze(load float64) (err error) {
	defer func() {
		if err != nil {
			w.fd.Close()
			os.Remove(w.fntmp)
		}
	}()

	if w.frozen {
		return ErrFrozen
	}

	chd, err := w.bb.Freeze(load)
	if err != nil {
		return err
	}

	h := sha512.New512_256()
	tee := io.MultiWriter(w.fd, h)

	pgsz := uint64(os.Getpagesize())
	pgszM1 := pgsz - 1
	offtbl := (w.off + pgszM1) &^ pgszM1

	if offtbl > w.off {
		zeroes := make([]byte, offtbl-w.off)
		if _, err = writeAll(w.fd, zeroes); err != nil {
			return err
		}
		w.off = offtbl
	}

	var ehdr [64]byte
	be := binary.BigEndian
	copy(ehdr[:4], []byte{'K', 'V', 'D', 'B'})

	i := 8
	i += copy(ehdr[i:], w.salt)
	be.PutUint64(ehdr[i:i+8], uint64(chd.Len()))
	i += 8
	be.PutUint64(ehdr[i:i+8], offtbl)

	h.Write(ehdr[:])

	if err := w.marshalOffsets(tee, chd); err != nil {
		return err
	}

	offtbl = (w.off + 7) &^ uint64(7)
	if offtbl > w.off {
		zeroes := make([]byte, offtbl-w.off)
		if _, err = writeAll(tee, zeroes); err != nil {
			return err
		}
		w.off = offtbl
	}

	nw, err := chd.MarshalBinary(tee)
	if err != nil {
		return err
	}
	w.off += uint64(nw)

	cksum := h.Sum(nil)
	if _, err := writeAll(w.fd, cksum); err != nil {
		return err
	}

	if _, err := w.fd.Seek(0, 0); err != nil {
		return err
	}
	if _, err := writeAll(w.fd, ehdr[:]); err != nil {
		return err
	}

	w.frozen = true
	w.fd.Sync()
	w.fd.Close()

	return os.Rename(w.fntmp, w.fn)
}

// Abort discards the in-progress DB.
func (w *Writer) Abort() {
	w.fd.Close()
	os.Remove(w.fntmp)
}

func (w *Writer) marshalOffsets(tee io.Writer, c *Chd) error {
	n := uint64(c.Len())
	offset := make([]uint64, n)
	digest := make([]uint64, n)
	vlen := make([]uint32, n)

	for k, r := range w.keymap {
		i := c.Find([]byte(k))
		vlen[i] = r.vlen
		offset[i] = r.off
		digest[i] = r.digest
	}

	if _, err := writeAll(tee, u64sToByteSlice(offset)); err != nil {
		return err
	}
	if _, err := writeAll(tee, u64sToByteSlice(digest)); err != nil {
		return err
	}
	if _, err := writeAll(tee, u32sToByteSlice(vlen)); err != nil {
		return err
	}

	w.off += uint64(n * (8 + 8 + 4))
	return nil
}

func (w *Writer) addRecord(key, val []byte) error {
	if uint64(len(val)) > uint64(1<<32)-1 {
		return ErrValueTooLarge
	}

	s := string(key)
	if _, ok := w.keymap[s]; ok {
		return ErrExists
	}

	if err := w.bb.Add(key); err != nil {
		return err
	}

	r := &dbrecord{off: w.off, vlen: uint32(len(val)), digest: xxhash.Sum64(key)}
	w.keymap[s] = r

	if len(val) > 0 {
		if err := w.writeRecord(val, r.off); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) writeRecord(val []byte, off uint64) error {
	var o [8]byte
	var c [8]byte

	be := binary.BigEndian
	be.PutUint64(o[:], off)

	h := siphash.New(w.salt)
	h.Write(o[:])
	h.Write(val)
	be.PutUint64(c[:], h.Sum64())

	if _, err := writeAll(w.fd, c[:]); err != nil {
		return err
	}
	if _, err := writeAll(w.fd, val); err != nil {
		return err
	}

	w.off += uint64(len(val)) + 8
	return nil
}
