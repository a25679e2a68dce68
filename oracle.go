// oracle.go -- build-time Builder and read-time Oracle over the CHD MPHF
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Builder accumulates (identifier, height) pairs and, once Freeze is
// called, produces an immutable Oracle. A Builder is not safe for
// concurrent use; a frozen Oracle is.
type Builder struct {
	chd     *ChdBuilder
	heights map[string]uint32
	order   []string
}

// NewBuilder creates an empty oracle builder.
func NewBuilder() *Builder {
	return &Builder{
		chd:     NewChdBuilder(),
		heights: make(map[string]uint32),
	}
}

// Add registers a (identifier, height) pair. Duplicate identifiers are
// rejected with ErrDuplicateKey; out-of-range heights are rejected with
// ErrHeightOutOfRange.
func (b *Builder) Add(id BlockHash, height uint32) error {
	if height > MaxHeight {
		return fmt.Errorf("%w: height %d for %s", ErrHeightOutOfRange, height, FormatBlockHash(id))
	}

	key := string(id[:])
	if _, ok := b.heights[key]; ok {
		return ErrDuplicateKey
	}

	if err := b.chd.Add(id[:]); err != nil {
		return err
	}

	b.heights[key] = height
	b.order = append(b.order, key)
	return nil
}

// Len returns the number of distinct (identifier, height) pairs added
// so far.
func (b *Builder) Len() int {
	return len(b.order)
}

// Freeze builds the minimal perfect hash function over the accumulated
// identifiers and assembles the heights-by-slot array, returning an
// immutable Oracle. load is the CHD construction load factor (see
// ChdBuilder.Freeze); 0.97 is a reasonable default and keeps the
// remap-table overhead around one bit per element.
func (b *Builder) Freeze(load float64) (*Oracle, error) {
	chd, err := b.chd.Freeze(load)
	if err != nil {
		return nil, err
	}

	n := chd.Len()
	byslot := make([]uint32, n)
	for _, key := range b.order {
		slot := chd.Find([]byte(key))
		byslot[slot] = b.heights[key]
	}

	return &Oracle{chd: chd, heights: byslot}, nil
}

// Oracle pairs a minimal perfect hash function over a closed key set
// with a dense array of heights indexed by slot. An Oracle is
// immutable once built or loaded, and safe for concurrent lookup from
// many goroutines without further synchronization.
type Oracle struct {
	chd     *Chd
	heights []uint32
}

// Len returns N, the number of identifiers the Oracle was built over.
func (o *Oracle) Len() int {
	return o.chd.Len()
}

// DumpMeta writes a human-readable diagnostic dump of the underlying
// MPHF (seed width, salt, table geometry) to w.
func (o *Oracle) DumpMeta(w io.Writer) {
	o.chd.DumpMeta(w)
}

// Lookup returns the height mapped to id. If id was a member of the
// original key set, the returned height is exact. If id was never seen
// at build time, Lookup returns some height in the oracle's range with
// no further guarantee -- querying outside the key set is a caller
// error, not reported by this call.
func (o *Oracle) Lookup(id BlockHash) uint32 {
	slot := o.chd.Find(id[:])
	return o.heights[slot]
}

// LookupHex parses hex with ParseBlockHash and looks up the resulting
// identifier. Malformed hex is a caller contract violation: LookupHex
// panics rather than returning an error.
func (o *Oracle) LookupHex(hex string) uint32 {
	id := MustParseBlockHash(hex)
	return o.Lookup(id)
}

// Save writes the two oracle artifacts to phashPath and heightsPath,
// plus a small sidecar manifest recording a checksum of each, so that
// Load can detect silent corruption or a mismatched pair of artifacts
// copied from two different builds.
func (o *Oracle) Save(phashPath, heightsPath string) error {
	var phashBuf bytes.Buffer
	if _, err := o.chd.MarshalBinary(&phashBuf); err != nil {
		return fmt.Errorf("heightoracle: marshal %s: %w", phashPath, err)
	}

	var heightsBuf bytes.Buffer
	if err := SerializeHeights(o.heights, &heightsBuf); err != nil {
		return fmt.Errorf("heightoracle: marshal %s: %w", heightsPath, err)
	}

	if err := os.WriteFile(phashPath, phashBuf.Bytes(), 0644); err != nil {
		return fmt.Errorf("heightoracle: write %s: %w", phashPath, err)
	}

	if err := os.WriteFile(heightsPath, heightsBuf.Bytes(), 0644); err != nil {
		return fmt.Errorf("heightoracle: write %s: %w", heightsPath, err)
	}

	if err := writeManifest(filepath.Dir(heightsPath), phashBuf.Bytes(), heightsBuf.Bytes()); err != nil {
		return fmt.Errorf("heightoracle: write integrity manifest: %w", err)
	}

	return nil
}

// Load reconstructs an Oracle from the two artifacts written by Save.
// The phash file is read into memory and its pilot and remap tables
// alias that buffer without copying (see LoadFromBytes); heightsPath
// is read and unpacked. If a sidecar
// manifest is present alongside heightsPath (see Save), Load verifies
// both artifacts' checksums against it before returning, catching
// corruption or a mismatched pair copied from two different builds.
func Load(phashPath, heightsPath string) (*Oracle, error) {
	phashBytes, err := os.ReadFile(phashPath)
	if err != nil {
		return nil, fmt.Errorf("heightoracle: read %s: %w", phashPath, err)
	}

	heightsBytes, err := os.ReadFile(heightsPath)
	if err != nil {
		return nil, fmt.Errorf("heightoracle: read %s: %w", heightsPath, err)
	}

	heights, err := DeserializeHeights(bytes.NewReader(heightsBytes))
	if err != nil {
		return nil, fmt.Errorf("heightoracle: read %s: %w", heightsPath, err)
	}

	if err := verifyManifest(filepath.Dir(heightsPath), phashBytes, heightsBytes); err != nil {
		return nil, err
	}

	return LoadFromBytes(phashBytes, heights)
}

// LoadFromBytes assembles an Oracle from an already-loaded phash blob
// and an already-deserialized heights slice (the embedded runtime's
// entry point, shared with Load). It refuses a pair whose key counts
// disagree.
func LoadFromBytes(phashBytes []byte, heights []uint32) (*Oracle, error) {
	chd := &Chd{}
	if err := chd.UnmarshalBinaryMmap(phashBytes); err != nil {
		return nil, err
	}

	if chd.Len() != len(heights) {
		return nil, fmt.Errorf("%w: phash has %d keys, heights has %d", ErrArtifactMismatch, chd.Len(), len(heights))
	}

	return &Oracle{chd: chd, heights: heights}, nil
}

const manifestFileName = "manifest.kv.dat"

// writeManifest builds a small constant-database (see Writer/Reader)
// recording an xxhash digest of each artifact, so a later Load can
// detect a corrupted file or a pairing of artifacts from two separate
// builds.
func writeManifest(dir string, phashBytes, heightsBytes []byte) error {
	w, err := NewWriter(filepath.Join(dir, manifestFileName))
	if err != nil {
		return err
	}

	if err := w.Add([]byte("phash"), digest(phashBytes)); err != nil {
		w.Abort()
		return err
	}
	if err := w.Add([]byte("heights"), digest(heightsBytes)); err != nil {
		w.Abort()
		return err
	}

	return w.Freeze(0.9)
}

// verifyManifest checks phashBytes and heightsBytes against the
// digests recorded by writeManifest, if a manifest exists alongside
// dir. A missing manifest is not an error: older artifact sets were
// written before this check existed.
func verifyManifest(dir string, phashBytes, heightsBytes []byte) error {
	path := filepath.Join(dir, manifestFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	r, err := NewReader(path, 2)
	if err != nil {
		return fmt.Errorf("heightoracle: read %s: %w", path, err)
	}
	defer r.Close()

	if err := verifyDigest(r, "phash", phashBytes); err != nil {
		return err
	}
	return verifyDigest(r, "heights", heightsBytes)
}

func verifyDigest(r *Reader, key string, data []byte) error {
	want, err := r.Find([]byte(key))
	if err != nil {
		return fmt.Errorf("%w: manifest has no entry for %q", ErrArtifactMismatch, key)
	}
	if !bytes.Equal(want, digest(data)) {
		return fmt.Errorf("%w: %s fails manifest checksum", ErrArtifactMismatch, key)
	}
	return nil
}

func digest(b []byte) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], xxhash.Sum64(b))
	return buf[:]
}

// MemoryStats reports the Oracle's storage overhead: pilot bits per
// element, remap bits per element, heights bits per element, and their
// sum.
type MemoryStats struct {
	NumElements        int
	PilotBitsPerElem   float64
	RemapBitsPerElem   float64
	HeightsBitsPerElem float64
	TotalBitsPerElem   float64
}

// TotalBytes returns the total storage, in bytes, implied by
// TotalBitsPerElem * NumElements.
func (m MemoryStats) TotalBytes() int64 {
	return int64((m.TotalBitsPerElem*float64(m.NumElements))/8.0 + 0.999999)
}

// TotalKB returns TotalBytes in kibibytes.
func (m MemoryStats) TotalKB() float64 {
	return float64(m.TotalBytes()) / 1024.0
}

// TotalMB returns TotalBytes in mebibytes.
func (m MemoryStats) TotalMB() float64 {
	return m.TotalKB() / 1024.0
}

// String renders the stats as a single diagnostic line: element count,
// the per-element bit breakdown and total, and TotalKB.
func (m MemoryStats) String() string {
	return fmt.Sprintf(
		"elements=%d pilot=%.2f bits/elem remap=%.2f bits/elem heights=%.2f bits/elem total=%.2f bits/elem (%.1f KB)",
		m.NumElements, m.PilotBitsPerElem, m.RemapBitsPerElem, m.HeightsBitsPerElem, m.TotalBitsPerElem, m.TotalKB())
}

// MemoryStats computes the Oracle's bits-per-element breakdown.
func (o *Oracle) MemoryStats() MemoryStats {
	n := o.Len()
	pilotBits, remapBits := o.chd.bitsPerElement()

	heightsBits := 18.0
	if n == 0 {
		heightsBits = 0
	}

	return MemoryStats{
		NumElements:        n,
		PilotBitsPerElem:   pilotBits,
		RemapBitsPerElem:   remapBits,
		HeightsBitsPerElem: heightsBits,
		TotalBitsPerElem:   pilotBits + remapBits + heightsBits,
	}
}
