// text.go -- pre-BIP34 text ingest adapter (height = line number)
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	heightoracle "github.com/prebip34/heightoracle"
)

// sentinel is the single-character line marking a BIP34-tagged block
// (version field == 2) that the builder deliberately omits from the
// key set.
const sentinel = "x"

// ParsePreBIP34Text reads lines from r, one per height, and returns the
// parallel (identifiers, heights) slices to feed a Builder.
//
// Line k (0-indexed) is either:
//   - a 64-character lowercase reverse-hex identifier for height k,
//   - the literal "x", a sentinel marking an omitted height, or
//   - empty (also skipped).
//
// Skipped lines are not renumbered: the line index is authoritative,
// so a sentinel or blank line at line k means height k is simply
// absent from the returned slices, not shifted onto the next
// non-empty line. Any other content is a hard parse error.
func ParsePreBIP34Text(r io.Reader) (ids []heightoracle.BlockHash, heights []uint32, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 128), 128)

	for lineNo := 0; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())

		if line == "" || line == sentinel {
			continue
		}

		if len(line) != 64 {
			return nil, nil, fmt.Errorf("ingest: line %d: %w", lineNo+1, heightoracle.ErrInvalidLength)
		}
		if line != strings.ToLower(line) {
			return nil, nil, fmt.Errorf("ingest: line %d: %w: uppercase hex", lineNo+1, heightoracle.ErrInvalidHex)
		}

		id, perr := heightoracle.ParseBlockHash(line)
		if perr != nil {
			return nil, nil, fmt.Errorf("ingest: line %d: %w", lineNo+1, perr)
		}

		ids = append(ids, id)
		heights = append(heights, uint32(lineNo))
	}

	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("ingest: %w", err)
	}

	return ids, heights, nil
}
