// bucket.go -- bucket bookkeeping for CHD construction
//
// Buckets are sorted by decreasing occupancy so construction spends
// its seed-search budget on the hardest (largest) buckets first.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package heightoracle

type bucket struct {
	slot  uint64
	items []bucketItem
}

// bucketItem pairs a key's digest with its original insertion index,
// so that the final slot assignment can be matched back to the
// caller's (key, height) pairs.
type bucketItem struct {
	digest uint64
	index  int
}

type buckets []bucket

func (b buckets) Len() int      { return len(b) }
func (b buckets) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b buckets) Less(i, j int) bool {
	return len(b[i].items) > len(b[j].items)
}
