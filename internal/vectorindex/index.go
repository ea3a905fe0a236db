package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata identifies where an indexed vector came from and who may see it.
type Metadata struct {
	OwnerID    uint
	DocumentID uint
	Ordinal    int
}

// Filter restricts search candidates. The zero OwnerID matches nothing on
// purpose: retrieval is always owner-scoped. An empty DocumentIDs set
// means all of the owner's documents.
type Filter struct {
	OwnerID     uint
	DocumentIDs []uint
}

func (f Filter) matches(m Metadata) bool {
	if m.OwnerID != f.OwnerID {
		return false
	}
	if len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if m.DocumentID == id {
			return true
		}
	}
	return false
}

// Result is one search hit, highest similarity first.
type Result struct {
	ChunkID uint
	Score   float32
	Meta    Metadata
}

type entry struct {
	chunkID uint
	vector  []float32
	meta    Metadata
}

// Index is a brute-force in-memory similarity index. Vectors are
// L2-normalized at insert time, so search reduces to dot products and
// scores are cosine similarities in [-1, 1]. A single RWMutex gives each
// insert atomic visibility: a concurrent search sees the index before or
// after an insert, never a half-written vector.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
}

func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	return &Index{dim: dimension}, nil
}

func (ix *Index) Dimension() int {
	return ix.dim
}

// Insert adds a vector under the given chunk id. The vector is copied and
// normalized; the caller's slice is never retained.
func (ix *Index) Insert(chunkID uint, vector []float32, meta Metadata) error {
	if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, index configured for %d", ErrDimensionMismatch, len(vector), ix.dim)
	}
	normalized := normalize(vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = append(ix.entries, entry{chunkID: chunkID, vector: normalized, meta: meta})
	return nil
}

// DeleteByDocument removes every vector belonging to the document.
// No-op when the document has nothing indexed.
func (ix *Index) DeleteByDocument(documentID uint) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	kept := ix.entries[:0]
	for _, e := range ix.entries {
		if e.meta.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	// Zero the tail so deleted vectors are not pinned by the backing array.
	for i := len(kept); i < len(ix.entries); i++ {
		ix.entries[i] = entry{}
	}
	ix.entries = kept
}

// Search returns up to k hits ranked by descending cosine similarity.
// The filter is applied before top-k selection so results never come up
// short just because filtered-out candidates scored higher. Ties keep
// insertion order. An empty index yields an empty result, not an error.
func (ix *Index) Search(query []float32, k int, filter Filter) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index configured for %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	q := normalize(query)

	ix.mu.RLock()
	var candidates []Result
	for _, e := range ix.entries {
		if !filter.matches(e.meta) {
			continue
		}
		candidates = append(candidates, Result{
			ChunkID: e.chunkID,
			Score:   dot(e.vector, q),
			Meta:    e.meta,
		})
	}
	ix.mu.RUnlock()

	// Stable sort preserves insertion order between equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
