// Package hnsw provides a pure Go HNSW vector index backed by github.com/coder/hnsw.
// It implements the driven.VectorIndex interface.
package hnsw

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"

	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default graph parameters.
const (
	DefaultM        = 16
	DefaultEfSearch = 64
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("hnsw: index is closed")

// DimensionError reports a vector whose length differs from the index dimension.
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Index provides cosine similarity search over chunk embeddings.
//
// Deletes are lazy: the graph node is orphaned and skipped at search time.
// The graph is rebuilt once orphans outnumber live vectors.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	path  string

	dimension int
	m         int
	efSearch  int

	ids     map[string]uint64
	keys    map[uint64]string
	meta    map[uint64]driven.VectorMetadata
	nextKey uint64

	closed bool
}

// Option configures an Index.
type Option func(*Index)

// WithM sets the maximum neighbours per node.
func WithM(m int) Option {
	return func(idx *Index) {
		if m > 0 {
			idx.m = m
		}
	}
}

// WithEfSearch sets the candidate list size used during search.
func WithEfSearch(ef int) Option {
	return func(idx *Index) {
		if ef > 0 {
			idx.efSearch = ef
		}
	}
}

// WithDimension fixes the vector dimension up front.
// Without it the dimension is taken from the first upserted vector.
func WithDimension(dim int) Option {
	return func(idx *Index) {
		if dim > 0 {
			idx.dimension = dim
		}
	}
}

// snapshot is the gob-encoded sidecar written next to the graph file.
type snapshot struct {
	Dimension int
	IDs       map[string]uint64
	Meta      map[uint64]driven.VectorMetadata
	NextKey   uint64
}

// New creates an index. If path is non-empty and an index exists there it is
// loaded; Close writes it back. An empty path keeps the index in memory only.
func New(path string, opts ...Option) (*Index, error) {
	idx := &Index{
		path:     path,
		m:        DefaultM,
		efSearch: DefaultEfSearch,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.reset()

	if path == "" {
		return idx, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err := idx.load(path); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = idx.m
	g.EfSearch = idx.efSearch
	g.Ml = 0.25
	return g
}

func (idx *Index) reset() {
	idx.graph = idx.newGraph()
	idx.ids = make(map[string]uint64)
	idx.keys = make(map[uint64]string)
	idx.meta = make(map[uint64]driven.VectorMetadata)
	idx.nextKey = 0
}

// Path returns the on-disk location, empty for in-memory indexes.
func (idx *Index) Path() string {
	return idx.path
}

// Dimension returns the vector dimension, zero until the first upsert.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// Upsert inserts or replaces the vector for the given chunk ID.
func (idx *Index) Upsert(_ context.Context, chunkID string, embedding []float32, meta driven.VectorMetadata) error {
	if chunkID == "" {
		return errors.New("hnsw: chunk id cannot be empty")
	}
	if len(embedding) == 0 {
		return errors.New("hnsw: embedding cannot be empty")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	if idx.dimension == 0 {
		idx.dimension = len(embedding)
	}
	if len(embedding) != idx.dimension {
		return &DimensionError{Expected: idx.dimension, Got: len(embedding)}
	}

	if old, ok := idx.ids[chunkID]; ok {
		delete(idx.keys, old)
		delete(idx.meta, old)
	}

	key := idx.nextKey
	idx.nextKey++

	idx.graph.Add(hnsw.MakeNode(key, normalized(embedding)))
	idx.ids[chunkID] = key
	idx.keys[key] = chunkID
	idx.meta[key] = meta

	idx.maybeCompact()
	return nil
}

// Delete removes a vector from the index. Unknown IDs are ignored.
func (idx *Index) Delete(_ context.Context, chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}

	if key, ok := idx.ids[chunkID]; ok {
		delete(idx.ids, chunkID)
		delete(idx.keys, key)
		delete(idx.meta, key)
		idx.maybeCompact()
	}
	return nil
}

// Search finds the k nearest live vectors matching the filter, best first.
func (idx *Index) Search(_ context.Context, query []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}
	if k <= 0 || len(idx.ids) == 0 {
		return nil, nil
	}
	if len(query) != idx.dimension {
		return nil, &DimensionError{Expected: idx.dimension, Got: len(query)}
	}

	q := normalized(query)
	total := idx.graph.Len()

	// Orphans and filtered-out nodes take result slots, so widen the
	// search until enough hits survive or the whole graph was visited.
	want := k + (total - len(idx.ids))
	for {
		if want > total {
			want = total
		}

		hits := idx.collect(q, want, k, filter)
		if len(hits) >= k {
			return hits, nil
		}
		if want == total {
			// The graph walk is approximate and can miss small filtered
			// subsets entirely, so a short result falls back to an exact scan.
			return idx.scan(q, k, filter), nil
		}
		want *= 2
	}
}

// scan ranks every live vector matching the filter by exact cosine distance.
func (idx *Index) scan(q []float32, k int, filter driven.VectorFilter) []driven.VectorHit {
	var hits []driven.VectorHit
	for key, m := range idx.meta {
		if !filter.Matches(m) {
			continue
		}
		id, ok := idx.keys[key]
		if !ok {
			continue
		}
		vec, ok := idx.graph.Lookup(key)
		if !ok {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    id,
			Similarity: similarity(hnsw.CosineDistance(q, vec)),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (idx *Index) collect(q []float32, n, k int, filter driven.VectorFilter) []driven.VectorHit {
	nodes := idx.graph.Search(q, n)

	hits := make([]driven.VectorHit, 0, k)
	for _, node := range nodes {
		id, ok := idx.keys[node.Key]
		if !ok {
			continue
		}
		if !filter.Matches(idx.meta[node.Key]) {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    id,
			Similarity: similarity(hnsw.CosineDistance(q, node.Value)),
		})
		if len(hits) == k {
			break
		}
	}
	return hits
}

// Len returns the number of live vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Orphans returns the number of lazily deleted graph nodes.
func (idx *Index) Orphans() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.graph == nil {
		return 0
	}
	return idx.graph.Len() - len(idx.ids)
}

// maybeCompact rebuilds the graph from live nodes when orphans dominate.
// Caller holds the write lock.
func (idx *Index) maybeCompact() {
	orphans := idx.graph.Len() - len(idx.ids)
	if orphans < 64 || orphans <= len(idx.ids) {
		return
	}
	idx.compact()
}

func (idx *Index) compact() {
	fresh := idx.newGraph()
	ids := make(map[string]uint64, len(idx.ids))
	keys := make(map[uint64]string, len(idx.ids))
	meta := make(map[uint64]driven.VectorMetadata, len(idx.ids))

	var next uint64
	for id, oldKey := range idx.ids {
		vec, ok := idx.graph.Lookup(oldKey)
		if !ok {
			continue
		}
		fresh.Add(hnsw.MakeNode(next, vec))
		ids[id] = next
		keys[next] = id
		meta[next] = idx.meta[oldKey]
		next++
	}

	idx.graph = fresh
	idx.ids = ids
	idx.keys = keys
	idx.meta = meta
	idx.nextKey = next
}

// Save writes the index to its path. The graph goes to path and the ID
// mappings to path+".meta", each through a temp file and rename. Writers in
// other processes are excluded by an advisory lock on path+".lock".
func (idx *Index) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	return idx.save()
}

func (idx *Index) save() error {
	if idx.path == "" {
		return nil
	}
	if idx.graph.Len() != len(idx.ids) {
		idx.compact()
	}

	if err := os.MkdirAll(filepath.Dir(idx.path), 0700); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	lock := flock.New(idx.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking index: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	if err := writeAtomic(idx.path, func(f *os.File) error {
		return idx.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("exporting graph: %w", err)
	}

	snap := snapshot{
		Dimension: idx.dimension,
		IDs:       idx.ids,
		Meta:      idx.meta,
		NextKey:   idx.nextKey,
	}
	if err := writeAtomic(idx.path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(snap)
	}); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}
	return nil
}

func (idx *Index) load(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("locking index: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("opening index metadata: %w", err)
	}
	defer metaFile.Close()

	var snap snapshot
	if err := gob.NewDecoder(metaFile).Decode(&snap); err != nil {
		return fmt.Errorf("decoding index metadata: %w", err)
	}

	graphFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer graphFile.Close()

	// Import needs an io.ByteReader
	if err := idx.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("importing graph: %w", err)
	}
	idx.graph.Distance = hnsw.CosineDistance

	idx.dimension = snap.Dimension
	idx.ids = snap.IDs
	idx.meta = snap.Meta
	idx.nextKey = snap.NextKey
	if idx.ids == nil {
		idx.ids = make(map[string]uint64)
	}
	if idx.meta == nil {
		idx.meta = make(map[uint64]driven.VectorMetadata)
	}
	idx.keys = make(map[uint64]string, len(idx.ids))
	for id, key := range idx.ids {
		idx.keys[key] = id
	}
	return nil
}

// Close saves a file-backed index and releases the graph.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	err := idx.save()
	idx.closed = true
	idx.graph = nil
	return err
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// normalized returns a unit-length copy of v.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// similarity converts cosine distance to a similarity in [0, 1].
func similarity(distance float32) float64 {
	s := 1 - float64(distance)
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
