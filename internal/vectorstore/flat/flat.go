package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"compliance/internal/domain"
)

const (
	indexFile    = "index.bin"
	docstoreFile = "docstore.json"
	magic        = "CFL2"
	version      = uint32(1)
)

// Storage is an exact brute-force L2 index. Scores are squared euclidean
// distances, smallest first. When dir is set the index is persisted there on
// Flush and loaded by Open.
type Storage struct {
	dir string

	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

// NewStorage returns an empty store. An empty dir keeps the index in memory only.
func NewStorage(dir string) *Storage { return &Storage{dir: dir} }

// Open returns a store for dir, loading a previously flushed index if present.
func Open(dir string) (*Storage, error) {
	s := NewStorage(dir)
	if dir == "" {
		return s, nil
	}
	if _, err := os.Stat(filepath.Join(dir, indexFile)); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.chunks = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("store not initialised")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.Errorf("vector dimension mismatch: got %d, want %d", len(v), s.dimension)
		}
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if len(s.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, errors.Errorf("query dimension mismatch: got %d, want %d", len(vector), s.dimension)
	}
	scores := make([]float32, len(s.vectors))
	for i := range s.vectors {
		scores[i] = squaredL2(s.vectors[i], vector)
	}
	idxs := argsortAsc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

// Clear drops every vector and removes persisted files.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.vectors = nil
	s.chunks = nil
	if s.dir == "" {
		return nil
	}
	for _, name := range []string{indexFile, docstoreFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "remove %s", name)
		}
	}
	return nil
}

// Exists reports whether the store holds an initialised index.
func (s *Storage) Exists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension > 0, nil
}

// Chunks returns a copy of every stored chunk in insertion order.
func (s *Storage) Chunks(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...), nil
}

// Len returns the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Flush writes index.bin and docstore.json into dir.
func (s *Storage) Flush(_ context.Context) error {
	if s.dir == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return errors.New("store not initialised")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "create index dir")
	}
	if err := writeAtomic(filepath.Join(s.dir, indexFile), s.writeVectors); err != nil {
		return errors.Wrap(err, "write vectors")
	}
	if err := writeAtomic(filepath.Join(s.dir, docstoreFile), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(s.chunks)
	}); err != nil {
		return errors.Wrap(err, "write docstore")
	}
	return nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) writeVectors(w io.Writer) error {
	header := make([]byte, 0, 12+len(magic))
	header = append(header, magic...)
	header = binary.LittleEndian.AppendUint32(header, version)
	header = binary.LittleEndian.AppendUint32(header, uint32(s.dimension))
	header = binary.LittleEndian.AppendUint32(header, uint32(len(s.vectors)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	buf := make([]byte, 4*s.dimension)
	for _, v := range s.vectors {
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) load() error {
	f, err := os.Open(filepath.Join(s.dir, indexFile))
	if err != nil {
		return errors.Wrap(err, "open vectors")
	}
	defer f.Close()
	r := bufio.NewReader(f)

	header := make([]byte, len(magic)+12)
	if _, err := io.ReadFull(r, header); err != nil {
		return errors.Wrap(err, "read index header")
	}
	if string(header[:len(magic)]) != magic {
		return errors.New("not a flat index file")
	}
	rest := header[len(magic):]
	if v := binary.LittleEndian.Uint32(rest[0:]); v != version {
		return errors.Errorf("unsupported index version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(rest[4:]))
	count := int(binary.LittleEndian.Uint32(rest[8:]))
	if dim <= 0 {
		return errors.New("corrupt index header")
	}

	vectors := make([][]float32, count)
	buf := make([]byte, 4*dim)
	for n := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return errors.Wrapf(err, "read vector %d", n)
		}
		v := make([]float32, dim)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		vectors[n] = v
	}

	data, err := os.ReadFile(filepath.Join(s.dir, docstoreFile))
	if err != nil {
		return errors.Wrap(err, "read docstore")
	}
	var chunks []domain.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return errors.Wrap(err, "decode docstore")
	}
	if len(chunks) != count {
		return errors.Errorf("docstore has %d chunks for %d vectors", len(chunks), count)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dim
	s.vectors = vectors
	s.chunks = chunks
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func argsortAsc(vals []float32) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	quicksort(idxs, vals, 0, len(idxs)-1)
	return idxs
}

func quicksort(idxs []int, vals []float32, lo, hi int) {
	if lo >= hi {
		return
	}
	i, j := lo, hi
	pivot := vals[idxs[(lo+hi)/2]]
	for i <= j {
		for vals[idxs[i]] < pivot {
			i++
		}
		for vals[idxs[j]] > pivot {
			j--
		}
		if i <= j {
			idxs[i], idxs[j] = idxs[j], idxs[i]
			i++
			j--
		}
	}
	if lo < j {
		quicksort(idxs, vals, lo, j)
	}
	if i < hi {
		quicksort(idxs, vals, i, hi)
	}
}
