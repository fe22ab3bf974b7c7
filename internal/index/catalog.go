package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"compliance/internal/domain"
	"compliance/internal/vectorstore"
)

var ErrIndexNotFound = errors.New("index not found")

// Index is an opened reference index: its vectors and the embedder that
// produced them.
type Index struct {
	Key      domain.IndexKey
	Store    vectorstore.Storage
	Embedder domain.Embedder
	Manifest Manifest
}

// Catalog opens indexes on demand and keeps them open for reuse.
type Catalog struct {
	dir         string
	newEmbedder EmbedderFactory
	openStore   StoreOpener

	mu    sync.Mutex
	cache map[domain.IndexKey]*Index
}

func NewCatalog(dir string, newEmbedder EmbedderFactory, openStore StoreOpener) *Catalog {
	return &Catalog{
		dir:         dir,
		newEmbedder: newEmbedder,
		openStore:   openStore,
		cache:       make(map[domain.IndexKey]*Index),
	}
}

// Open returns the index for key, loading it on first use. A cached index is
// reloaded when its manifest shows it was rebuilt since it was opened.
func (c *Catalog) Open(ctx context.Context, key domain.IndexKey) (*Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := Dir(c.dir, key)
	manifest, err := readManifest(dir)
	if idx, ok := c.cache[key]; ok {
		if err == nil && manifest.BuiltAt.Equal(idx.Manifest.BuiltAt) {
			return idx, nil
		}
		delete(c.cache, key)
		_ = idx.Store.Close()
	}
	if err != nil {
		return nil, err
	}
	embedder := c.newEmbedder()
	if embedder.Name() != manifest.Embedder {
		return nil, errors.Errorf("index %s was built with embedder %q, configured %q", key, manifest.Embedder, embedder.Name())
	}
	if se, ok := embedder.(domain.StatefulEmbedder); ok {
		state, err := os.ReadFile(filepath.Join(dir, embedderFile))
		if err != nil {
			return nil, errors.Wrapf(err, "read embedder state for %s", key)
		}
		if err := se.Restore(state); err != nil {
			return nil, errors.Wrapf(err, "restore embedder for %s", key)
		}
	}

	store, err := c.openStore(key)
	if err != nil {
		return nil, errors.Wrapf(err, "open vector store for %s", key)
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if !exists {
		store.Close()
		return nil, errors.Wrapf(ErrIndexNotFound, "%s", key)
	}

	idx := &Index{Key: key, Store: store, Embedder: embedder, Manifest: manifest}
	c.cache[key] = idx
	return idx, nil
}

// Keys lists every index with a manifest under the catalog directory.
func (c *Catalog) Keys() ([]domain.IndexKey, error) {
	years, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read index dir")
	}
	var keys []domain.IndexKey
	for _, y := range years {
		year, err := strconv.Atoi(y.Name())
		if err != nil || !y.IsDir() {
			continue
		}
		langs, err := os.ReadDir(filepath.Join(c.dir, y.Name()))
		if err != nil {
			return nil, errors.Wrap(err, "read index dir")
		}
		for _, l := range langs {
			if _, err := os.Stat(filepath.Join(c.dir, y.Name(), l.Name(), manifestFile)); err == nil {
				keys = append(keys, domain.IndexKey{Year: year, Language: domain.Language(l.Name())})
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Year != keys[j].Year {
			return keys[i].Year < keys[j].Year
		}
		return keys[i].Language < keys[j].Language
	})
	return keys, nil
}

func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for key, idx := range c.cache {
		if err := idx.Store.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.cache, key)
	}
	return first
}

func readManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, errors.Wrapf(ErrIndexNotFound, "%s", dir)
	}
	if err != nil {
		return m, errors.Wrap(err, "read manifest")
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "decode manifest")
	}
	return m, nil
}
