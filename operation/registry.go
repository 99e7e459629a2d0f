package operation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/walletop/internal/log"
)

const DefaultRegistrySize = 256

// Registry caches parsed documents and serves them by persisted query id.
type Registry struct {
	mu sync.Mutex

	bySource *lru.Cache[string, *Document]
	byHash   *lru.Cache[string, *Document]
}

func NewRegistry(size int) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	bySource, err := lru.New[string, *Document](size)
	if err != nil {
		return nil, err
	}
	byHash, err := lru.New[string, *Document](size)
	if err != nil {
		return nil, err
	}
	return &Registry{
		bySource: bySource,
		byHash:   byHash,
	}, nil
}

// Register parses src, or returns the document parsed earlier from the same text.
func (r *Registry) Register(ctx context.Context, src *ast.Source) (*Document, error) {
	sum := sha256.Sum256([]byte(src.Input))
	key := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.bySource.Get(key); ok {
		log.Debug(ctx, "registry hit", "source", src.Name, "hash", doc.Hash())
		return doc, nil
	}

	doc, err := Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	r.bySource.Add(key, doc)
	r.byHash.Add(doc.Hash(), doc)

	return doc, nil
}

// Lookup finds a document by its persisted query id.
func (r *Registry) Lookup(hash string) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.byHash.Get(hash)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.byHash.Len()
}

const ManifestFormat = "apollo-persisted-query-manifest"

type Manifest struct {
	Format     string              `json:"format"`
	Version    int                 `json:"version"`
	Operations []ManifestOperation `json:"operations"`
}

type ManifestOperation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Body string `json:"body"`
}

// Manifest lists the registered documents ordered by operation name, then id.
func (r *Registry) Manifest() *Manifest {
	r.mu.Lock()
	docs := r.byHash.Values()
	r.mu.Unlock()

	m := &Manifest{
		Format:     ManifestFormat,
		Version:    1,
		Operations: make([]ManifestOperation, 0, len(docs)),
	}
	for _, doc := range docs {
		m.Operations = append(m.Operations, ManifestOperation{
			ID:   doc.Hash(),
			Name: doc.OperationName(),
			Type: string(doc.OperationType()),
			Body: doc.Query(),
		})
	}
	sort.Slice(m.Operations, func(i, j int) bool {
		a, b := m.Operations[i], m.Operations[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	return m
}

// ForHash returns the manifest entry for hash.
func (m *Manifest) ForHash(hash string) (*ManifestOperation, error) {
	for i := range m.Operations {
		if m.Operations[i].ID == hash {
			return &m.Operations[i], nil
		}
	}
	return nil, fmt.Errorf("operation %s is not in the manifest", hash)
}
