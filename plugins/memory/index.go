package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"

	"github.com/BDNK1/agentflow/runtime"
)

// Document is one stored embedding.
type Document struct {
	ID       string
	Vector   []float64
	Metadata map[string]any
}

// Index is a brute-force cosine similarity index partitioned by tenant and
// namespace.
type Index struct {
	mu   sync.RWMutex
	docs map[string]map[string][]Document // tenant -> namespace -> documents
}

var _ runtime.VectorSearcher = (*Index)(nil)

func NewIndex() *Index {
	return &Index{docs: make(map[string]map[string][]Document)}
}

// Upsert stores documents, replacing any with the same id.
func (ix *Index) Upsert(tenantID, namespace string, docs ...Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	spaces, ok := ix.docs[tenantID]
	if !ok {
		spaces = make(map[string][]Document)
		ix.docs[tenantID] = spaces
	}

	existing := spaces[namespace]
	for _, d := range docs {
		replaced := false
		for i := range existing {
			if existing[i].ID == d.ID {
				existing[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, d)
		}
	}
	spaces[namespace] = existing
}

func (ix *Index) Search(ctx context.Context, q runtime.VectorQuery) ([]runtime.VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorTimeout, err)
	}
	if len(q.Vector) == 0 {
		return nil, runtime.NewServiceError(runtime.ServiceErrorInvalidRequest, errors.New("query vector is empty"))
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matches []runtime.VectorMatch
	for _, d := range ix.docs[q.TenantID][q.Namespace] {
		if len(d.Vector) != len(q.Vector) {
			return nil, runtime.NewServiceError(runtime.ServiceErrorInvalidRequest,
				fmt.Errorf("document %s has %d dimensions, query has %d", d.ID, len(d.Vector), len(q.Vector)))
		}
		if !matchesFilters(d.Metadata, q.Filters) {
			continue
		}
		matches = append(matches, runtime.VectorMatch{
			ID:       d.ID,
			Score:    cosine(q.Vector, d.Vector),
			Metadata: d.Metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if q.TopK > 0 && len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func matchesFilters(metadata, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := metadata[k]
		if !ok || !reflect.DeepEqual(runtime.ValueOf(got).Interface(), runtime.ValueOf(want).Interface()) {
			return false
		}
	}
	return true
}
