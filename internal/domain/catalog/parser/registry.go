package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/normalizer"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/pdfdoc"
)

// ErrUnknownSupplier is returned for a slug with no registered strategy.
var ErrUnknownSupplier = errors.New("unknown supplier")

// Strategy extracts rows from one supplier's documents.
type Strategy interface {
	Open(data []byte) (pdfdoc.Document, error)
	Parse(ctx context.Context, data []byte, meta catalog.Metadata, emit Emit) (*Result, error)
	ParseDocument(ctx context.Context, doc pdfdoc.Document, meta catalog.Metadata, emit Emit) (*Result, error)
}

// Registry maps supplier slugs to their strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// NewLayoutRegistry registers a LayoutParser for every layout.
func NewLayoutRegistry(layouts map[string]Layout, repairer *normalizer.Repairer, logger *slog.Logger) *Registry {
	r := NewRegistry()
	for slug, l := range layouts {
		r.Register(slug, NewLayoutParser(l, repairer, logger))
	}
	return r
}

// Register adds or replaces the strategy for slug.
func (r *Registry) Register(slug string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[slug] = s
}

// Lookup returns the strategy for slug. Unknown slugs get the closest
// registered slug as a suggestion in the error.
func (r *Registry) Lookup(slug string) (Strategy, error) {
	r.mu.RLock()
	s, ok := r.strategies[slug]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	if suggestion := r.suggest(slug); suggestion != "" {
		return nil, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownSupplier, slug, suggestion)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownSupplier, slug)
}

// Slugs lists registered suppliers in order.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slugs := make([]string, 0, len(r.strategies))
	for slug := range r.strategies {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

const maxSuggestionDistance = 3

func (r *Registry) suggest(slug string) string {
	if slug == "" {
		return ""
	}
	slugs := r.Slugs()

	ranks := fuzzy.RankFindNormalizedFold(slug, slugs)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range slugs {
		if d := fuzzy.LevenshteinDistance(slug, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
