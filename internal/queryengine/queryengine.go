// Package queryengine implements the small-arity ranked-retrieval query
// spec §4.5 describes: normalize and tokenize a raw query string, cap it
// at four terms, and delegate to the IndexStore.
package queryengine

import (
	"context"
	"strings"

	"github.com/codepr/gosearch/internal/store"
	"github.com/codepr/gosearch/internal/textpipeline"
)

// maxTerms is the spec's hard cap on distinct query terms per request.
const maxTerms = 4

// resultLimit is the spec's cap on returned (url, score) rows.
const resultLimit = 10

// Engine answers search queries against an IndexStore.
type Engine struct {
	index store.IndexStore
}

// New builds an Engine over idx.
func New(idx store.IndexStore) *Engine {
	return &Engine{index: idx}
}

// Query normalizes raw the same way the text pipeline normalizes crawled
// pages, keeps at most the first four length-filtered terms, and returns
// up to ten ranked (url, score) postings. An empty term set (raw was
// blank, or every token failed the length filter) returns an empty slice
// without touching the store.
func (e *Engine) Query(ctx context.Context, raw string) ([]store.Posting, error) {
	terms := tokenize(raw)
	if len(terms) == 0 {
		return nil, nil
	}
	return e.index.Search(ctx, terms, resultLimit)
}

// tokenize normalizes raw with the shared TextPipeline rules and returns
// the first maxTerms distinct length-filtered words, in first-seen order.
func tokenize(raw string) []string {
	normalized := textpipeline.Normalize(raw)
	freq := textpipeline.CountTerms(normalized)
	if len(freq) == 0 {
		return nil
	}
	seen := make(map[string]bool, maxTerms)
	terms := make([]string, 0, maxTerms)
	for _, word := range strings.Fields(normalized) {
		if _, ok := freq[word]; !ok || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
		if len(terms) == maxTerms {
			break
		}
	}
	return terms
}
