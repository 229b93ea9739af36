// Package retrieval assembles grounding context for the assistant.
//
// # Description
//
// The Retriever answers one question: given a raw user query, which stored
// passages should ground the generated answer, and how should they read in
// the prompt. The pipeline is:
//
//  1. Deterministic query understanding (language, intent, group, day,
//     expansion) - see query.go.
//  2. Concurrent similarity search over both knowledge collections.
//  3. Metadata re-ranking: distance, keyword hits, source-type agreement,
//     and structured-knowledge boosts.
//  4. Role-specific rendering and source deduplication - see render.go.
//
// # Failure Semantics
//
// The Retriever never returns an error. Embedding or store failures are
// logged and degrade to an empty context so the engine can still answer
// from the LLM alone during an index outage.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/embedding"
	"github.com/AleutianAI/SmartPresence/services/assistant/vectorstore"
)

// defaultNResults controls the candidate budget when the caller does not
// ask for more.
const defaultNResults = 3

// maxCandidatesPerCollection caps the per-collection top-K.
const maxCandidatesPerCollection = 20

// Retriever performs multi-collection retrieval with metadata re-ranking.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type Retriever struct {
	store    vectorstore.Store
	embedder embedding.Embedder
}

// New creates a Retriever over store and embedder.
func New(store vectorstore.Store, embedder embedding.Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Options tunes one retrieval call.
type Options struct {
	// NResults widens the emitted passage count. Zero keeps the terse
	// default of one passage.
	NResults int

	// SectionHint is an advisory section filter, applied only against
	// large candidate pools.
	SectionHint string
}

// scoredCandidate is a candidate enriched during re-ranking.
type scoredCandidate struct {
	cand       vectorstore.Candidate
	finalScore float64
}

// Retrieve returns the formatted context, the deduplicated sources, and the
// query analysis for query. An empty context means no grounding exists;
// the engine answers from the model alone.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (string, []datatypes.Source, QueryAnalysis) {
	analysis := Analyze(query)

	nResults := opts.NResults
	if nResults <= 0 {
		nResults = defaultNResults
	}

	candidates := r.collectCandidates(ctx, analysis, nResults)
	if len(candidates) == 0 {
		candidates = r.keywordScan(ctx, query)
	}
	if len(candidates) == 0 {
		slog.Warn("No retrieval candidates found", "query", query)
		return "", nil, analysis
	}

	scored := r.scoreCandidates(candidates, analysis, strings.ToLower(query))
	scored = adaptiveDistanceGuard(scored)

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].finalScore > scored[j].finalScore
	})

	keep := 1
	if opts.NResults > 0 {
		keep = opts.NResults
	}

	contextText, sources := renderSelection(scored, candidates, opts, keep)
	return contextText, sources, analysis
}

// collectCandidates queries every available collection concurrently and
// merges the results. Collection errors are logged and skipped.
func (r *Retriever) collectCandidates(ctx context.Context, analysis QueryAnalysis, nResults int) []vectorstore.Candidate {
	vecs, err := r.embedder.Embed(ctx, []string{analysis.ExpandedQuery})
	if err != nil {
		slog.Error("Query embedding failed, falling back to keyword scan", "error", err)
		return nil
	}
	queryVec := vecs[0]

	topK := min(4*nResults, maxCandidatesPerCollection)

	var mu sync.Mutex
	var merged []vectorstore.Candidate

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range []string{vectorstore.CollectionWebsite, vectorstore.CollectionIsta} {
		g.Go(func() error {
			col, err := r.store.Open(gctx, name)
			if err != nil {
				slog.Debug("Collection unavailable", "collection", name, "error", err)
				return nil
			}
			cands, err := col.Query(gctx, queryVec, topK)
			if err != nil {
				slog.Error("Collection query failed", "collection", name, "error", err)
				return nil
			}
			mu.Lock()
			merged = append(merged, cands...)
			mu.Unlock()
			slog.Debug("Collection queried", "collection", name, "results", len(cands))
			return nil
		})
	}
	_ = g.Wait()

	return merged
}

// keywordScan is the last-resort linear scan used when similarity search
// returns nothing: any document with at least one query-token hit
// (tokens longer than three runes) qualifies, with distance zero.
func (r *Retriever) keywordScan(ctx context.Context, query string) []vectorstore.Candidate {
	tokens := queryTokens(query, 3)
	if len(tokens) == 0 {
		return nil
	}
	slog.Info("Similarity search empty, scanning collections by keyword", "tokens", len(tokens))

	var out []vectorstore.Candidate
	for _, name := range []string{vectorstore.CollectionWebsite, vectorstore.CollectionIsta} {
		col, err := r.store.Open(ctx, name)
		if err != nil {
			continue
		}
		docs, err := col.GetAll(ctx)
		if err != nil {
			slog.Error("Keyword scan failed", "collection", name, "error", err)
			continue
		}
		for _, doc := range docs {
			content := strings.ToLower(doc.Content)
			hits := 0
			for _, token := range tokens {
				if strings.Contains(content, token) {
					hits++
				}
			}
			if hits > 0 {
				out = append(out, vectorstore.Candidate{Document: doc, Distance: 0, Collection: name})
			}
		}
	}
	return out
}

// scoreCandidates computes the combined relevance score for every
// candidate.
func (r *Retriever) scoreCandidates(candidates []vectorstore.Candidate, analysis QueryAnalysis, queryLower string) []scoredCandidate {
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if strings.TrimSpace(cand.Document.Content) == "" {
			continue
		}

		score := 1.0/(cand.Distance+0.1) +
			keywordScore(cand.Document, analysis.Tokens) +
			sourceBoost(cand.Document.Metadata, analysis.SourceType) +
			structuredBoost(cand, analysis, queryLower)

		scored = append(scored, scoredCandidate{cand: cand, finalScore: score})
	}
	return scored
}

// keywordScore counts query tokens occurring in the content, the title, or
// the keyword list, at 0.2 per hit.
func keywordScore(doc vectorstore.Document, tokens []string) float64 {
	content := strings.ToLower(doc.Content)
	title := strings.ToLower(doc.Metadata["title"])

	var keywords []string
	for _, k := range strings.Split(doc.Metadata["keywords"], ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	hits := 0
	for _, token := range tokens {
		if strings.Contains(content, token) || (title != "" && strings.Contains(title, token)) {
			hits++
			continue
		}
		for _, k := range keywords {
			if k == token {
				hits++
				break
			}
		}
	}
	return 0.2 * float64(hits)
}

// sourceBoost rewards agreement between the candidate's source type and the
// one implied by the dominant intent.
func sourceBoost(meta map[string]string, wantSource string) float64 {
	if wantSource != "" && meta["source_type"] == wantSource {
		return 0.2
	}
	return 0
}

// structuredBoost is the additive metadata bonus for structured knowledge
// candidates. Unstructured website chunks get nothing here.
func structuredBoost(cand vectorstore.Candidate, analysis QueryAnalysis, queryLower string) float64 {
	if cand.Collection != vectorstore.CollectionIsta {
		return 0
	}
	meta := cand.Document.Metadata
	docType := meta["type"]
	boost := 0.0

	// Intent/type agreement dominates everything else in the score.
	switch {
	case analysis.Intent != "" && intentTypeMatch[analysis.Intent] == docType && docType != "":
		boost += 10.0
	case analysis.Intent == "horaires" && meta["info_type"] == "horaires":
		boost += 10.0
	case analysis.Intent != "" && analysis.Intent != "edt" && docType == "emploi_du_temps":
		// Schedule entries drown out everything; suppress them whenever a
		// different intent is on the table.
		boost -= 5.0
	}

	groupe := meta["groupe"]
	switch {
	case analysis.Group != "" && groupe != "" && strings.EqualFold(groupe, analysis.Group):
		boost += 5.0
	case groupe != "" && strings.Contains(queryLower, strings.ToLower(groupe)):
		boost += 3.0
	}

	jour := meta["jour"]
	switch {
	case analysis.Day != "" && jour != "" && strings.EqualFold(jour, analysis.Day):
		boost += 3.0
	case jour != "" && strings.Contains(queryLower, strings.ToLower(jour)):
		boost += 1.5
	}

	if containsAnyToken(meta["module"], analysis.Tokens) {
		boost += 0.8
	}
	if containsAnyToken(meta["professeur"], analysis.Tokens) {
		boost += 0.8
	}

	// Baseline relevance bonus for structured entries.
	boost += 0.5
	return boost
}

func containsAnyToken(value string, tokens []string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, token := range tokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// adaptiveDistanceGuard drops far outliers, but only for large pools whose
// distance magnitude marks a high-dimension provider. Fixed thresholds
// proved brittle across embedding providers, so filtering stays off unless
// both conditions hold.
func adaptiveDistanceGuard(scored []scoredCandidate) []scoredCandidate {
	if len(scored) <= 10 {
		return scored
	}

	var sum float64
	for _, s := range scored {
		sum += s.cand.Distance
	}
	mean := sum / float64(len(scored))
	if mean <= 1000 {
		return scored
	}

	limit := 1.5 * mean
	kept := scored[:0]
	for _, s := range scored {
		if s.cand.Distance <= limit {
			kept = append(kept, s)
		}
	}
	return kept
}

// sectionMatches reports whether a candidate's section is compatible with
// the normalized hint (containment either way counts).
func sectionMatches(section, hintNormalized string) bool {
	if section == "" || hintNormalized == "" {
		return true
	}
	s := normalizeSection(section)
	return strings.Contains(s, hintNormalized) || strings.Contains(hintNormalized, s)
}

func normalizeSection(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	return strings.ReplaceAll(s, "_", "-")
}
