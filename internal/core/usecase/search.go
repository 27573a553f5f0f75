package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	DefaultSearchPageSize = 20
	MaxSearchPageSize     = 100
	DefaultSuggestLimit   = 10

	filenameMatchScore  = 2.0
	textMatchScore      = 1.0
	entityMatchScore    = 1.5
	entityFilterBonus   = 0.5
	snippetContextRunes = 50
	snippetEllipsis     = "..."
)

// SearchUseCase scores the owner's documents on every query. It keeps no
// index of its own.
type SearchUseCase struct {
	repo     ports.DocumentRepository
	observer ports.SearchObserver
}

func NewSearchUseCase(repo ports.DocumentRepository) *SearchUseCase {
	return &SearchUseCase{repo: repo}
}

func (uc *SearchUseCase) SetObserver(observer ports.SearchObserver) {
	uc.observer = observer
}

func (uc *SearchUseCase) Search(
	ctx context.Context,
	ownerID, query string,
	filter domain.SearchFilter,
	page, pageSize int,
) ([]domain.SearchResult, int, error) {
	if query == "" {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	page, pageSize = normalizePage(page, pageSize)
	started := time.Now()

	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	scored := make([]domain.SearchResult, 0)
	for i := range docs {
		doc := &docs[i]
		if !passesPrefilter(doc, filter) {
			continue
		}
		result, ok := scoreDocument(doc, query, filter)
		if !ok {
			continue
		}
		scored = append(scored, result)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DocumentID < scored[j].DocumentID
	})

	total := len(scored)
	offset := (page - 1) * pageSize
	if offset >= total {
		uc.observe("search", 0, started)
		return []domain.SearchResult{}, total, nil
	}
	end := min(offset+pageSize, total)
	results := scored[offset:end]
	uc.observe("search", len(results), started)
	return results, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultSearchPageSize
	}
	if pageSize > MaxSearchPageSize {
		pageSize = MaxSearchPageSize
	}
	// Keeps (page-1)*pageSize+pageSize within int.
	page = min(page, math.MaxInt/pageSize)
	return page, pageSize
}

func passesPrefilter(doc *domain.Document, filter domain.SearchFilter) bool {
	if filter.Classification != "" && doc.Classification != filter.Classification {
		return false
	}
	if filter.DateFrom == "" && filter.DateTo == "" {
		return true
	}
	created := domain.FormatTimestamp(doc.CreatedAt)
	if filter.DateFrom != "" && created < filter.DateFrom {
		return false
	}
	if filter.DateTo != "" && created > filter.DateTo {
		return false
	}
	return true
}

// scoreDocument applies the additive relevance model. ok is false when the
// document scores zero.
func scoreDocument(doc *domain.Document, query string, filter domain.SearchFilter) (domain.SearchResult, bool) {
	score := 0.0
	snippet := ""

	if indexFold(doc.Filename, query) >= 0 {
		score += filenameMatchScore
		snippet = doc.Filename
	}

	if idx := indexFold(doc.Text, query); idx >= 0 {
		score += textMatchScore
		snippet = textSnippet(doc.Text, idx, utf8.RuneCountInString(query))
	}

	for _, entity := range doc.Entities {
		if indexFold(entity.Value, query) >= 0 {
			score += entityMatchScore
		}
	}

	// Added once per document, on top of any per-entity matches above.
	if matchesEntityFilter(doc.Entities, filter) {
		score += entityFilterBonus
	}

	if score <= 0 {
		return domain.SearchResult{}, false
	}
	if snippet == "" {
		snippet = doc.Filename
	}
	return domain.SearchResult{
		DocumentID:     doc.ID,
		Filename:       doc.Filename,
		Classification: doc.Classification,
		Score:          score,
		Snippet:        snippet,
		CreatedAt:      doc.CreatedAt,
	}, true
}

func matchesEntityFilter(entities []domain.Entity, filter domain.SearchFilter) bool {
	if filter.EntityType == "" || filter.EntityValue == "" {
		return false
	}
	for _, entity := range entities {
		if string(entity.Type) == filter.EntityType && indexFold(entity.Value, filter.EntityValue) >= 0 {
			return true
		}
	}
	return false
}

// textSnippet cuts snippetContextRunes characters on each side of the match
// at rune index idx and wraps the window in ellipses.
func textSnippet(text string, idx, queryLen int) string {
	runes := []rune(text)
	start := max(idx-snippetContextRunes, 0)
	end := min(idx+queryLen+snippetContextRunes, len(runes))
	return snippetEllipsis + string(runes[start:end]) + snippetEllipsis
}

// indexFold returns the rune index of the first case-insensitive occurrence
// of needle in haystack, or -1.
func indexFold(haystack, needle string) int {
	if needle == "" {
		return -1
	}
	h := foldRunes(haystack)
	n := foldRunes(needle)
	if len(n) > len(h) {
		return -1
	}
outer:
	for i := 0; i+len(n) <= len(h); i++ {
		for j := range n {
			if h[i+j] != n[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func foldRunes(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return out
}

// Suggest returns sorted distinct filenames and entity values containing
// partial, case-insensitively.
func (uc *SearchUseCase) Suggest(ctx context.Context, ownerID, partial string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if partial == "" {
		return []string{}, nil
	}
	started := time.Now()

	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	seen := make(map[string]struct{})
	for _, doc := range docs {
		if indexFold(doc.Filename, partial) >= 0 {
			seen[doc.Filename] = struct{}{}
		}
		for _, entity := range doc.Entities {
			if indexFold(entity.Value, partial) >= 0 {
				seen[entity.Value] = struct{}{}
			}
		}
	}

	suggestions := make([]string, 0, len(seen))
	for s := range seen {
		suggestions = append(suggestions, s)
	}
	sort.Strings(suggestions)
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	uc.observe("suggest", len(suggestions), started)
	return suggestions, nil
}

func (uc *SearchUseCase) FilterOptions(ctx context.Context, ownerID string) (domain.FilterOptions, error) {
	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return domain.FilterOptions{}, fmt.Errorf("list documents: %w", err)
	}

	classifications := make(map[string]struct{})
	entityTypes := make(map[string]struct{})
	var minCreated, maxCreated *time.Time
	for i := range docs {
		doc := &docs[i]
		if doc.Classification != "" {
			classifications[doc.Classification] = struct{}{}
		}
		for _, entity := range doc.Entities {
			entityTypes[string(entity.Type)] = struct{}{}
		}
		created := doc.CreatedAt
		if minCreated == nil || created.Before(*minCreated) {
			minCreated = &created
		}
		if maxCreated == nil || created.After(*maxCreated) {
			maxCreated = &created
		}
	}

	return domain.FilterOptions{
		Classifications: sortedKeys(classifications),
		EntityTypes:     sortedKeys(entityTypes),
		DateRange:       domain.DateRange{Min: minCreated, Max: maxCreated},
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (uc *SearchUseCase) observe(kind string, results int, started time.Time) {
	if uc.observer != nil {
		uc.observer.ObserveSearch(kind, results, time.Since(started))
	}
}
