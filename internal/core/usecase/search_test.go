package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

var searchEpoch = time.Date(2025, 5, 10, 8, 30, 0, 0, time.UTC)

func searchDoc(id, filename, text string, entities ...domain.Entity) domain.Document {
	return domain.Document{
		ID:        id,
		OwnerID:   "user-1",
		Filename:  filename,
		Text:      text,
		Entities:  entities,
		Status:    domain.StatusProcessed,
		CreatedAt: searchEpoch,
	}
}

func resultIDs(results []domain.SearchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.DocumentID)
	}
	return ids
}

func TestSearchRanksFilenameAboveBody(t *testing.T) {
	repo := newDocRepoFake(
		searchDoc("b", "scan-001.pdf", "Please pay this invoice soon"),
		searchDoc("a", "Invoice-2024.pdf", "nothing relevant here"),
	)
	uc := NewSearchUseCase(repo)

	results, total, err := uc.Search(context.Background(), "user-1", "invoice", domain.SearchFilter{}, 1, 20)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Fatalf("expected 2 results, got total=%d len=%d", total, len(results))
	}
	if results[0].DocumentID != "a" || results[0].Score != 2.0 || results[0].Snippet != "Invoice-2024.pdf" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].DocumentID != "b" || results[1].Score != 1.0 {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func TestSearchAdditiveScore(t *testing.T) {
	doc := searchDoc("x", "acme-invoice.pdf", "Invoice from ACME for services",
		domain.Entity{Type: domain.EntityOrganization, Value: "ACME Corp"},
		domain.Entity{Type: domain.EntityOther, Value: "acme"},
		domain.Entity{Type: domain.EntityPerson, Value: "Jane Doe"},
	)
	uc := NewSearchUseCase(newDocRepoFake(doc))

	results, total, err := uc.Search(context.Background(), "user-1", "Acme", domain.SearchFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 result, got %d", total)
	}
	if results[0].Score != 6.0 {
		t.Fatalf("expected filename + text + 2 entities = 6.0, got %v", results[0].Score)
	}
	if want := "...Invoice from ACME for services..."; results[0].Snippet != want {
		t.Fatalf("snippet = %q, want %q", results[0].Snippet, want)
	}
}

func TestSearchEntityFilterBonusStacks(t *testing.T) {
	doc := searchDoc("x", "notes.txt", "",
		domain.Entity{Type: domain.EntityOrganization, Value: "Acme Corp"},
		domain.Entity{Type: domain.EntityOrganization, Value: "Acme Labs"},
	)
	uc := NewSearchUseCase(newDocRepoFake(doc))

	results, _, err := uc.Search(context.Background(), "user-1", "acme", domain.SearchFilter{
		EntityType:  "ORGANIZATION",
		EntityValue: "corp",
	}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score != 3.5 || results[0].Snippet != "notes.txt" {
		t.Fatalf("expected score 3.5 with filename snippet, got %+v", results[0])
	}
}

func TestSearchEntityFilterAloneDoesNotScore(t *testing.T) {
	doc := searchDoc("x", "notes.txt", "", domain.Entity{Type: domain.EntityOrganization, Value: "Acme Corp"})
	uc := NewSearchUseCase(newDocRepoFake(doc))

	results, _, err := uc.Search(context.Background(), "user-1", "acme", domain.SearchFilter{EntityType: "ORGANIZATION"}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Score != 1.5 {
		t.Fatalf("expected a single 1.5 result, got %+v", results)
	}
}

func TestSearchPagination(t *testing.T) {
	docs := make([]domain.Document, 0, 30)
	for i := range 25 {
		docs = append(docs, searchDoc(fmt.Sprintf("doc-%02d", i), fmt.Sprintf("contract-%02d.pdf", i), ""))
	}
	for i := range 5 {
		docs = append(docs, searchDoc(fmt.Sprintf("other-%02d", i), "memo.txt", "unrelated"))
	}
	uc := NewSearchUseCase(newDocRepoFake(docs...))

	results, total, err := uc.Search(context.Background(), "user-1", "contract", domain.SearchFilter{}, 3, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 25 || len(results) != 5 {
		t.Fatalf("expected 5 of 25 on page 3, got %d of %d", len(results), total)
	}
	if results[0].DocumentID != "doc-20" || results[4].DocumentID != "doc-24" {
		t.Fatalf("unexpected page 3: %v", resultIDs(results))
	}

	results, total, err = uc.Search(context.Background(), "user-1", "contract", domain.SearchFilter{}, 4, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 25 || len(results) != 0 {
		t.Fatalf("expected empty page 4 of 25, got %d of %d", len(results), total)
	}
}

func TestSearchHugePageIsEmpty(t *testing.T) {
	uc := NewSearchUseCase(newDocRepoFake(
		searchDoc("a", "invoice-a.pdf", ""),
		searchDoc("b", "invoice-b.pdf", ""),
	))

	for _, page := range []int{math.MaxInt / 50, math.MaxInt/100 + 2, math.MaxInt} {
		results, total, err := uc.Search(context.Background(), "user-1", "invoice", domain.SearchFilter{}, page, 100)
		if err != nil {
			t.Fatalf("page %d: Search() error = %v", page, err)
		}
		if total != 2 || len(results) != 0 {
			t.Fatalf("page %d: expected empty page of 2, got %d of %d", page, len(results), total)
		}
	}
}

func TestNormalizePageBoundsOffset(t *testing.T) {
	page, size := normalizePage(math.MaxInt, 0)
	if size != DefaultSearchPageSize {
		t.Fatalf("expected default page size, got %d", size)
	}
	if offset := (page - 1) * size; offset < 0 || offset > math.MaxInt-size {
		t.Fatalf("offset %d overflows for page %d", offset, page)
	}
}

func TestSearchPrefilters(t *testing.T) {
	early := searchDoc("early", "invoice-a.pdf", "")
	early.Classification = "invoice"
	early.CreatedAt = searchEpoch.Add(-48 * time.Hour)
	late := searchDoc("late", "invoice-b.pdf", "")
	late.Classification = "invoice"
	receipt := searchDoc("receipt", "invoice-c.pdf", "")
	receipt.Classification = "receipt"
	uc := NewSearchUseCase(newDocRepoFake(early, late, receipt))

	_, total, err := uc.Search(context.Background(), "user-1", "invoice", domain.SearchFilter{
		Classification: "invoice",
		DateFrom:       "2025-05-01",
	}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 invoices since May 1, got %d", total)
	}

	results, total, err := uc.Search(context.Background(), "user-1", "invoice", domain.SearchFilter{
		Classification: "invoice",
		DateFrom:       domain.FormatTimestamp(searchEpoch.Add(-time.Hour)),
		DateTo:         "2025-05-11",
	}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 1 || results[0].DocumentID != "late" {
		t.Fatalf("expected only late, got %v", resultIDs(results))
	}
}

func TestSearchExcludesZeroScoresAndOtherOwners(t *testing.T) {
	mine := searchDoc("mine", "budget.xlsx", "")
	theirs := searchDoc("theirs", "budget.xlsx", "")
	theirs.OwnerID = "user-2"
	uc := NewSearchUseCase(newDocRepoFake(mine, theirs, searchDoc("none", "cat.png", "")))

	results, total, err := uc.Search(context.Background(), "user-1", "budget", domain.SearchFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 1 || results[0].DocumentID != "mine" {
		t.Fatalf("expected only mine, got %v", resultIDs(results))
	}
}

func TestSearchSnippetWindow(t *testing.T) {
	text := strings.Repeat("a", 80) + "NEEDLE" + strings.Repeat("b", 80)
	uc := NewSearchUseCase(newDocRepoFake(searchDoc("x", "file.txt", text)))

	results, _, err := uc.Search(context.Background(), "user-1", "needle", domain.SearchFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := "..." + strings.Repeat("a", 50) + "NEEDLE" + strings.Repeat("b", 50) + "..."
	if results[0].Snippet != want {
		t.Fatalf("snippet = %q, want %q", results[0].Snippet, want)
	}
}

func TestSearchSnippetClipsAtBounds(t *testing.T) {
	uc := NewSearchUseCase(newDocRepoFake(searchDoc("x", "file.txt", "Früh invoice")))

	results, _, err := uc.Search(context.Background(), "user-1", "INVOICE", domain.SearchFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if want := "...Früh invoice..."; results[0].Snippet != want {
		t.Fatalf("snippet = %q, want %q", results[0].Snippet, want)
	}
}

func TestSearchTieBreaksByID(t *testing.T) {
	uc := NewSearchUseCase(newDocRepoFake(
		searchDoc("c", "report.pdf", ""),
		searchDoc("a", "report.pdf", ""),
		searchDoc("b", "report.pdf", ""),
	))

	results, _, err := uc.Search(context.Background(), "user-1", "report", domain.SearchFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := resultIDs(results); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected id order a,b,c, got %v", got)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	uc := NewSearchUseCase(newDocRepoFake())
	_, _, err := uc.Search(context.Background(), "user-1", "", domain.SearchFilter{}, 1, 10)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSearchWhitespaceQueryMatchesLiterally(t *testing.T) {
	uc := NewSearchUseCase(newDocRepoFake(
		searchDoc("spaced", "q3 report.pdf", ""),
		searchDoc("solid", "q3-report.pdf", ""),
	))

	results, total, err := uc.Search(context.Background(), "user-1", " ", domain.SearchFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 1 || results[0].DocumentID != "spaced" {
		t.Fatalf("expected only the filename with a space, got %v", resultIDs(results))
	}
}

func TestSearchRepositoryError(t *testing.T) {
	repo := newDocRepoFake()
	repo.listErr = errors.New("db down")
	uc := NewSearchUseCase(repo)
	if _, _, err := uc.Search(context.Background(), "user-1", "x", domain.SearchFilter{}, 1, 10); err == nil {
		t.Fatalf("expected repository error")
	}
}

func TestSuggest(t *testing.T) {
	uc := NewSearchUseCase(newDocRepoFake(
		searchDoc("1", "Acme-invoice.pdf", "", domain.Entity{Type: domain.EntityOrganization, Value: "Acme Corp"}),
		searchDoc("2", "acme-contract.pdf", "", domain.Entity{Type: domain.EntityOrganization, Value: "Acme Corp"}),
		searchDoc("3", "globex.pdf", "", domain.Entity{Type: domain.EntityPerson, Value: "Jane"}),
	))

	got, err := uc.Suggest(context.Background(), "user-1", "ACME", 10)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if want := []string{"Acme Corp", "Acme-invoice.pdf", "acme-contract.pdf"}; !slices.Equal(got, want) {
		t.Fatalf("Suggest() = %v, want %v", got, want)
	}

	if got, err = uc.Suggest(context.Background(), "user-1", "acme", 2); err != nil || len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %v (%v)", got, err)
	}

	if got, err = uc.Suggest(context.Background(), "user-1", "", 5); err != nil || len(got) != 0 {
		t.Fatalf("expected no suggestions for empty input, got %v (%v)", got, err)
	}

	got, err = uc.Suggest(context.Background(), "user-1", " ", 5)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if want := []string{"Acme Corp"}; !slices.Equal(got, want) {
		t.Fatalf("Suggest(space) = %v, want %v", got, want)
	}
}

func TestFilterOptions(t *testing.T) {
	first := searchDoc("1", "a.pdf", "", domain.Entity{Type: domain.EntityMoney, Value: "1"})
	first.Classification = "invoice"
	first.CreatedAt = searchEpoch.Add(-time.Hour)
	second := searchDoc("2", "b.pdf", "", domain.Entity{Type: domain.EntityDate, Value: "May 1"}, domain.Entity{Type: domain.EntityMoney, Value: "2"})
	second.Classification = "contract"
	third := searchDoc("3", "c.pdf", "")
	third.CreatedAt = searchEpoch.Add(time.Hour)
	uc := NewSearchUseCase(newDocRepoFake(first, second, third))

	opts, err := uc.FilterOptions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FilterOptions() error = %v", err)
	}
	if !slices.Equal(opts.Classifications, []string{"contract", "invoice"}) {
		t.Fatalf("unexpected classifications: %v", opts.Classifications)
	}
	if !slices.Equal(opts.EntityTypes, []string{"DATE", "MONEY"}) {
		t.Fatalf("unexpected entity types: %v", opts.EntityTypes)
	}
	if opts.DateRange.Min == nil || opts.DateRange.Max == nil {
		t.Fatalf("expected a date range, got %+v", opts.DateRange)
	}
	if !opts.DateRange.Min.Equal(searchEpoch.Add(-time.Hour)) || !opts.DateRange.Max.Equal(searchEpoch.Add(time.Hour)) {
		t.Fatalf("unexpected date range: %v..%v", opts.DateRange.Min, opts.DateRange.Max)
	}
}

func TestFilterOptionsEmptyOwner(t *testing.T) {
	uc := NewSearchUseCase(newDocRepoFake())

	opts, err := uc.FilterOptions(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("FilterOptions() error = %v", err)
	}
	if len(opts.Classifications) != 0 || len(opts.EntityTypes) != 0 {
		t.Fatalf("expected no options, got %+v", opts)
	}
	if opts.DateRange.Min != nil || opts.DateRange.Max != nil {
		t.Fatalf("expected nil date range, got %+v", opts.DateRange)
	}
}
