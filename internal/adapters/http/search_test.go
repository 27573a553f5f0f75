package httpadapter

import (
	"net/http"
	"testing"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/domain"
)

func TestSearchEndpointRanksAndPages(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.seedProcessed(t, "doc-a", "user-1", "acme-invoice.txt", "Payment terms")
	env.seedProcessed(t, "doc-b", "user-1", "notes.txt", "Call Acme tomorrow")
	env.seedProcessed(t, "doc-c", "user-2", "acme.txt", "Acme")

	res := env.do(t, http.MethodGet, "/v1/search?q=ACME", "user-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	page := decodeBody[pageResponse[domain.SearchResult]](t, res)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].DocumentID != "doc-a" || page.Items[0].Score != 2.0 || page.Items[1].Score != 1.0 {
		t.Fatalf("unexpected ranking: %+v", page.Items)
	}
	if page.PageSize != 20 || page.Page != 1 {
		t.Fatalf("expected default paging, got page=%d size=%d", page.Page, page.PageSize)
	}
}

func TestSearchEntityFilterBonus(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.seedProcessed(t, "doc-1", "user-1", "contract.txt", "Signed by Acme",
		domain.Entity{Type: domain.EntityOrganization, Value: "Acme Corp"})

	res := env.do(t, http.MethodGet, "/v1/search?q=acme&entity_type=organization&entity_value=Corp", "user-1", nil)
	page := decodeBody[pageResponse[domain.SearchResult]](t, res)
	if len(page.Items) != 1 || page.Items[0].Score != 3.0 {
		t.Fatalf("expected text + entity + filter bonus = 3.0, got %+v", page.Items)
	}
}

func TestSearchEmptyQueryReturns400(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	if res := env.do(t, http.MethodGet, "/v1/search?q=", "user-1", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchWhitespaceQueryIsSearched(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.seedProcessed(t, "doc-1", "user-1", "q3 report.pdf", "x")
	res := env.do(t, http.MethodGet, "/v1/search?q=%20", "user-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestSuggestAndFilterOptions(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.seedProcessed(t, "doc-1", "user-1", "acme-contract.pdf", "x",
		domain.Entity{Type: domain.EntityOrganization, Value: "Acme Corp"})

	res := env.do(t, http.MethodGet, "/v1/search/suggest?q=acme&limit=5", "user-1", nil)
	suggest := decodeBody[struct {
		Suggestions []string `json:"suggestions"`
	}](t, res)
	if len(suggest.Suggestions) != 2 || suggest.Suggestions[0] != "Acme Corp" {
		t.Fatalf("unexpected suggestions: %v", suggest.Suggestions)
	}

	res = env.do(t, http.MethodGet, "/v1/search/filters", "user-1", nil)
	options := decodeBody[domain.FilterOptions](t, res)
	if len(options.Classifications) != 1 || options.Classifications[0] != domain.LabelInvoice {
		t.Fatalf("unexpected classifications: %v", options.Classifications)
	}
	if len(options.EntityTypes) != 1 || options.DateRange.Min == nil {
		t.Fatalf("unexpected filter options: %+v", options)
	}

	res = env.do(t, http.MethodGet, "/v1/search/filters", "user-9", nil)
	empty := decodeBody[domain.FilterOptions](t, res)
	if empty.DateRange.Min != nil || empty.DateRange.Max != nil {
		t.Fatalf("expected nil date range for empty owner, got %+v", empty.DateRange)
	}
}
