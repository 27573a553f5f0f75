package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const defaultSuggestLimit = 10

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	query := r.URL.Query()
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter := domain.SearchFilter{
		Classification: strings.TrimSpace(query.Get("classification")),
		EntityType:     strings.ToUpper(strings.TrimSpace(query.Get("entity_type"))),
		EntityValue:    strings.TrimSpace(query.Get("entity_value")),
		DateFrom:       strings.TrimSpace(query.Get("date_from")),
		DateTo:         strings.TrimSpace(query.Get("date_to")),
	}

	results, total, err := rt.deps.Search.Search(r.Context(), owner, query.Get("q"), filter, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[domain.SearchResult]{Items: results, Total: total, Page: page, PageSize: pageSize})
}

func (rt *Router) suggest(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limitParam, err := queryParam[int](r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	limit := defaultSuggestLimit
	if limitParam != nil && *limitParam > 0 {
		limit = *limitParam
	}
	suggestions, err := rt.deps.Search.Suggest(r.Context(), owner, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (rt *Router) filterOptions(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	options, err := rt.deps.Search.FilterOptions(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}
