package httpadapter

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/usecase"
)

// queryParam binds an optional form-style query parameter. The result is nil
// when the parameter is absent.
func queryParam[T any](r *http.Request, name string) (*T, error) {
	var out *T
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &out); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "bind query parameter", err)
	}
	return out, nil
}

// pageParams reads page and page_size. Out of range values are clamped, not
// rejected; only values that are not integers fail.
func pageParams(r *http.Request) (int, int, error) {
	pageParam, err := queryParam[int](r, "page")
	if err != nil {
		return 0, 0, err
	}
	sizeParam, err := queryParam[int](r, "page_size")
	if err != nil {
		return 0, 0, err
	}

	page := 1
	if pageParam != nil && *pageParam > 1 {
		page = *pageParam
	}
	pageSize := usecase.DefaultSearchPageSize
	if sizeParam != nil && *sizeParam > 0 {
		pageSize = min(*sizeParam, usecase.MaxSearchPageSize)
	}
	return page, pageSize, nil
}
