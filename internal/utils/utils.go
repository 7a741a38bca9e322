package utils

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
)

var ErrBadParam = errors.New("bad parameter")

// PathID reads a positive integer URL parameter.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadParam
	}
	return id, nil
}

// PageFromQuery reads limit and offset. Missing values fall back to the
// defaults; the cap is applied later by Page.Normalize.
func PageFromQuery(r *http.Request) (model.Page, error) {
	var page model.Page
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return model.Page{}, ErrBadParam
		}
		page.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return model.Page{}, ErrBadParam
		}
		page.Offset = offset
	}
	return page.Normalize(), nil
}

// EntryFilterFromQuery reads kind, order_id and the page.
func EntryFilterFromQuery(r *http.Request) (model.EntryFilter, error) {
	page, err := PageFromQuery(r)
	if err != nil {
		return model.EntryFilter{}, err
	}
	filter := model.EntryFilter{Page: page}
	q := r.URL.Query()

	if v := q.Get("kind"); v != "" {
		kind := model.EntryKind(v)
		if !kind.Valid() {
			return model.EntryFilter{}, ErrBadParam
		}
		filter.Kind = &kind
	}
	if v := q.Get("order_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return model.EntryFilter{}, ErrBadParam
		}
		filter.RelatedOrderID = &id
	}
	return filter, nil
}
