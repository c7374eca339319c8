package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
)

var (
	orderingParam = "ordering"

	// layouts accepted for date & time query parameters, most precise first
	timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

func bindPage(ctx echo.Context, defaultPerPage int) core.Page {
	return core.NewPage(ctx.QueryParam("page"), ctx.QueryParam("per_page"), defaultPerPage)
}

// pageResponse renders a page of items under `key` along with the pagination info.
func pageResponse(key string, items interface{}, info core.PageInfo) echo.Map {
	return echo.Map{
		key:            items,
		"total":        info.Total,
		"pages":        info.Pages,
		"current_page": info.CurrentPage,
		"per_page":     info.PerPage,
	}
}

// paramID parses a positive integer path parameter; anything else is a 404.
func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

func queryInt64(ctx echo.Context, name string) (null.Int64, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return null.Int64{}, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return null.Int64{}, core.NewFieldError(name, "must be an integer")
	}
	return null.Int64From(n), nil
}

func queryBool(ctx echo.Context, name string) *bool {
	b, err := strconv.ParseBool(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &b
}

// queryTime parses an ISO-8601 date or date-time; values without a zone are taken as UTC.
func queryTime(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, core.NewFieldError(name, "invalid date format")
}
