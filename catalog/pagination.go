package catalog

import (
	"context"
	"log/slog"

	"github.com/letmevibethatforyou/iipsearch"
)

// ResultPage is one page of hits. A failed or out-of-range page request is
// answered with the empty page (Empty set, no items), never an error.
type ResultPage struct {
	Items    []iipsearch.Result `json:"items"`
	Number   int                `json:"number"`
	NumPages int                `json:"num_pages"`
	Total    int64              `json:"total"`
	Empty    bool               `json:"empty"`
}

// EmptyPage returns the empty page.
func EmptyPage() ResultPage {
	return ResultPage{Empty: true}
}

// NumPages is the page count for total hits; an empty result still has one
// (empty) page.
func NumPages(total int64) int {
	if total <= 0 {
		return 1
	}
	return int((total + PageSize - 1) / PageSize)
}

// Paginate returns page number page of built. Page 1 reuses the hits the
// query already fetched; later pages re-run the effective query at their
// offset.
func (c *Catalog) Paginate(ctx context.Context, built BuiltQuery, page int) ResultPage {
	if err := ctx.Err(); err != nil {
		return c.emptyPage(ctx, "fetch_failed", "page", page, "error", iipsearch.ClassifyContextError(err))
	}
	if built.Results == nil {
		return c.emptyPage(ctx, "no_results", "page", page)
	}

	numPages := NumPages(built.Results.Total)
	if page < 1 || page > numPages {
		return c.emptyPage(ctx, "out_of_range", "page", page, "num_pages", numPages)
	}

	var items []iipsearch.Result
	if page == 1 {
		n := min(len(built.Results.Items), PageSize)
		items = append(make([]iipsearch.Result, 0, n), built.Results.Items[:n]...)
	} else {
		res, err := c.searcher.Search(ctx, built.Query,
			iipsearch.WithLimit(PageSize),
			iipsearch.WithOffset((page-1)*PageSize),
		)
		if err != nil {
			return c.emptyPage(ctx, "fetch_failed", "page", page, "query", built.Query, "error", err)
		}
		items = res.Items[:min(len(res.Items), PageSize)]
	}

	return ResultPage{
		Items:    items,
		Number:   page,
		NumPages: numPages,
		Total:    built.Results.Total,
	}
}

func (c *Catalog) emptyPage(ctx context.Context, reason string, args ...any) ResultPage {
	args = append([]any{logIDAttr(ctx), "reason", reason}, args...)
	slog.WarnContext(ctx, "Returning empty page", args...)
	c.recorder.EmptyPage(reason)
	return EmptyPage()
}
