package bulk

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/twinforge/ditto-bulk/pkg/client"
	"github.com/twinforge/ditto-bulk/pkg/progress"
)

// PageSource fetches pages of thing ids from a cursor-paginated search.
type PageSource interface {
	// SearchPage fetches one page. An empty cursor requests the first
	// page; an empty cursor in the result marks the last page.
	SearchPage(ctx context.Context, cursor string, pageSize int) (client.SearchPage, error)
}

// CollectOptions configures a collection run.
type CollectOptions struct {
	// PageSize is the number of things requested per page (default 200).
	PageSize int

	// MaxCount stops collection once this many ids were gathered.
	// Zero collects everything.
	MaxCount int
}

// CollectThingIDs pages through the search endpoint and returns the
// collected thing ids in search order.
//
// A page request failure ends collection: the error is logged and the ids
// gathered so far are returned. The caller decides whether a partial set
// is acceptable.
func CollectThingIDs(ctx context.Context, source PageSource, opts CollectOptions, reporter progress.Reporter) []string {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	if reporter == nil {
		reporter = progress.Nop()
	}

	total := progress.Indeterminate
	if opts.MaxCount > 0 {
		total = opts.MaxCount
	}
	reporter.Start("Collecting IDs", total)
	defer reporter.Done()

	var ids []string
	cursor := ""
	pages := 0

	for {
		page, err := source.SearchPage(ctx, cursor, opts.PageSize)
		if err != nil {
			log.Warn().
				Err(err).
				Int("collected", len(ids)).
				Int("pages", pages).
				Msg("Error collecting ids - returning partial result")
			return ids
		}
		pages++

		for _, id := range page.ThingIDs {
			ids = append(ids, id)
			reporter.Advance(1)
			if opts.MaxCount > 0 && len(ids) >= opts.MaxCount {
				return ids
			}
		}

		if len(page.ThingIDs) == 0 || page.Cursor == "" {
			return ids
		}
		cursor = page.Cursor
	}
}
