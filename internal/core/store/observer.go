package store

import (
	"context"

	"github.com/solatis/boorukeeper/internal/site"
)

// ObserveFetch records ev in the fetch log. A failed write is logged and
// otherwise ignored; the log never fails the request it describes.
func (s *Store) ObserveFetch(ctx context.Context, ev site.FetchEvent) {
	rec := FetchRecord{
		Website:   ev.Site,
		Operation: string(ev.Operation),
		URL:       ev.URL,
		ItemCount: ev.Items,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	// The request may have been cancelled; the log entry is still wanted.
	if _, err := s.RecordFetch(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("fetch log write failed", "site", ev.Site, "op", ev.Operation, "error", err)
	}
}

var _ site.FetchObserver = (*Store)(nil)
