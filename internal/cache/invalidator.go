package cache

import (
	"context"
	"log/slog"
)

// Invalidator purges cached read results after catalog mutations. All
// operations are best effort: a failed purge is logged and the entries
// are left to expire by TTL.
type Invalidator struct {
	store  Store
	logger *slog.Logger
}

// NewInvalidator creates an Invalidator over the given store.
func NewInvalidator(store Store, logger *slog.Logger) *Invalidator {
	return &Invalidator{store: store, logger: logger}
}

// InvalidateReads purges every derived read section: listings, search
// results and statistics. Called after any mutation since each of them
// can affect any listing.
func (i *Invalidator) InvalidateReads(ctx context.Context) {
	for _, prefix := range ReadPrefixes() {
		if _, err := i.store.DeletePrefix(ctx, prefix); err != nil {
			i.logger.WarnContext(ctx, "cache invalidation failed",
				slog.String("prefix", prefix),
				slog.String("error", err.Error()),
			)
		}
	}
}

// InvalidateCourse purges the cached record for a single course along
// with every derived read section.
func (i *Invalidator) InvalidateCourse(ctx context.Context, id string) {
	if err := i.store.Delete(ctx, CourseKey(id)); err != nil {
		i.logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("key", CourseKey(id)),
			slog.String("error", err.Error()),
		)
	}

	i.InvalidateReads(ctx)
}
