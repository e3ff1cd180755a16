package connector

import (
	"context"

	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/task"
)

// sweepPageSize is the page size of each retention-sweep query. A sweep
// keeps paging until the store reports no further results.
const sweepPageSize = 100

// maybeSweep runs a retention sweep only if cleanupInterval has elapsed
// since the last one. It is invoked opportunistically whenever a dispatch
// pass finds no pending or processing task for a type, so idle periods
// double as GC ticks without a dedicated background goroutine.
func (c *Connector) maybeSweep(ctx context.Context) {
	c.mu.Lock()
	due := c.cfg.Now().Sub(c.lastSweep) >= c.cfg.CleanupInterval
	if due {
		c.lastSweep = c.cfg.Now()
	}
	c.mu.Unlock()
	if !due {
		return
	}
	c.sweep(ctx)
}

// sweep removes every terminal task whose retainUntil has elapsed.
// retainUntil = -1 ("forever") is excluded by the query itself.
func (c *Connector) sweep(ctx context.Context) {
	now := c.cfg.Now().UnixMilli()
	cond := store.And(
		store.Or(
			store.Eq("status", string(task.StatusSuccess)),
			store.Eq("status", string(task.StatusFailed)),
			store.Eq("status", string(task.StatusCancelled)),
		),
		store.Gt("retainUntil", int64(0)),
		store.Lt("retainUntil", now),
	)

	// Collect every expired id first, then remove: removing while paging
	// would shift the offset-based cursor past unvisited records.
	var expired []string
	var cursor store.Cursor
	for {
		q := store.Query{Condition: cond, Sort: store.Sort{Field: "retainUntil", Direction: store.Asc}, Cursor: cursor, PageSize: sweepPageSize}
		results, next, err := c.store.Query(ctx, q)
		if err != nil {
			c.log.Error().Err(err).Msg("retention sweep: query failed")
			return
		}
		for _, t := range results {
			if t.RetainUntil == nil || *t.RetainUntil < 0 || *t.RetainUntil >= now {
				continue
			}
			expired = append(expired, t.ID)
		}
		if next == "" || len(results) == 0 {
			break
		}
		cursor = next
	}
	removed := 0
	for _, id := range expired {
		if err := c.store.Remove(ctx, id); err != nil {
			c.log.Error().Err(err).Str("task_id", id).Msg("retention sweep: remove failed")
			continue
		}
		removed++
	}
	if removed > 0 && c.metrics != nil {
		c.metrics.RetentionRemoved.Add(float64(removed))
	}
}
