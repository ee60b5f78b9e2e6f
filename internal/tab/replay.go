package tab

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// replayStep advances the replay cursor by one entry and substitutes the
// Metric Store wholesale from the stored snapshot: the reader never
// re-derives, it only swaps in recorded values.
func (r *Runtime) replayStep(ctx context.Context) {
	r.mu.Lock()
	reader := r.cfg.Reader
	cursor := r.replayCursor
	store := r.store
	r.mu.Unlock()
	if reader == nil {
		return
	}

	entry, err := reader.NextAfter(ctx, cursor)
	if err != nil {
		r.log.Warn("replay NextAfter failed", zap.Error(err))
		return
	}
	if entry == nil {
		return
	}

	store.Restore(entry.Payload.Metrics)

	r.mu.Lock()
	r.replayCursor = entry.ID
	r.prevSample = &entry.Payload.Raw
	r.mu.Unlock()
}

// ReplayPreviousInterval decrements the cursor by two before a forced
// advance, since NextAfter then advances by one net position backwards.
func (r *Runtime) ReplayPreviousInterval() {
	r.mu.Lock()
	if r.replayCursor >= 2 {
		r.replayCursor -= 2
	} else {
		r.replayCursor = 0
	}
	r.mu.Unlock()
	r.ForceRefresh()
}

// ReplaySeekToTimestamp repositions the replay cursor so the next
// ForceRefresh lands on ts, or on the latest entry before ts when no entry
// has exactly that timestamp.
func (r *Runtime) ReplaySeekToTimestamp(ctx context.Context, ts time.Time) (time.Time, bool, error) {
	r.mu.Lock()
	reader := r.cfg.Reader
	r.mu.Unlock()
	if reader == nil {
		return time.Time{}, false, nil
	}
	id, actual, ok, err := reader.SeekToTimestamp(ctx, ts)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	r.mu.Lock()
	r.replayCursor = id
	r.mu.Unlock()
	return actual, true, nil
}

// ReplayBounds reports the replay file's id/timestamp range for the UI
// contract's scrub bar.
func (r *Runtime) ReplayBounds(ctx context.Context) (minID, maxID int64, minTS, maxTS time.Time, err error) {
	r.mu.Lock()
	reader := r.cfg.Reader
	r.mu.Unlock()
	if reader == nil {
		return 0, 0, time.Time{}, time.Time{}, nil
	}
	return reader.Bounds(ctx)
}
