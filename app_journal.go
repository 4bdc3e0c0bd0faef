package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dictakey/internal/journal"
	"dictakey/internal/session"
	"dictakey/internal/workerutil"
)

const (
	journalRetention     = 30 * 24 * time.Hour
	journalPruneInterval = time.Hour
)

// journalSink records every published session event.
func journalSink(j *journal.Journal) session.Sink {
	return session.SinkFunc(func(ctx context.Context, ev session.Event) error {
		_, err := j.Record(ctx, journalEntry(ev))
		return err
	})
}

func journalEntry(ev session.Event) journal.Entry {
	return journal.Entry{
		SessionID: ev.SessionID,
		Key:       ev.Key,
		Type:      string(ev.Type),
		At:        ev.At,
		ElapsedMS: ev.ElapsedMS,
	}
}

// startJournalPrune drops entries older than journalRetention at startup and
// then hourly until ctx is cancelled.
func (a *App) startJournalPrune(ctx context.Context, j *journal.Journal) {
	workerutil.RunWithPanicRecovery(ctx, "journal-prune", &a.bgWG, func(ctx context.Context) {
		pruneJournal(ctx, j, time.Now())

		ticker := time.NewTicker(journalPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				pruneJournal(ctx, j, now)
			}
		}
	}, workerutil.RecoveryOptions{IsShutdown: a.shuttingDown.Load})
}

func pruneJournal(ctx context.Context, j *journal.Journal, now time.Time) {
	removed, err := j.Prune(ctx, now.Add(-journalRetention))
	if err != nil {
		if errors.Is(err, journal.ErrClosed) || ctx.Err() != nil {
			return
		}
		slog.Warn("[journal] prune failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("[journal] pruned old entries", "removed", removed, "retention", journalRetention)
	}
}
