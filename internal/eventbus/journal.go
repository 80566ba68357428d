package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/infinitech/infinitask/pkg/storage"
)

const journalDateLayout = "2006-01-02"

// Journal keeps every bus event in one NDJSON file per calendar day in loc,
// so overdue transitions and failed reports can be reviewed after the fact.
type Journal struct {
	store storage.Storage
	loc   *time.Location
	mu    sync.Mutex
}

func NewJournal(s storage.Storage, loc *time.Location) *Journal {
	if loc == nil {
		loc = time.Local
	}
	return &Journal{store: s, loc: loc}
}

func (j *Journal) path(day time.Time) string {
	return "events/" + day.In(j.loc).Format(journalDateLayout) + ".ndjson"
}

// Append adds e to the file of the day it was created.
func (j *Journal) Append(ctx context.Context, e *Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	p := j.path(e.CreatedAt)
	data, err := j.store.Read(ctx, p)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	data = append(data, line...)
	data = append(data, '\n')
	return j.store.Write(ctx, p, data)
}

// Read returns the events of day, oldest first. Unparsable lines are skipped.
func (j *Journal) Read(ctx context.Context, day time.Time) ([]*Event, error) {
	data, err := j.store.Read(ctx, j.path(day))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []*Event{}, nil
		}
		return nil, err
	}

	events := []*Event{}
	for line := range bytes.Lines(data) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			slog.WarnContext(ctx, "skipping malformed journal line", "day", day.In(j.loc).Format(journalDateLayout), "error", err)
			continue
		}
		events = append(events, &e)
	}
	return events, nil
}

// Start records events from ch until ctx is done or ch is closed. The caller
// owns the subscription, so events published before Start runs are kept.
func (j *Journal) Start(ctx context.Context, ch <-chan *Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := j.Append(ctx, e); err != nil {
				slog.WarnContext(ctx, "failed to journal event", "event_id", e.ID, "type", e.Type, "error", err)
			}
		}
	}
}
