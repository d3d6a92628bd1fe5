package events

import (
	"context"
	"time"

	"signalrelay/internal/logger"
	"signalrelay/internal/store"
)

// Counter is the slice of metrics the journal reports to.
type Counter interface {
	Event(kind string)
}

// Journal persists events. Write failures are logged and never returned so
// journaling cannot fail the operation that produced the event.
type Journal struct {
	repo    store.EventRepository
	counter Counter
	now     func() time.Time
}

func NewJournal(repo store.EventRepository, counter Counter) *Journal {
	return &Journal{repo: repo, counter: counter, now: time.Now}
}

func (j *Journal) Record(ctx context.Context, evt Event) {
	if j == nil || evt == nil {
		return
	}
	if j.counter != nil {
		j.counter.Event(string(evt.Kind()))
	}
	if j.repo == nil {
		return
	}
	rec, err := Encode(evt, j.now())
	if err != nil {
		logger.Warnf("journal: %v", err)
		return
	}
	if err := j.repo.Append(ctx, rec); err != nil {
		logger.Warnf("journal: append %s subject=%s failed: %v", rec.Kind, rec.SubjectID, err)
	}
}

// History returns the decoded events for a subject, oldest first. Rows whose
// kind is no longer known are skipped.
func (j *Journal) History(ctx context.Context, subjectID string, limit int) ([]Record, error) {
	rows, err := j.repo.List(ctx, subjectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := Decode(row)
		if err != nil {
			logger.Debugf("journal: skip row %s: %v", row.EventID, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
