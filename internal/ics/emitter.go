// Package ics renders reconciled assignments into an iCalendar document with
// stable per-assignment UIDs, so re-importing replaces events instead of
// duplicating them.
package ics

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"duesync/internal/dedup"
	"duesync/internal/logging"
)

const prodID = "-//duesync//coursework sync//EN"

// eventDuration is the display length of a due-date event; calendars render
// zero-length events poorly.
const eventDuration = 30 * time.Minute

// Emitter builds and writes the calendar document.
type Emitter struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewEmitter returns an Emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Emitter{logger: logger, now: time.Now}
}

// Build renders one VEVENT per outcome, carrying the DedupRecord UID as the
// event UID and one display alarm per reminder offset. Events are ordered by
// due time then UID so repeated runs serialize identically. A duplicate UID is
// a programming error upstream and aborts the build.
func (e *Emitter) Build(outcomes []dedup.Outcome, offsets []time.Duration) (*ical.Calendar, error) {
	sorted := make([]dedup.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Assignment.DueAt.Equal(sorted[j].Assignment.DueAt) {
			return sorted[i].Assignment.DueAt.Before(sorted[j].Assignment.DueAt)
		}
		return sorted[i].Record.CalendarUID < sorted[j].Record.CalendarUID
	})

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetCalscale("GREGORIAN")

	seen := make(map[string]bool, len(sorted))
	stamp := e.now().UTC()
	for _, o := range sorted {
		uid := o.Record.CalendarUID
		if seen[uid] {
			return nil, fmt.Errorf("emit: duplicate event UID %s", uid)
		}
		seen[uid] = true

		a := o.Assignment
		event := cal.AddEvent(uid)
		event.SetDtStampTime(stamp)
		event.SetStartAt(a.DueAt)
		event.SetEndAt(a.DueAt.Add(eventDuration))
		event.SetSummary(fmt.Sprintf("%s: %s", a.Course, a.Title))
		if a.URL != "" {
			event.SetURL(a.URL)
			event.SetDescription(fmt.Sprintf("Due %s\n%s", a.DueAt.Format("Mon Jan 2 15:04 MST"), a.URL))
		} else {
			event.SetDescription(fmt.Sprintf("Due %s", a.DueAt.Format("Mon Jan 2 15:04 MST")))
		}

		for _, offset := range offsets {
			alarm := event.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(isoDuration(-offset))
			alarm.SetProperty(ical.ComponentPropertyDescription, fmt.Sprintf("%s: %s due soon", a.Course, a.Title))
		}
	}
	return cal, nil
}

// WriteFile serializes the calendar in one pass and overwrites path. Cross-run
// identity lives in the dedup store, not in this file.
func (e *Emitter) WriteFile(path string, cal *ical.Calendar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(cal.Serialize()), 0o644); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	e.logger.Info("calendar written", "path", path, "events", len(cal.Events()))
	return nil
}

// isoDuration formats a duration as an RFC 5545 trigger value, e.g.
// -PT30M, -PT1H, -P1D, -P1DT12H.
func isoDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Round(time.Minute)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute

	out := sign + "P"
	if days > 0 {
		out += fmt.Sprintf("%dD", days)
	}
	if hours > 0 || minutes > 0 || days == 0 {
		out += "T"
		if hours > 0 {
			out += fmt.Sprintf("%dH", hours)
		}
		if minutes > 0 || (hours == 0 && days == 0) {
			out += fmt.Sprintf("%dM", minutes)
		}
	}
	return out
}
