// Package calendar is the reference event store behind the calendar tools.
//
// When a path is configured the store persists as JSON:
//
//	{ "version": 1, "events": [ { "id":"…", "title":"…",
//	    "start":"2026-10-19T09:00:00Z", "end":"2026-10-19T09:15:00Z",
//	    "recurrence":"0 9 * * 1-5", "createdAtMs":…, "updatedAtMs":… } ] }
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
)

// ErrNotFound is returned for unknown event ids.
var ErrNotFound = errors.New("event not found")

// maxOccurrences bounds recurrence expansion for a single event.
const maxOccurrences = 500

var recurrenceParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// Event is a stored calendar entry. Recurrence, when set, is a five-field
// cron expression (or @daily style descriptor) giving further start times.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Notes       string    `json:"notes,omitempty"`
	Location    string    `json:"location,omitempty"`
	Recurrence  string    `json:"recurrence,omitempty"`
	CreatedAtMs int64     `json:"createdAtMs"`
	UpdatedAtMs int64     `json:"updatedAtMs"`
}

// Occurrence is one concrete instance of an event.
type Occurrence struct {
	Event
	Recurring bool
}

// Patch lists fields to change in Update; nil leaves a field alone.
type Patch struct {
	Title      *string
	Start      *time.Time
	End        *time.Time
	Notes      *string
	Location   *string
	Recurrence *string
}

type eventFile struct {
	Version int     `json:"version"`
	Events  []Event `json:"events"`
}

// Store holds events in memory, optionally mirrored to a JSON file.
// Safe for concurrent use: tool invocations run in parallel.
type Store struct {
	path string
	loc  *time.Location

	mu     sync.Mutex
	events map[string]Event
}

// NewStore creates a store. An empty path keeps events in memory only; a
// missing or unreadable file starts empty.
func NewStore(path string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	s := &Store{path: path, loc: loc, events: make(map[string]Event)}
	if path != "" {
		if err := s.load(); err != nil {
			slog.Warn("calendar: load failed, starting empty", "path", path, "err", err)
		}
	}
	return s
}

// Location is the zone used for dates without an offset.
func (s *Store) Location() *time.Location { return s.loc }

// ParseDate accepts ISO 8601 and the other common layouts dateparse knows.
// Dates without an offset are read in the store's location.
func (s *Store) ParseDate(str string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(str), s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (use ISO 8601, e.g. 2026-10-19T09:00:00)", str)
	}
	return t, nil
}

func validate(e Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if e.End.Before(e.Start) {
		return fmt.Errorf("end %s is before start %s", e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
	}
	if e.Recurrence != "" {
		if _, err := recurrenceParser.Parse(e.Recurrence); err != nil {
			return fmt.Errorf("invalid recurrence %q: %v", e.Recurrence, err)
		}
	}
	return nil
}

// Create stores e with a fresh id. A zero End means one hour after Start.
func (s *Store) Create(e Event) (Event, error) {
	if e.End.IsZero() {
		e.End = e.Start.Add(time.Hour)
	}
	if err := validate(e); err != nil {
		return Event{}, err
	}
	now := time.Now().UnixMilli()
	e.ID = uuid.NewString()[:8]
	e.CreatedAtMs, e.UpdatedAtMs = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
	s.saveLocked()
	return e, nil
}

// Update applies p to the event with the given id.
func (s *Store) Update(id string, p Patch) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Start != nil {
		// Moving the start keeps the duration unless End moves too.
		d := e.End.Sub(e.Start)
		e.Start = *p.Start
		if p.End == nil {
			e.End = e.Start.Add(d)
		}
	}
	if p.End != nil {
		e.End = *p.End
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Recurrence != nil {
		e.Recurrence = *p.Recurrence
	}
	if err := validate(e); err != nil {
		return Event{}, err
	}
	e.UpdatedAtMs = time.Now().UnixMilli()
	s.events[id] = e
	s.saveLocked()
	return e, nil
}

// Delete removes the event with the given id.
func (s *Store) Delete(id string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(s.events, id)
	s.saveLocked()
	return e, nil
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	return e, ok
}

// All returns every stored event ordered by start.
func (s *Store) All() []Event {
	s.mu.Lock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return lessEvent(out[i], out[j]) })
	return out
}

// Range returns occurrences overlapping [from, to), expanding recurring
// events, ordered by start.
func (s *Store) Range(from, to time.Time) []Occurrence {
	var out []Occurrence
	for _, e := range s.All() {
		out = append(out, occurrences(e, from, to)...)
	}
	sort.Slice(out, func(i, j int) bool { return lessEvent(out[i].Event, out[j].Event) })
	return out
}

// Search matches query case-insensitively against title, notes and location.
// With a range, recurring events are expanded inside it; without one each
// event is returned once. An empty query matches everything.
func (s *Store) Search(query string, from, to *time.Time) []Occurrence {
	q := strings.ToLower(strings.TrimSpace(query))
	var candidates []Occurrence
	if from != nil || to != nil {
		lo, hi := time.Time{}, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
		if from != nil {
			lo = *from
		}
		if to != nil {
			hi = *to
		}
		candidates = s.Range(lo, hi)
	} else {
		for _, e := range s.All() {
			candidates = append(candidates, Occurrence{Event: e, Recurring: e.Recurrence != ""})
		}
	}

	out := candidates[:0]
	for _, o := range candidates {
		if q == "" || matches(o.Event, q) {
			out = append(out, o)
		}
	}
	return out
}

func matches(e Event, q string) bool {
	return strings.Contains(strings.ToLower(e.Title), q) ||
		strings.Contains(strings.ToLower(e.Notes), q) ||
		strings.Contains(strings.ToLower(e.Location), q)
}

func lessEvent(a, b Event) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return a.ID < b.ID
}

func occurrences(e Event, from, to time.Time) []Occurrence {
	overlaps := func(start, end time.Time) bool {
		return start.Before(to) && (end.After(from) || (end.Equal(start) && !start.Before(from)))
	}
	if e.Recurrence == "" {
		if overlaps(e.Start, e.End) {
			return []Occurrence{{Event: e}}
		}
		return nil
	}

	sched, err := recurrenceParser.Parse(e.Recurrence)
	if err != nil {
		return nil
	}
	dur := e.End.Sub(e.Start)
	loc := e.Start.Location()

	var out []Occurrence
	if overlaps(e.Start, e.End) {
		out = append(out, Occurrence{Event: e, Recurring: true})
	}
	// Later occurrences come from the schedule. Start the cursor just before
	// the window so long-running series are not walked from the beginning.
	cursor := e.Start
	if lower := from.Add(-dur).Add(-time.Second); lower.After(cursor) {
		cursor = lower
	}
	for len(out) < maxOccurrences {
		start := sched.Next(cursor.In(loc))
		if start.IsZero() || !start.Before(to) {
			break
		}
		if overlaps(start, start.Add(dur)) {
			occ := e
			occ.Start, occ.End = start, start.Add(dur)
			out = append(out, Occurrence{Event: occ, Recurring: true})
		}
		cursor = start
	}
	return out
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var f eventFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	for _, e := range f.Events {
		s.events[e.ID] = e
	}
	return nil
}

func (s *Store) saveLocked() {
	if s.path == "" {
		return
	}
	f := eventFile{Version: 1, Events: make([]Event, 0, len(s.events))}
	for _, e := range s.events {
		f.Events = append(f.Events, e)
	}
	sort.Slice(f.Events, func(i, j int) bool { return lessEvent(f.Events[i], f.Events[j]) })

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		slog.Error("calendar: marshal failed", "err", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Error("calendar: mkdir failed", "err", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		slog.Error("calendar: save failed", "path", s.path, "err", err)
	}
}
