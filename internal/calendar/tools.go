package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

const toolTimeout = 10 * time.Second

// Tools returns the calendar tools backed by s, in the order they are
// advertised.
func Tools(s *Store) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("search_events",
			"Search calendar events by text in the title, notes or location, optionally within a date range.",
			tools.NewSchema().
				String("query", "Text to look for", true).
				String("startDate", "Only events ending after this ISO 8601 date", false).
				String("endDate", "Only events starting before this ISO 8601 date", false).
				Params(),
			toolTimeout, s.searchEvents),
		tools.NewFunc("list_events",
			"List calendar events between two dates, expanding recurring events.",
			tools.NewSchema().
				String("startDate", "Range start, ISO 8601", true).
				String("endDate", "Range end, ISO 8601", true).
				Params(),
			toolTimeout, s.listEvents),
		tools.NewFunc("create_event",
			"Create a calendar event.",
			tools.NewSchema().
				String("title", "Event title", true).
				String("startDate", "Start, ISO 8601", true).
				String("endDate", "End, ISO 8601; defaults to one hour after start", false).
				String("notes", "Free-form notes", false).
				String("location", "Where it happens", false).
				String("recurrence", "Cron expression for repeats, e.g. \"0 9 * * 1-5\"", false).
				Params(),
			toolTimeout, s.createEvent),
		tools.NewFunc("update_event",
			"Change fields of an existing calendar event. Omitted fields are kept.",
			tools.NewSchema().
				String("id", "Event id from search_events or list_events", true).
				String("title", "New title", false).
				String("startDate", "New start, ISO 8601", false).
				String("endDate", "New end, ISO 8601", false).
				String("notes", "New notes", false).
				String("location", "New location", false).
				Params(),
			toolTimeout, s.updateEvent),
		tools.NewFunc("delete_event",
			"Delete a calendar event.",
			tools.NewSchema().
				String("id", "Event id from search_events or list_events", true).
				Params(),
			toolTimeout, s.deleteEvent),
	}
}

func eventValue(o Occurrence) map[string]any {
	m := map[string]any{
		"id":        o.ID,
		"title":     o.Title,
		"startDate": o.Start.Format(time.RFC3339),
		"endDate":   o.End.Format(time.RFC3339),
	}
	if o.Notes != "" {
		m["notes"] = o.Notes
	}
	if o.Location != "" {
		m["location"] = o.Location
	}
	if o.Recurrence != "" {
		m["recurrence"] = o.Recurrence
		m["recurring"] = o.Recurring
	}
	return m
}

func eventList(occ []Occurrence) []any {
	out := make([]any, len(occ))
	for i, o := range occ {
		out[i] = eventValue(o)
	}
	return out
}

func (s *Store) dateArg(args value.Object, key string) (*time.Time, error) {
	raw, err := tools.OptionalString(args, key)
	if err != nil || raw == "" {
		return nil, err
	}
	t, err := s.ParseDate(raw)
	if err != nil {
		return nil, tools.InvalidArgs("%s: %v", key, err)
	}
	return &t, nil
}

func (s *Store) searchEvents(_ context.Context, args value.Object) (any, error) {
	query, err := tools.RequireString(args, "query")
	if err != nil {
		return nil, err
	}
	from, err := s.dateArg(args, "startDate")
	if err != nil {
		return nil, err
	}
	to, err := s.dateArg(args, "endDate")
	if err != nil {
		return nil, err
	}
	found := s.Search(query, from, to)
	return map[string]any{
		"success": true,
		"query":   query,
		"count":   len(found),
		"events":  eventList(found),
	}, nil
}

func (s *Store) listEvents(_ context.Context, args value.Object) (any, error) {
	from, err := s.dateArg(args, "startDate")
	if err != nil {
		return nil, err
	}
	to, err := s.dateArg(args, "endDate")
	if err != nil {
		return nil, err
	}
	if from == nil || to == nil {
		return nil, tools.InvalidArgs("startDate and endDate are both required")
	}
	if to.Before(*from) {
		return nil, tools.InvalidArgs("endDate is before startDate")
	}
	found := s.Range(*from, *to)
	return map[string]any{
		"success":   true,
		"startDate": from.Format(time.RFC3339),
		"endDate":   to.Format(time.RFC3339),
		"count":     len(found),
		"events":    eventList(found),
	}, nil
}

func (s *Store) createEvent(_ context.Context, args value.Object) (any, error) {
	title, err := tools.RequireString(args, "title")
	if err != nil {
		return nil, err
	}
	start, err := s.dateArg(args, "startDate")
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, tools.InvalidArgs("missing required parameter %q", "startDate")
	}
	end, err := s.dateArg(args, "endDate")
	if err != nil {
		return nil, err
	}
	e := Event{Title: title, Start: *start}
	if end != nil {
		e.End = *end
	}
	if e.Notes, err = tools.OptionalString(args, "notes"); err != nil {
		return nil, err
	}
	if e.Location, err = tools.OptionalString(args, "location"); err != nil {
		return nil, err
	}
	if e.Recurrence, err = tools.OptionalString(args, "recurrence"); err != nil {
		return nil, err
	}

	created, err := s.Create(e)
	if err != nil {
		return nil, tools.InvalidArgs("cannot create event: %v", err)
	}
	return map[string]any{"success": true, "event": eventValue(Occurrence{Event: created})}, nil
}

func (s *Store) updateEvent(_ context.Context, args value.Object) (any, error) {
	id, err := tools.RequireString(args, "id")
	if err != nil {
		return nil, err
	}
	var p Patch
	for key, dst := range map[string]**string{"title": &p.Title, "notes": &p.Notes, "location": &p.Location} {
		if v, ok := args[key]; ok && !v.IsNull() {
			str, err := tools.OptionalString(args, key)
			if err != nil {
				return nil, err
			}
			*dst = &str
		}
	}
	if p.Start, err = s.dateArg(args, "startDate"); err != nil {
		return nil, err
	}
	if p.End, err = s.dateArg(args, "endDate"); err != nil {
		return nil, err
	}

	updated, err := s.Update(id, p)
	if errors.Is(err, ErrNotFound) {
		return nil, tools.InvalidArgs("no event with id %q; search for it first to get its id", id)
	}
	if err != nil {
		return nil, tools.InvalidArgs("cannot update event: %v", err)
	}
	return map[string]any{"success": true, "event": eventValue(Occurrence{Event: updated})}, nil
}

func (s *Store) deleteEvent(_ context.Context, args value.Object) (any, error) {
	id, err := tools.RequireString(args, "id")
	if err != nil {
		return nil, err
	}
	deleted, err := s.Delete(id)
	if err != nil {
		return nil, tools.InvalidArgs("no event with id %q; search for it first to get its id", id)
	}
	return map[string]any{"success": true, "deleted": eventValue(Occurrence{Event: deleted})}, nil
}
