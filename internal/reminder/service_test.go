package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/calendar"
)

func at(h, m int) time.Time {
	return time.Date(2026, 10, 19, h, m, 0, 0, time.UTC)
}

func newTestService(t *testing.T, now *time.Time, notify NotifyFunc) (*Service, *calendar.Store) {
	t.Helper()
	store := calendar.NewStore("", time.UTC)
	s := NewService(store, 10*time.Minute, notify, 0)
	s.now = func() time.Time { return *now }
	return s, store
}

func TestCheck_AnnouncesOnce(t *testing.T) {
	now := at(8, 55)
	var got []string
	s, store := newTestService(t, &now, func(_ context.Context, o calendar.Occurrence) error {
		got = append(got, o.Title)
		return nil
	})
	if _, err := store.Create(calendar.Event{Title: "Standup", Start: at(9, 0), End: at(9, 15)}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(calendar.Event{Title: "Lunch", Start: at(12, 0)}); err != nil {
		t.Fatal(err)
	}

	if n := s.Check(context.Background()); n != 1 {
		t.Fatalf("first check = %d, want 1", n)
	}
	if n := s.Check(context.Background()); n != 0 {
		t.Errorf("second check = %d, want 0", n)
	}
	if len(got) != 1 || got[0] != "Standup" {
		t.Errorf("notified = %v", got)
	}
}

func TestCheck_RecurringOccurrences(t *testing.T) {
	now := at(8, 55)
	count := 0
	s, store := newTestService(t, &now, func(context.Context, calendar.Occurrence) error {
		count++
		return nil
	})
	if _, err := store.Create(calendar.Event{Title: "Standup", Start: at(9, 0), End: at(9, 15), Recurrence: "0 9 * * *"}); err != nil {
		t.Fatal(err)
	}

	s.Check(context.Background())
	now = now.Add(24 * time.Hour)
	s.Check(context.Background())
	if count != 2 {
		t.Errorf("notified %d times, want one per day", count)
	}
}

func TestCheck_SkipsStartedAndLogsErrors(t *testing.T) {
	now := at(9, 5)
	s, store := newTestService(t, &now, func(context.Context, calendar.Occurrence) error {
		return errors.New("boom")
	})
	if _, err := store.Create(calendar.Event{Title: "Running", Start: at(9, 0), End: at(10, 0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(calendar.Event{Title: "Next", Start: at(9, 10)}); err != nil {
		t.Fatal(err)
	}
	if n := s.Check(context.Background()); n != 1 {
		t.Errorf("check = %d, want 1", n)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	now := at(8, 0)
	s, _ := newTestService(t, &now, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
}

func TestMessage(t *testing.T) {
	o := calendar.Occurrence{Event: calendar.Event{Title: "Standup", Start: at(9, 0), Location: "Room 4"}}
	if got := Message(o, at(8, 55)); got != "Standup starts in 5 min (09:00) at Room 4" {
		t.Errorf("got %q", got)
	}
	if got := Message(o, at(9, 0)); got != "Standup starts now (09:00) at Room 4" {
		t.Errorf("got %q", got)
	}
}
