// Package reminder periodically checks the calendar and announces events
// that are about to start.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/calendar"
)

// NotifyFunc is called once per upcoming occurrence.
type NotifyFunc func(ctx context.Context, o calendar.Occurrence) error

// Service runs a periodic check of the calendar store.
type Service struct {
	store    *calendar.Store
	lead     time.Duration
	interval time.Duration
	notify   NotifyFunc
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time // occurrence key -> start
}

// NewService creates a reminder service announcing occurrences that start
// within lead. interval defaults to 30 seconds if zero.
func NewService(store *calendar.Store, lead time.Duration, notify NotifyFunc, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		store:    store,
		lead:     lead,
		interval: interval,
		notify:   notify,
		now:      time.Now,
		sent:     make(map[string]time.Time),
	}
}

// Start runs the reminder loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("reminder: started", "lead", s.lead, "interval", s.interval)
	s.Check(ctx)
	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			slog.Info("reminder: stopped")
			return ctx.Err()
		}
	}
}

// Check announces every occurrence starting in [now, now+lead) that has not
// been announced yet and returns how many it announced.
func (s *Service) Check(ctx context.Context) int {
	now := s.now()
	upcoming := s.store.Range(now, now.Add(s.lead))

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, start := range s.sent {
		if start.Before(now) {
			delete(s.sent, key)
		}
	}

	n := 0
	for _, o := range upcoming {
		if o.Start.Before(now) {
			continue
		}
		key := fmt.Sprintf("%s@%d", o.ID, o.Start.Unix())
		if _, done := s.sent[key]; done {
			continue
		}
		s.sent[key] = o.Start
		n++
		if s.notify == nil {
			continue
		}
		if err := s.notify(ctx, o); err != nil {
			slog.Error("reminder: notify failed", "event", o.ID, "err", err)
		}
	}
	return n
}

// Message renders the reminder text for o relative to now.
func Message(o calendar.Occurrence, now time.Time) string {
	mins := int(o.Start.Sub(now).Round(time.Minute) / time.Minute)
	when := fmt.Sprintf("in %d min", mins)
	if mins <= 0 {
		when = "now"
	}
	msg := fmt.Sprintf("%s starts %s (%s)", o.Title, when, o.Start.Format("15:04"))
	if o.Location != "" {
		msg += " at " + o.Location
	}
	return msg
}
