package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/agentbridge/internal/value"
)

// Alert is one pending show_alert request.
type Alert struct {
	ID       string
	Message  string
	Options  []string
	Severity string
	Created  time.Time
}

// Presenter puts an alert in front of the user. It must not block until the
// user answers; the answer arrives later through Resolve or Dismiss.
type Presenter interface {
	Present(ctx context.Context, a Alert) error
}

// PresenterFunc adapts a function into a Presenter.
type PresenterFunc func(ctx context.Context, a Alert) error

func (f PresenterFunc) Present(ctx context.Context, a Alert) error { return f(ctx, a) }

type alertAnswer struct {
	choice    string
	dismissed bool
}

type pendingAlert struct {
	alert Alert
	done  chan alertAnswer
}

// AlertTool implements show_alert. It has no timeout: the invocation stays
// open until the user picks an option or dismisses the alert.
type AlertTool struct {
	presenter Presenter

	mu      sync.Mutex
	pending map[string]*pendingAlert
}

// NewAlertTool creates the show_alert tool.
func NewAlertTool(p Presenter) *AlertTool {
	return &AlertTool{presenter: p, pending: make(map[string]*pendingAlert)}
}

var alertParams = NewSchema().
	String("message", "Text shown to the user", true).
	Strings("options", "Buttons to offer; defaults to OK", false).
	Enum("severity", "How prominent the alert is", false, "info", "warning", "critical").
	Params()

func (t *AlertTool) Name() string { return "show_alert" }
func (t *AlertTool) Description() string {
	return "Show an alert to the user and wait for them to choose an option."
}
func (t *AlertTool) Params() []Param        { return alertParams }
func (t *AlertTool) Timeout() time.Duration { return 0 }

func (t *AlertTool) Execute(ctx context.Context, args value.Object) (any, error) {
	message, err := RequireString(args, "message")
	if err != nil {
		return nil, err
	}
	options, err := OptionalStrings(args, "options")
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		options = []string{"OK"}
	}
	severity, err := OptionalString(args, "severity")
	if err != nil {
		return nil, err
	}
	if severity == "" {
		severity = "info"
	}

	p := &pendingAlert{
		alert: Alert{
			ID:       uuid.NewString(),
			Message:  message,
			Options:  options,
			Severity: severity,
			Created:  time.Now(),
		},
		done: make(chan alertAnswer, 1),
	}
	t.mu.Lock()
	t.pending[p.alert.ID] = p
	t.mu.Unlock()
	defer t.remove(p.alert.ID)

	if err := t.presenter.Present(ctx, p.alert); err != nil {
		return nil, Failed(err, "could not display alert")
	}

	select {
	case ans := <-p.done:
		return map[string]any{
			"id":        p.alert.ID,
			"choice":    ans.choice,
			"dismissed": ans.dismissed,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve answers a pending alert with choice, which must be one of its
// options.
func (t *AlertTool) Resolve(id, choice string) error {
	t.mu.Lock()
	p, ok := t.pending[id]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending alert %q", id)
	}
	valid := false
	for _, o := range p.alert.Options {
		if o == choice {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("alert %q has no option %q", id, choice)
	}
	return t.answer(p, alertAnswer{choice: choice})
}

// Dismiss closes a pending alert without a choice.
func (t *AlertTool) Dismiss(id string) error {
	t.mu.Lock()
	p, ok := t.pending[id]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending alert %q", id)
	}
	return t.answer(p, alertAnswer{dismissed: true})
}

func (t *AlertTool) answer(p *pendingAlert, ans alertAnswer) error {
	select {
	case p.done <- ans:
		return nil
	default:
		return fmt.Errorf("alert %q already answered", p.alert.ID)
	}
}

// Pending lists open alerts, oldest first.
func (t *AlertTool) Pending() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Alert, 0, len(t.pending))
	for _, p := range t.pending {
		out = append(out, p.alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

func (t *AlertTool) remove(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}
