package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// raiseAlert starts show_alert in the background and waits until it is pending.
func raiseAlert(t *testing.T, options ...string) (*tools.AlertTool, <-chan map[string]any) {
	t.Helper()
	presented := make(chan struct{}, 1)
	alerts := tools.NewAlertTool(tools.PresenterFunc(func(context.Context, tools.Alert) error {
		presented <- struct{}{}
		return nil
	}))
	results := make(chan map[string]any, 1)
	go func() {
		res, err := alerts.Execute(context.Background(), value.Object{
			"message": value.String("Delete event?"),
			"options": value.Strings(options),
		})
		if err != nil {
			results <- map[string]any{"error": err.Error()}
			return
		}
		results <- res.(map[string]any)
	}()
	select {
	case <-presented:
	case <-time.After(2 * time.Second):
		t.Fatal("alert never presented")
	}
	return alerts, results
}

func waitResult(t *testing.T, results <-chan map[string]any) map[string]any {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("alert not answered")
		return nil
	}
}

// ─── Console ───────────────────────────────────────────────────────────────

func TestConsole_NoAlerts(t *testing.T) {
	alerts := tools.NewAlertTool(tools.PresenterFunc(func(context.Context, tools.Alert) error { return nil }))
	if got := handleConsoleLine(alerts, "alerts"); got != "No pending alerts." {
		t.Errorf("got %q", got)
	}
	if got := handleConsoleLine(alerts, "   "); got != "" {
		t.Errorf("blank line = %q", got)
	}
	if got := handleConsoleLine(alerts, "help"); !strings.HasPrefix(got, "Commands:") {
		t.Errorf("help = %q", got)
	}
	if got := handleConsoleLine(alerts, "1 OK"); got != "No such alert." {
		t.Errorf("answer without alerts = %q", got)
	}
}

func TestConsole_ListAndAnswerByNumber(t *testing.T) {
	alerts, results := raiseAlert(t, "Delete", "Keep")

	list := handleConsoleLine(alerts, "alerts")
	if !strings.Contains(list, "1. [info] Delete event? (Delete / Keep)") {
		t.Errorf("list = %q", list)
	}
	if got := handleConsoleLine(alerts, "1 2"); got != "Answered: Keep" {
		t.Errorf("answer = %q", got)
	}
	r := waitResult(t, results)
	if r["choice"] != "Keep" || r["dismissed"] != false {
		t.Errorf("result = %v", r)
	}
}

func TestConsole_AnswerByText(t *testing.T) {
	alerts, results := raiseAlert(t, "Delete", "Keep")

	if got := handleConsoleLine(alerts, "1 Maybe"); got == "Answered: Maybe" {
		t.Error("unknown option should be rejected")
	}
	if got := handleConsoleLine(alerts, "1 Delete"); got != "Answered: Delete" {
		t.Errorf("answer = %q", got)
	}
	if r := waitResult(t, results); r["choice"] != "Delete" {
		t.Errorf("result = %v", r)
	}
}

func TestConsole_Dismiss(t *testing.T) {
	alerts, results := raiseAlert(t, "OK")

	if got := handleConsoleLine(alerts, "dismiss 7"); got != "No such alert." {
		t.Errorf("dismiss unknown = %q", got)
	}
	if got := handleConsoleLine(alerts, "dismiss 1"); got != "Dismissed." {
		t.Errorf("dismiss = %q", got)
	}
	if r := waitResult(t, results); r["dismissed"] != true {
		t.Errorf("result = %v", r)
	}
}
