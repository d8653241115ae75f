package dependency

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/config"
	"github.com/crystaldolphin/agentbridge/internal/tools"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func TestNew_WiresDefaults(t *testing.T) {
	c, err := New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	want := "search_events,list_events,create_event,update_event,delete_event,show_alert,fetch_page"
	if got := strings.Join(c.Registry().Names(), ","); got != want {
		t.Errorf("tools = %s, want %s", got, want)
	}
	if c.Engine() == nil || c.Server() == nil || c.Sessions() == nil || c.Calendar() == nil {
		t.Error("missing service")
	}
	if c.Generator().Available() {
		t.Error("generation is disabled by default")
	}
}

func TestNew_ToolToggles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Fetch.Enabled = false
	cfg.Tools.Alert.Enabled = false
	cfg.Generation.Enabled = true

	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Registry().Len() != 5 {
		t.Errorf("tools = %v", c.Registry().Names())
	}
	if !c.Generator().Available() {
		t.Error("generation should be available when enabled")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bridge.DuplicatePolicy = "sometimes"
	if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), "duplicatePolicy") {
		t.Errorf("New = %v", err)
	}
}

func TestNew_Reminders(t *testing.T) {
	c, err := New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	if c.Reminders() == nil {
		t.Error("reminders are on by default")
	}

	cfg := testConfig(t)
	cfg.Tools.Calendar.ReminderMinutes = 0
	c, err = New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Reminders() != nil {
		t.Error("reminderMinutes 0 should disable reminders")
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestAnnounceReminder_LogsOutcome(t *testing.T) {
	logs := captureLogs(t)
	presented := make(chan tools.Alert, 1)
	alerts := tools.NewAlertTool(tools.PresenterFunc(func(_ context.Context, a tools.Alert) error {
		presented <- a
		return nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		announceReminder(context.Background(), alerts, "Standup starts in 5 min (09:00)")
	}()
	a := <-presented
	if err := alerts.Dismiss(a.ID); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("announceReminder did not return after dismiss")
	}
	if out := logs.String(); !strings.Contains(out, "Reminder alert answered") || !strings.Contains(out, "dismissed=true") {
		t.Errorf("log = %q", out)
	}
}

func TestAnnounceReminder_LogsFailure(t *testing.T) {
	logs := captureLogs(t)
	alerts := tools.NewAlertTool(tools.PresenterFunc(func(context.Context, tools.Alert) error {
		return context.DeadlineExceeded
	}))
	announceReminder(context.Background(), alerts, "Lunch starts now")
	if out := logs.String(); !strings.Contains(out, "Reminder alert failed") {
		t.Errorf("log = %q", out)
	}
}
