package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock returns successive times one minute apart.
func fakeClock() func() time.Time {
	t := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newTestIndex(path string) *Index {
	idx := NewIndex(path)
	idx.now = fakeClock()
	return idx
}

func TestOpened_CreatesAndUpdates(t *testing.T) {
	idx := newTestIndex("")

	first, err := idx.Opened("t1", "Plan trip")
	if err != nil {
		t.Fatal(err)
	}
	again, err := idx.Opened("t1", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Title != "Plan trip" {
		t.Errorf("empty title should keep the old one, got %q", again.Title)
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Error("CreatedAt changed on reopen")
	}
	if !again.UpdatedAt.After(first.UpdatedAt) {
		t.Error("UpdatedAt not bumped")
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d", idx.Len())
	}
}

func TestOpened_RejectsEmptyID(t *testing.T) {
	if _, err := newTestIndex("").Opened("  ", "x"); err == nil {
		t.Error("expected error for empty thread id")
	}
}

func TestList_NewestFirst(t *testing.T) {
	idx := newTestIndex("")
	idx.Opened("a", "A")
	idx.Opened("b", "B")
	idx.Opened("c", "C")
	idx.Opened("a", "")

	got := idx.List()
	want := []string{"a", "c", "b"}
	for i, info := range got {
		if info.ThreadID != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestListValue_WireShape(t *testing.T) {
	idx := newTestIndex("")
	idx.Opened("t1", "Hello")

	arr, ok := idx.ListValue().AsArray()
	if !ok || len(arr) != 1 {
		t.Fatalf("ListValue = %v", idx.ListValue())
	}
	obj, _ := arr[0].AsObject()
	if obj.StringOr("threadId", "") != "t1" || obj.StringOr("title", "") != "Hello" {
		t.Errorf("entry = %v", obj)
	}
	if _, ok := obj.Number("updatedAt"); !ok {
		t.Error("missing updatedAt")
	}
}

func TestRemove(t *testing.T) {
	idx := newTestIndex("")
	idx.Opened("t1", "x")
	if !idx.Remove("t1") {
		t.Error("Remove known = false")
	}
	if idx.Remove("t1") {
		t.Error("Remove unknown = true")
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "index.jsonl")
	idx := newTestIndex(path)
	idx.Opened("t1", "First")
	idx.Opened("t2", "Second")

	reloaded := NewIndex(path)
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded Len = %d", reloaded.Len())
	}
	info, ok := reloaded.Get("t2")
	if !ok || info.Title != "Second" {
		t.Errorf("t2 = %+v", info)
	}
	if got := reloaded.List(); got[0].ThreadID != "t2" {
		t.Errorf("newest = %s", got[0].ThreadID)
	}
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")
	content := `{"_type":"session","threadId":"ok","title":"Good","createdAt":"2026-10-17T09:00:00Z","updatedAt":"2026-10-17T09:05:00Z"}
not json
{"_type":"other","threadId":"skip"}

{"_type":"session","threadId":""}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(path)
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}
	info, _ := idx.Get("ok")
	if !info.UpdatedAt.Equal(time.Date(2026, 10, 17, 9, 5, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", info.UpdatedAt)
	}
}
