// Package session keeps the list of conversation threads the embedded client
// has opened. Only metadata is kept; conversation content stays in the client.
//
// When a path is configured the index is mirrored to a JSONL file, one
// session per line:
//
//	{"_type":"session","threadId":"t1","title":"Plan trip","createdAt":"…","updatedAt":"…"}
package session

import (
	"bufio"
	"bytes"
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

	"github.com/crystaldolphin/agentbridge/internal/value"
)

// Info describes one thread.
type Info struct {
	ThreadID  string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToValue renders the session:list:response entry for i.
func (i Info) ToValue() value.Value {
	return value.ObjectOf(value.Object{
		"threadId":  value.String(i.ThreadID),
		"title":     value.String(i.Title),
		"createdAt": value.Int(i.CreatedAt.UnixMilli()),
		"updatedAt": value.Int(i.UpdatedAt.UnixMilli()),
	})
}

type wireInfo struct {
	Type      string `json:"_type"`
	ThreadID  string `json:"threadId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Index is the in-memory session list. Safe for concurrent use.
type Index struct {
	path string
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]Info
}

// NewIndex creates an index. An empty path keeps it in memory only.
// A missing file starts empty; malformed lines are skipped.
func NewIndex(path string) *Index {
	idx := &Index{path: path, now: time.Now, sessions: make(map[string]Info)}
	if path != "" {
		if err := idx.load(); err != nil {
			slog.Warn("session index: load failed, starting empty", "path", path, "err", err)
		}
	}
	return idx
}

// Opened records that the client opened threadID. A new thread is created;
// an existing one has its updated time bumped and, when title is non-empty,
// its title replaced.
func (x *Index) Opened(threadID, title string) (Info, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return Info{}, fmt.Errorf("threadId must not be empty")
	}
	now := x.now()

	x.mu.Lock()
	defer x.mu.Unlock()
	info, ok := x.sessions[threadID]
	if !ok {
		info = Info{ThreadID: threadID, CreatedAt: now}
	}
	if title != "" {
		info.Title = title
	}
	info.UpdatedAt = now
	x.sessions[threadID] = info
	x.saveLocked()
	return info, nil
}

// Get returns the session for threadID.
func (x *Index) Get(threadID string) (Info, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	info, ok := x.sessions[threadID]
	return info, ok
}

// Remove forgets threadID. It reports whether the thread was known.
func (x *Index) Remove(threadID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.sessions[threadID]; !ok {
		return false
	}
	delete(x.sessions, threadID)
	x.saveLocked()
	return true
}

// Len returns the number of known sessions.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.sessions)
}

// List returns every session, most recently updated first.
func (x *Index) List() []Info {
	x.mu.Lock()
	out := make([]Info, 0, len(x.sessions))
	for _, info := range x.sessions {
		out = append(out, info)
	}
	x.mu.Unlock()
	sortNewestFirst(out)
	return out
}

// ListValue renders List as the sessions array of session:list:response.
func (x *Index) ListValue() value.Value {
	list := x.List()
	items := make([]value.Value, len(list))
	for i, info := range list {
		items[i] = info.ToValue()
	}
	return value.Array(items...)
}

func sortNewestFirst(s []Info) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].ThreadID < s[j].ThreadID
	})
}

func (x *Index) load() error {
	f, err := os.Open(x.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var w wireInfo
		if err := json.Unmarshal(line, &w); err != nil || w.Type != "session" || w.ThreadID == "" {
			slog.Warn("skipping malformed session line", "path", x.path, "err", err)
			continue
		}
		info := Info{ThreadID: w.ThreadID, Title: w.Title}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, w.CreatedAt)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, w.UpdatedAt)
		if info.UpdatedAt.IsZero() {
			info.UpdatedAt = info.CreatedAt
		}
		x.sessions[info.ThreadID] = info
	}
	return scanner.Err()
}

func (x *Index) saveLocked() {
	if x.path == "" {
		return
	}
	list := make([]Info, 0, len(x.sessions))
	for _, info := range x.sessions {
		list = append(list, info)
	}
	sortNewestFirst(list)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, info := range list {
		w := wireInfo{
			Type:      "session",
			ThreadID:  info.ThreadID,
			Title:     info.Title,
			CreatedAt: info.CreatedAt.UTC().Format(time.RFC3339Nano),
			UpdatedAt: info.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := enc.Encode(w); err != nil {
			slog.Error("session index: encode failed", "threadId", info.ThreadID, "err", err)
			return
		}
	}
	if err := os.MkdirAll(filepath.Dir(x.path), 0o755); err != nil {
		slog.Error("session index: mkdir failed", "err", err)
		return
	}
	if err := os.WriteFile(x.path, buf.Bytes(), 0o600); err != nil {
		slog.Error("session index: write failed", "path", x.path, "err", err)
	}
}
