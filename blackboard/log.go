package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// logLine mirrors the original `to_jsonl` record shape: non-string content
// is stringified and capped, so the audit log stays small and diffable.
type logLine struct {
	Type      string         `json:"type"`
	EntryID   string         `json:"entry_id"`
	Topic     string         `json:"topic"`
	Author    string         `json:"author"`
	Stage     string         `json:"stage"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Version   int            `json:"version"`
	Timestamp int64          `json:"timestamp"`
}

// AppendToLog persists every entry currently on the blackboard to a
// newline-delimited JSON file, creating parent directories as needed.
// Entries already flushed by a prior call are re-appended — callers that
// want an append-only audit trail should call this once at run completion.
func (b *Blackboard) AppendToLog(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Operation: "append_to_log", Message: err.Error()}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Error{Operation: "append_to_log", Message: err.Error()}
	}
	defer f.Close()

	b.mu.Lock()
	entries := append([]Entry(nil), b.entries...)
	b.mu.Unlock()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		content := fmt.Sprint(e.Content)
		if s, ok := e.Content.(string); ok {
			content = s
		}
		if len(content) > 500 {
			content = content[:500]
		}
		line := logLine{
			Type:      "blackboard_write",
			EntryID:   e.ID,
			Topic:     e.Topic,
			Author:    e.Author,
			Stage:     e.Stage,
			Content:   content,
			Metadata:  e.Metadata,
			Version:   e.Version,
			Timestamp: e.Timestamp.Unix(),
		}
		if err := enc.Encode(line); err != nil {
			return &Error{Operation: "append_to_log", Message: err.Error()}
		}
	}
	return nil
}
