// Package blackboard implements the shared, append-only, topic-keyed state
// store that protocol stages read from and write to. Entries are immutable;
// a write appends and bumps the topic's version counter. Reads may be
// filtered by a reader's declared scope.
package blackboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reader describes the scope a caller reads the blackboard with. A Reader
// with an empty Scopes list sees everything — scoping is opt-in per agent.
type Reader struct {
	Name   string
	Scopes []string
}

// hasAll reports whether the reader declares the "all" scope.
func (r Reader) hasAll() bool {
	for _, s := range r.Scopes {
		if s == "all" {
			return true
		}
	}
	return false
}

func (r Reader) has(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Entry is a single immutable blackboard write.
type Entry struct {
	ID        string
	Topic     string
	Author    string
	Stage     string
	Content   any
	Metadata  map[string]any
	Version   int
	Timestamp time.Time
}

// TokenUsage reads the metadata.token_usage convention every stage executor
// is required to populate.
func (e Entry) TokenUsage() (input, output int) {
	raw, ok := e.Metadata["token_usage"]
	if !ok {
		return 0, 0
	}
	usage, ok := raw.(map[string]int)
	if !ok {
		return 0, 0
	}
	return usage["input_tokens"], usage["output_tokens"]
}

func (e Entry) scope() string {
	if raw, ok := e.Metadata["scope"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return "all"
}

// Watcher is invoked synchronously for every write, in registration order.
// A panicking watcher is isolated — see Blackboard.write.
type Watcher func(Entry)

// Error is a component-tagged blackboard failure. Blackboard operations
// themselves never fail (writes never fail per spec), but callers
// constructing readers/snapshots may surface one of these.
type Error struct {
	Operation string
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("blackboard: %s: %s", e.Operation, e.Message)
}

// Blackboard is a single-writer-per-step, concurrently-readable entry log
// scoped to exactly one protocol run.
type Blackboard struct {
	mu             sync.Mutex
	protocolID     string
	scopingRules   map[string]any
	entries        []Entry
	watchers       []Watcher
	versions       map[string]int
	startTime      time.Time
	watcherFailure func(err any, topic string)
}

// Option configures a Blackboard at construction time.
type Option func(*Blackboard)

// WithWatcherFailureHandler installs a callback invoked when a watcher
// panics, instead of the default (silently swallowed) behavior. Useful for
// routing watcher failures into the ambient logger.
func WithWatcherFailureHandler(fn func(err any, topic string)) Option {
	return func(b *Blackboard) { b.watcherFailure = fn }
}

// New creates a fresh blackboard for one protocol run.
func New(protocolID string, scopingRules map[string]any, opts ...Option) *Blackboard {
	b := &Blackboard{
		protocolID:   protocolID,
		scopingRules: scopingRules,
		versions:     make(map[string]int),
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Write appends an immutable entry, bumps the topic's version counter, and
// synchronously notifies every registered watcher before returning.
func (b *Blackboard) Write(topic string, content any, author, stage string, metadata map[string]any) Entry {
	b.mu.Lock()
	version := b.versions[topic] + 1
	b.versions[topic] = version

	if metadata == nil {
		metadata = map[string]any{}
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Topic:     topic,
		Author:    author,
		Stage:     stage,
		Content:   content,
		Metadata:  metadata,
		Version:   version,
		Timestamp: time.Now(),
	}
	b.entries = append(b.entries, entry)
	watchers := append([]Watcher(nil), b.watchers...)
	b.mu.Unlock()

	for _, w := range watchers {
		b.fireWatcher(w, entry)
	}

	return entry
}

// fireWatcher isolates a panicking watcher so the write still completes and
// sibling watchers still fire (spec.md §4.1 failure semantics).
func (b *Blackboard) fireWatcher(w Watcher, entry Entry) {
	defer func() {
		if r := recover(); r != nil && b.watcherFailure != nil {
			b.watcherFailure(r, entry.Topic)
		}
	}()
	w(entry)
}

// Read returns entries for a topic in append order, filtered by the
// reader's scope when one is supplied.
func (b *Blackboard) Read(topic string, reader *Reader) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Entry
	for _, e := range b.entries {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	if reader == nil {
		return out
	}
	return filterByScope(out, *reader)
}

// ReadLatest returns the most recent entry for a topic, or nil.
func (b *Blackboard) ReadLatest(topic string, reader *Reader) *Entry {
	entries := b.Read(topic, reader)
	if len(entries) == 0 {
		return nil
	}
	e := entries[len(entries)-1]
	return &e
}

func filterByScope(entries []Entry, reader Reader) []Entry {
	if len(reader.Scopes) == 0 {
		return entries
	}
	if reader.hasAll() {
		return entries
	}
	var filtered []Entry
	for _, e := range entries {
		scope := e.scope()
		if scope == "all" || reader.has(scope) {
			filtered = append(filtered, e)
		} else if e.Author == "system" {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// OnWrite registers a watcher fired for every subsequent write.
func (b *Blackboard) OnWrite(w Watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, w)
}

// HasTopic reports whether any entry exists for the topic.
func (b *Blackboard) HasTopic(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.Topic == topic {
			return true
		}
	}
	return false
}

// Topics returns the set of distinct topics written so far.
func (b *Blackboard) Topics() map[string]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]struct{})
	for _, e := range b.entries {
		out[e.Topic] = struct{}{}
	}
	return out
}

// StagesCompleted returns the set of stage names that have at least one
// write — this is what trigger.After and friends scan.
func (b *Blackboard) StagesCompleted() map[string]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]struct{})
	for _, e := range b.entries {
		out[e.Stage] = struct{}{}
	}
	return out
}

// ConflictPair is two same-topic-same-stage entries from different authors
// whose content differs.
type ConflictPair struct {
	A, B Entry
}

// Conflicts detects 2+ agents writing the same topic+stage with differing
// content, for deadlock/disagreement detection. Returns nil if no pair
// qualifies.
func (b *Blackboard) Conflicts(topic string) []ConflictPair {
	b.mu.Lock()
	entries := append([]Entry(nil), b.entries...)
	b.mu.Unlock()

	byStage := make(map[string][]Entry)
	for _, e := range entries {
		if e.Topic == topic {
			byStage[e.Stage] = append(byStage[e.Stage], e)
		}
	}

	var pairs []ConflictPair
	for _, group := range byStage {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b2 := group[i], group[j]
				if a.Author != b2.Author && fmt.Sprint(a.Content) != fmt.Sprint(b2.Content) {
					pairs = append(pairs, ConflictPair{A: a, B: b2})
				}
			}
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return pairs
}

// ResourceSignals aggregates token usage and wall-clock elapsed, for
// telemetry.
type ResourceSignals struct {
	TotalInputTokens  int
	TotalOutputTokens int
	ElapsedSeconds    float64
	EntryCount        int
}

func (b *Blackboard) ResourceSignals() ResourceSignals {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sig ResourceSignals
	for _, e := range b.entries {
		in, out := e.TokenUsage()
		sig.TotalInputTokens += in
		sig.TotalOutputTokens += out
	}
	sig.ElapsedSeconds = time.Since(b.startTime).Seconds()
	sig.EntryCount = len(b.entries)
	return sig
}

// Snapshot is a serializable dump of blackboard state for audit. It is safe
// to JSON-marshal.
type Snapshot struct {
	ProtocolID      string          `json:"protocol_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Entries         []Entry         `json:"entries"`
	ResourceSignals ResourceSignals `json:"resource_signals"`
}

// Snapshot returns a deep-enough copy of current state. Because entries are
// never mutated or removed, a snapshot taken at t1 is always a prefix of one
// taken at t2 >= t1 for the same blackboard.
func (b *Blackboard) Snapshot() Snapshot {
	b.mu.Lock()
	entries := append([]Entry(nil), b.entries...)
	b.mu.Unlock()

	return Snapshot{
		ProtocolID:      b.protocolID,
		Timestamp:       time.Now(),
		Entries:         entries,
		ResourceSignals: b.ResourceSignals(),
	}
}

// ProtocolID returns the protocol this blackboard belongs to.
func (b *Blackboard) ProtocolID() string { return b.protocolID }
