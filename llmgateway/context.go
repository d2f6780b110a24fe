package llmgateway

import (
	"context"

	"github.com/agoraflow/agora/event"
)

// REDESIGN FLAG resolution (spec.md §9): the original implementation kept
// the event channel and a "tools disabled" switch in a ContextVar, visible
// to any code running on the same thread regardless of which run it
// belonged to. That doesn't hold under concurrent goroutines sharing a
// process, so both are threaded explicitly as context.Context values,
// scoped to the run that set them.

type ctxKey int

const (
	eventsKey ctxKey = iota
	noToolsKey
	runIDKey
)

// WithEvents returns a context that carries a per-run event sink. Emit is a
// no-op if ctx carries none, so gateway code never needs a nil check.
func WithEvents(ctx context.Context, sink func(event.Event)) context.Context {
	return context.WithValue(ctx, eventsKey, sink)
}

// Emit sends ev to the sink attached to ctx, if any.
func Emit(ctx context.Context, ev event.Event) {
	if sink, ok := ctx.Value(eventsKey).(func(event.Event)); ok && sink != nil {
		sink(ev)
	}
}

// WithRunID attaches the owning run's ID to ctx, for event/trace tagging.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run ID attached to ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithNoTools marks ctx so gateway calls made with it skip the tool-use
// loop entirely, even if the request carries tool specs — set by the run
// controller for a run requested with NoTools.
func WithNoTools(ctx context.Context) context.Context {
	return context.WithValue(ctx, noToolsKey, true)
}

// noTools reports whether ctx disables tool use.
func noTools(ctx context.Context) bool {
	v, _ := ctx.Value(noToolsKey).(bool)
	return v
}
