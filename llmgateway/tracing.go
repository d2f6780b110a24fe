package llmgateway

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedGateway wraps a Gateway with an OTel span per call and an
// append-only JSONL trace record, grounded on `protocols/tracing.py`'s
// per-call trace log in the original source.
type TracedGateway struct {
	Inner  Gateway
	Tracer trace.Tracer

	mu      sync.Mutex
	logPath string
}

// NewTracedGateway wraps inner, writing one JSONL line per call to
// logPath (empty disables file logging; the span is still recorded).
func NewTracedGateway(inner Gateway, tracer trace.Tracer, logPath string) *TracedGateway {
	return &TracedGateway{Inner: inner, Tracer: tracer, logPath: logPath}
}

type traceRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id,omitempty"`
	Model        string    `json:"model,omitempty"`
	ElapsedMs    float64   `json:"elapsed_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Error        string    `json:"error,omitempty"`
}

func (g *TracedGateway) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := g.Tracer.Start(ctx, "llmgateway.complete")
	defer span.End()

	model := "default"
	if req.ModelID != nil {
		model = *req.ModelID
		span.SetAttributes(attribute.String("llm.model_id", model))
	}

	start := time.Now()
	resp, err := g.Inner.Complete(ctx, req)
	elapsed := time.Since(start)

	rec := traceRecord{
		Timestamp:    start,
		RunID:        RunID(ctx),
		Model:        model,
		ElapsedMs:    elapsed.Seconds() * 1000,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		rec.Error = err.Error()
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.InputTokens),
		attribute.Int("llm.output_tokens", resp.OutputTokens),
	)

	g.appendRecord(rec)
	return resp, err
}

func (g *TracedGateway) appendRecord(rec traceRecord) {
	if g.logPath == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := os.OpenFile(g.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = f.Write(line)
}
