// Package store implements the relational persistence layer — the
// `agent`, `team`, `pipeline`, `pipelinestep`, `run`, `runstep`, and
// `agentoutput` tables spec.md §6 names. DB holds the dialect-agnostic
// CRUD logic; store/sqlite and store/postgres each just open a
// *sql.DB against their driver and apply the schema, then hand back a
// *DB. Grounded on `pkg/database/client.go` in codeready-toolchain-tarsy
// for the open-then-migrate shape, adapted off Ent onto plain
// database/sql since this schema has no generated ORM.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/run"
)

// Dialect names the two supported backends; placeholder syntax differs
// ("?" for sqlite, "$1..$n" for postgres) so every query is built
// through DB.ph rather than written with a hardcoded placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB is the shared store implementation both backends wrap.
type DB struct {
	sql     *sql.DB
	dialect Dialect
}

// New wraps an already-open, already-migrated connection.
func New(sqlDB *sql.DB, dialect Dialect) *DB {
	return &DB{sql: sqlDB, dialect: dialect}
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.sql.Close() }

// ph renders the nth (1-based) positional placeholder for this dialect.
func (d *DB) ph(n int) string {
	if d.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// AgentRecord is a custom (store-backed) agent, serialized to/from the
// `agent` table.
type AgentRecord struct {
	Key                 string
	Name                string
	SystemPrompt        string
	ModelID             string
	MaxOutputTokens     int
	Temperature         float64
	Tools               []string
	ContextScope        []string
	Categories          []string
	Frameworks          []agentmodel.Framework
	DeliverableTemplate string
	CommunicationStyle  string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ToAgent assembles the full system prompt (frameworks, deliverable
// template, communication style) into an agentmodel.Agent, per
// agentmodel.Assemble's fixed ordering.
func (r AgentRecord) ToAgent() agentmodel.Agent {
	prompt := agentmodel.Assemble(agentmodel.AssembleInput{
		SystemPrompt:        r.SystemPrompt,
		Frameworks:          r.Frameworks,
		DeliverableTemplate: r.DeliverableTemplate,
		CommunicationStyle:  r.CommunicationStyle,
	})
	a := agentmodel.Agent{
		Name:         r.Name,
		SystemPrompt: prompt,
		Tools:        r.Tools,
		ContextScope: r.ContextScope,
		Categories:   r.Categories,
	}
	if r.ModelID != "" {
		a.ModelID = &r.ModelID
	}
	if r.MaxOutputTokens > 0 {
		a.MaxOutputTokens = &r.MaxOutputTokens
	}
	if r.Temperature != 0 {
		a.Temperature = &r.Temperature
	}
	return a
}

// Team is a named, stored roster of agent keys.
type Team struct {
	Key       string
	Name      string
	AgentKeys []string
	CreatedAt time.Time
}

// PipelineStep is one row of a stored pipeline's ordered step list.
type PipelineStep struct {
	Order              int
	ProtocolKey        string
	QuestionTemplate   string
	ThinkingModel      string
	OrchestrationModel string
	Rounds             int
	OutputPassthrough  bool
}

// Pipeline is a named, stored, ordered list of steps.
type Pipeline struct {
	ID        string
	Name      string
	Steps     []PipelineStep
	CreatedAt time.Time
}

// ── schema ───────────────────────────────────────────────────────────

// schemaStatements returns the CREATE TABLE statements for d. Both
// dialects use the same column set; only the timestamp column type
// differs.
func schemaStatements(d Dialect) []string {
	timestampType := "TIMESTAMP"
	if d == DialectPostgres {
		timestampType = "TIMESTAMPTZ"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS agent (
			key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			model_id TEXT,
			max_output_tokens INTEGER,
			temperature REAL,
			tools TEXT,
			context_scope TEXT,
			categories TEXT,
			frameworks TEXT,
			deliverable_template TEXT,
			communication_style TEXT,
			created_at %s,
			updated_at %s
		)`, timestampType, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS team (
			key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			agent_keys TEXT,
			created_at %s
		)`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pipeline (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at %s
		)`, timestampType),
		`CREATE TABLE IF NOT EXISTS pipelinestep (
			pipeline_id TEXT NOT NULL REFERENCES pipeline(id),
			step_order INTEGER NOT NULL,
			protocol_key TEXT NOT NULL,
			question_template TEXT NOT NULL,
			thinking_model TEXT,
			orchestration_model TEXT,
			rounds INTEGER,
			output_passthrough BOOLEAN,
			PRIMARY KEY (pipeline_id, step_order)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS run (
			run_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			protocol_key TEXT,
			pipeline_id TEXT,
			question TEXT NOT NULL,
			agent_keys TEXT,
			status TEXT NOT NULL,
			cost REAL,
			started_at %s,
			completed_at %s
		)`, timestampType, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS runstep (
			run_id TEXT NOT NULL REFERENCES run(run_id),
			step_order INTEGER NOT NULL,
			protocol_key TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at %s,
			completed_at %s,
			PRIMARY KEY (run_id, step_order)
		)`, timestampType, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS agentoutput (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES run(run_id),
			run_step_id INTEGER REFERENCES runstep(step_order),
			agent_key TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			model_id TEXT,
			text TEXT NOT NULL,
			round INTEGER,
			input_tokens INTEGER,
			output_tokens INTEGER,
			cost REAL,
			created_at %s
		)`, timestampType),
	}
}

// ApplySchema creates every table if absent — sqlite's path, since a
// pure-Go single-file database has no separate migration tooling to
// speak of. Postgres uses golang-migrate instead (store/postgres).
func ApplySchema(ctx context.Context, sqlDB *sql.DB, d Dialect) error {
	for _, stmt := range schemaStatements(d) {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return nil
}

// ── run.Store implementation ─────────────────────────────────────────

var _ run.Store = (*DB)(nil)

func (d *DB) CreateRun(ctx context.Context, rec run.Record) error {
	keys, _ := json.Marshal(rec.AgentKeys)
	q := fmt.Sprintf(`INSERT INTO run (run_id, kind, protocol_key, pipeline_id, question, agent_keys, status, started_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8))
	_, err := d.sql.ExecContext(ctx, q, rec.RunID, string(rec.Kind), rec.ProtocolKey, rec.PipelineID, rec.Question, string(keys), string(rec.Status), rec.StartedAt)
	return err
}

func (d *DB) UpdateRunStatus(ctx context.Context, runID string, status run.Status, completedAt *time.Time) error {
	q := fmt.Sprintf(`UPDATE run SET status = %s, completed_at = %s WHERE run_id = %s`, d.ph(1), d.ph(2), d.ph(3))
	_, err := d.sql.ExecContext(ctx, q, string(status), completedAt, runID)
	return err
}

func (d *DB) CreateRunStep(ctx context.Context, step run.StepRecord) error {
	q := fmt.Sprintf(`INSERT INTO runstep (run_id, step_order, protocol_key, status, started_at, completed_at)
		VALUES (%s, %s, %s, %s, %s, %s)`, d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6))
	_, err := d.sql.ExecContext(ctx, q, step.RunID, step.Index, step.ProtocolKey, string(step.Status), step.StartedAt, step.CompletedAt)
	return err
}

func (d *DB) UpdateRunStepStatus(ctx context.Context, runID string, index int, status run.Status, completedAt *time.Time) error {
	q := fmt.Sprintf(`UPDATE runstep SET status = %s, completed_at = %s WHERE run_id = %s AND step_order = %s`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4))
	_, err := d.sql.ExecContext(ctx, q, string(status), completedAt, runID, index)
	return err
}

func (d *DB) SaveAgentOutput(ctx context.Context, out run.OutputRecord) error {
	q := fmt.Sprintf(`INSERT INTO agentoutput (id, run_id, run_step_id, agent_key, agent_name, model_id, text, round, input_tokens, output_tokens, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8), d.ph(9), d.ph(10), d.ph(11))
	_, err := d.sql.ExecContext(ctx, q, uuid.NewString(), out.RunID, out.RunStepID, out.AgentKey, out.AgentName, out.ModelID, out.Text, out.Round, out.InputTokens, out.OutputTokens, time.Now())
	return err
}

func (d *DB) SaveSynthesis(ctx context.Context, runID string, stepIndex *int, text string) error {
	return d.SaveAgentOutput(ctx, run.OutputRecord{RunID: runID, RunStepID: stepIndex, AgentKey: "_synthesis", AgentName: "Synthesis", Text: text})
}

// ListRuns returns every run, most recent first, for GET /api/runs.
func (d *DB) ListRuns(ctx context.Context) ([]run.Record, error) {
	q := `SELECT run_id, kind, protocol_key, pipeline_id, question, agent_keys, status, started_at, completed_at
		FROM run ORDER BY started_at DESC`
	rows, err := d.sql.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []run.Record
	for rows.Next() {
		rec, err := scanRunRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun fetches one run by ID, for GET /api/runs/{id}.
func (d *DB) GetRun(ctx context.Context, runID string) (run.Record, bool, error) {
	q := fmt.Sprintf(`SELECT run_id, kind, protocol_key, pipeline_id, question, agent_keys, status, started_at, completed_at
		FROM run WHERE run_id = %s`, d.ph(1))
	row := d.sql.QueryRowContext(ctx, q, runID)
	rec, err := scanRunRecord(row.Scan)
	if err == sql.ErrNoRows {
		return run.Record{}, false, nil
	}
	if err != nil {
		return run.Record{}, false, err
	}
	return rec, true, nil
}

// ListOutputsForRun returns every persisted agent output for a run, in
// insertion order, for GET /api/runs/{id}.
func (d *DB) ListOutputsForRun(ctx context.Context, runID string) ([]run.OutputRecord, error) {
	q := fmt.Sprintf(`SELECT run_id, run_step_id, agent_key, agent_name, model_id, text, round, input_tokens, output_tokens
		FROM agentoutput WHERE run_id = %s ORDER BY created_at`, d.ph(1))
	rows, err := d.sql.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []run.OutputRecord
	for rows.Next() {
		var o run.OutputRecord
		var modelID sql.NullString
		var stepID sql.NullInt64
		if err := rows.Scan(&o.RunID, &stepID, &o.AgentKey, &o.AgentName, &modelID, &o.Text, &o.Round, &o.InputTokens, &o.OutputTokens); err != nil {
			return nil, err
		}
		o.ModelID = modelID.String
		if stepID.Valid {
			idx := int(stepID.Int64)
			o.RunStepID = &idx
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanRunRecord(scan func(...any) error) (run.Record, error) {
	var rec run.Record
	var protocolKey, pipelineID sql.NullString
	var agentKeys string
	var status string
	var completedAt sql.NullTime

	err := scan(&rec.RunID, &rec.Kind, &protocolKey, &pipelineID, &rec.Question, &agentKeys, &status, &rec.StartedAt, &completedAt)
	if err != nil {
		return run.Record{}, err
	}
	rec.ProtocolKey = protocolKey.String
	rec.PipelineID = pipelineID.String
	rec.Status = run.Status(status)
	_ = json.Unmarshal([]byte(agentKeys), &rec.AgentKeys)
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return rec, nil
}

func (d *DB) GetAgent(ctx context.Context, key string) (agentmodel.Agent, bool, error) {
	rec, ok, err := d.GetAgentRecord(ctx, key)
	if err != nil || !ok {
		return agentmodel.Agent{}, ok, err
	}
	return rec.ToAgent(), true, nil
}

// ── agent CRUD ────────────────────────────────────────────────────────

func (d *DB) CreateAgentRecord(ctx context.Context, rec AgentRecord) error {
	tools, _ := json.Marshal(rec.Tools)
	scope, _ := json.Marshal(rec.ContextScope)
	categories, _ := json.Marshal(rec.Categories)
	frameworks, _ := json.Marshal(rec.Frameworks)
	now := time.Now()
	q := fmt.Sprintf(`INSERT INTO agent (key, name, system_prompt, model_id, max_output_tokens, temperature, tools, context_scope, categories, frameworks, deliverable_template, communication_style, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8), d.ph(9), d.ph(10), d.ph(11), d.ph(12), d.ph(13), d.ph(14))
	_, err := d.sql.ExecContext(ctx, q, rec.Key, rec.Name, rec.SystemPrompt, rec.ModelID, rec.MaxOutputTokens, rec.Temperature,
		string(tools), string(scope), string(categories), string(frameworks), rec.DeliverableTemplate, rec.CommunicationStyle, now, now)
	return err
}

func (d *DB) GetAgentRecord(ctx context.Context, key string) (AgentRecord, bool, error) {
	q := fmt.Sprintf(`SELECT key, name, system_prompt, model_id, max_output_tokens, temperature, tools, context_scope, categories, frameworks, deliverable_template, communication_style, created_at, updated_at
		FROM agent WHERE key = %s`, d.ph(1))
	row := d.sql.QueryRowContext(ctx, q, key)
	rec, err := scanAgentRecord(row.Scan)
	if err == sql.ErrNoRows {
		return AgentRecord{}, false, nil
	}
	if err != nil {
		return AgentRecord{}, false, err
	}
	return rec, true, nil
}

func (d *DB) ListAgentRecords(ctx context.Context) ([]AgentRecord, error) {
	q := `SELECT key, name, system_prompt, model_id, max_output_tokens, temperature, tools, context_scope, categories, frameworks, deliverable_template, communication_style, created_at, updated_at FROM agent ORDER BY key`
	rows, err := d.sql.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentRecord
	for rows.Next() {
		rec, err := scanAgentRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanAgentRecord(scan func(...any) error) (AgentRecord, error) {
	var rec AgentRecord
	var modelID, deliverable, style sql.NullString
	var maxTokens sql.NullInt64
	var temperature sql.NullFloat64
	var tools, scope, categories, frameworks string

	err := scan(&rec.Key, &rec.Name, &rec.SystemPrompt, &modelID, &maxTokens, &temperature,
		&tools, &scope, &categories, &frameworks, &deliverable, &style, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return AgentRecord{}, err
	}

	rec.ModelID = modelID.String
	rec.MaxOutputTokens = int(maxTokens.Int64)
	rec.Temperature = temperature.Float64
	rec.DeliverableTemplate = deliverable.String
	rec.CommunicationStyle = style.String
	_ = json.Unmarshal([]byte(tools), &rec.Tools)
	_ = json.Unmarshal([]byte(scope), &rec.ContextScope)
	_ = json.Unmarshal([]byte(categories), &rec.Categories)
	_ = json.Unmarshal([]byte(frameworks), &rec.Frameworks)
	return rec, nil
}

// ── team CRUD ─────────────────────────────────────────────────────────

func (d *DB) CreateTeam(ctx context.Context, t Team) error {
	keys, _ := json.Marshal(t.AgentKeys)
	q := fmt.Sprintf(`INSERT INTO team (key, name, agent_keys, created_at) VALUES (%s, %s, %s, %s)`, d.ph(1), d.ph(2), d.ph(3), d.ph(4))
	_, err := d.sql.ExecContext(ctx, q, t.Key, t.Name, string(keys), time.Now())
	return err
}

func (d *DB) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT key, name, agent_keys, created_at FROM team ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Team
	for rows.Next() {
		var t Team
		var keys string
		if err := rows.Scan(&t.Key, &t.Name, &keys, &t.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(keys), &t.AgentKeys)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── pipeline CRUD ─────────────────────────────────────────────────────

func (d *DB) CreatePipeline(ctx context.Context, p Pipeline) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := fmt.Sprintf(`INSERT INTO pipeline (id, name, created_at) VALUES (%s, %s, %s)`, d.ph(1), d.ph(2), d.ph(3))
	if _, err := tx.ExecContext(ctx, q, p.ID, p.Name, time.Now()); err != nil {
		return fmt.Errorf("store: create pipeline: %w", err)
	}

	for _, s := range p.Steps {
		sq := fmt.Sprintf(`INSERT INTO pipelinestep (pipeline_id, step_order, protocol_key, question_template, thinking_model, orchestration_model, rounds, output_passthrough)
			VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
			d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8))
		if _, err := tx.ExecContext(ctx, sq, p.ID, s.Order, s.ProtocolKey, s.QuestionTemplate, s.ThinkingModel, s.OrchestrationModel, s.Rounds, s.OutputPassthrough); err != nil {
			return fmt.Errorf("store: create pipeline step %d: %w", s.Order, err)
		}
	}

	return tx.Commit()
}

func (d *DB) GetPipeline(ctx context.Context, id string) (Pipeline, bool, error) {
	var p Pipeline
	p.ID = id
	q := fmt.Sprintf(`SELECT name, created_at FROM pipeline WHERE id = %s`, d.ph(1))
	if err := d.sql.QueryRowContext(ctx, q, id).Scan(&p.Name, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Pipeline{}, false, nil
		}
		return Pipeline{}, false, err
	}

	sq := fmt.Sprintf(`SELECT step_order, protocol_key, question_template, thinking_model, orchestration_model, rounds, output_passthrough
		FROM pipelinestep WHERE pipeline_id = %s ORDER BY step_order`, d.ph(1))
	rows, err := d.sql.QueryContext(ctx, sq, id)
	if err != nil {
		return Pipeline{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var s PipelineStep
		var thinking, orchestration sql.NullString
		var rounds sql.NullInt64
		if err := rows.Scan(&s.Order, &s.ProtocolKey, &s.QuestionTemplate, &thinking, &orchestration, &rounds, &s.OutputPassthrough); err != nil {
			return Pipeline{}, false, err
		}
		s.ThinkingModel, s.OrchestrationModel, s.Rounds = thinking.String, orchestration.String, int(rounds.Int64)
		p.Steps = append(p.Steps, s)
	}
	return p, true, rows.Err()
}
