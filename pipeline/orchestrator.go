// ABOUTME: Query orchestrator implementing the staged NL-to-SQL state machine.
// ABOUTME: Every query ends in SUCCESS, BLOCKED, or ERROR with a populated audit trace.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/sqlscout/dbexec"
	"github.com/2389-research/sqlscout/llm"
	"github.com/2389-research/sqlscout/safety"
	"github.com/2389-research/sqlscout/schema"
)

// Config wires the orchestrator's collaborators. Graph, Validator, Client,
// and Executor are injected so tests can substitute fakes.
type Config struct {
	Graph          *schema.Graph
	Validator      *safety.Validator
	Client         *llm.BatchClient
	Executor       *dbexec.Adapter
	MaxRetries     int          // correction budget shared by safety and execution failures
	SampleRowCount int          // rows sampled per planned table (0 = 3)
	EventHandler   EventHandler // optional event callback
}

// Orchestrator runs natural-language questions through the full pipeline.
// Safe for concurrent use: all per-query state lives on the stack.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator from the given configuration.
func New(cfg Config) *Orchestrator {
	if cfg.SampleRowCount <= 0 {
		cfg.SampleRowCount = 3
	}
	return &Orchestrator{cfg: cfg}
}

// Graph returns the schema graph the orchestrator was built with.
func (o *Orchestrator) Graph() *schema.Graph { return o.cfg.Graph }

// Response is the caller-facing outcome of one query.
type Response struct {
	QueryID     string      `json:"query_id"`
	Success     bool        `json:"success"`
	Answer      string      `json:"answer"`
	SQLUsed     string      `json:"sql_used,omitempty"`
	RowCount    int         `json:"row_count"`
	Columns     []string    `json:"columns,omitempty"`
	Rows        [][]any     `json:"rows,omitempty"`
	IsMetaQuery bool        `json:"is_meta_query"`
	Warnings    []string    `json:"warnings,omitempty"`
	Trace       *AuditTrace `json:"audit_trace"`
}

// queryState is the mutable per-query working set.
type queryState struct {
	queryID  string
	question string
	resolved string
	sql      string
	result   *dbexec.Result
	retries  int
	warnings []string
	trace    *AuditTrace
}

// Run executes one question to a terminal state. It never returns an error:
// every failure mode is folded into the Response and its trace.
func (o *Orchestrator) Run(ctx context.Context, question string) *Response {
	start := time.Now()
	queryID := uuid.NewString()
	st := &queryState{
		queryID:  queryID,
		question: question,
		trace: &AuditTrace{
			QueryID:  queryID,
			Question: question,
			Actions:  make([]AuditAction, 0, 8),
		},
	}
	st.trace.Record("start", "question received", "", "")
	o.emit(Event{Type: EventQueryStarted, QueryID: st.queryID, Data: map[string]any{"question": question}})

	resp := o.run(ctx, st)

	resp.Trace.TotalTimeMS = time.Since(start).Milliseconds()
	resp.Trace.CorrectionAttempts = st.retries
	switch resp.Trace.FinalStatus {
	case StatusSuccess:
		o.emit(Event{Type: EventQueryCompleted, QueryID: st.queryID})
	case StatusBlocked:
		o.emit(Event{Type: EventQueryBlocked, QueryID: st.queryID, Data: map[string]any{"reason": resp.Answer}})
	default:
		o.emit(Event{Type: EventQueryFailed, QueryID: st.queryID, Data: map[string]any{"reason": resp.Answer}})
	}
	return resp
}

func (o *Orchestrator) run(ctx context.Context, st *queryState) *Response {
	res, err := o.callBatch(ctx, st, "classify_intent", []string{"intent"},
		classifyRequest(st.question, o.cfg.Graph.Summary()))
	if err != nil {
		return o.abortForBatch(st, err)
	}

	intent := Intent(strings.ToUpper(strings.TrimSpace(res.String("intent"))))
	st.resolved = res.String("resolved_query")
	if st.resolved == "" {
		st.resolved = st.question
	}

	switch intent {
	case IntentAmbiguous:
		clarification := res.String("clarification")
		if clarification == "" {
			clarification = "Could you rephrase the question with more detail?"
		}
		st.trace.Record("ambiguity", "clarification needed", clarification, "")
		return o.blocked(st, clarification)
	case IntentUnresolved:
		st.trace.Record("ambiguity", "question not about this database", "", "")
		return o.blocked(st, "I could not relate that question to this database.")
	case IntentMetaQuery:
		return o.runMeta(ctx, st)
	case IntentDataQuery:
		// fall through to the SQL path
	default:
		st.trace.Record("classify_intent", "unrecognized intent", string(intent), "")
		return o.failed(st, "The reasoning backend returned an unrecognized intent.")
	}

	schemaContext := o.cfg.Graph.Describe()
	st.trace.Record("schema_lookup",
		fmt.Sprintf("%d tables, %d foreign keys", len(o.cfg.Graph.Tables()), len(o.cfg.Graph.Edges())), "", "")
	o.emitStage(st, "schema_lookup")

	planRes, err := o.callBatch(ctx, st, "plan_query", []string{"tables"},
		planRequest(st.resolved, schemaContext))
	if err != nil {
		return o.abortForBatch(st, err)
	}
	tables := planRes.StringSlice("tables")
	planText := renderPlan(planRes)
	if len(tables) > 0 {
		schemaContext = o.cfg.Graph.DescribeTables(tables)
	}

	samples := o.sampleData(ctx, st, tables)

	genRes, err := o.callBatch(ctx, st, "generate_sql", []string{"sql"},
		generateRequest(st.resolved, schemaContext, planText, samples, o.cfg.Validator.RowLimitCap()))
	if err != nil {
		return o.abortForBatch(st, err)
	}
	st.sql = cleanSQL(genRes.String("sql"))

	// Joint safety/execution loop. Corrected SQL always re-enters the safety
	// check, and the correction budget is shared across both failure kinds.
	for {
		sres := o.cfg.Validator.Validate(st.sql)
		if !sres.Approved {
			st.trace.Record("safety_check",
				fmt.Sprintf("rejected: %d violations", len(sres.Violations)),
				strings.Join(sres.ViolationStrings(), "\n"), "")
			if jv := sres.JoinViolations(); len(jv) > 0 {
				lines := make([]string, len(jv))
				for i, v := range jv {
					lines[i] = v.Message
				}
				st.trace.Record("fk_violations",
					fmt.Sprintf("%d join conditions not backed by foreign keys", len(jv)),
					strings.Join(lines, "\n"), "")
			}
			o.emitStage(st, "safety_check")
			if st.retries >= o.cfg.MaxRetries {
				return o.blocked(st, "The generated SQL was rejected by the safety rules: "+sres.Violations[0].Message)
			}
			if abort := o.correct(ctx, st, schemaContext, sres.ViolationStrings()); abort != nil {
				return abort
			}
			continue
		}
		st.trace.Record("safety_check", "approved", "", "")
		o.emitStage(st, "safety_check")

		result, xerr := o.cfg.Executor.Query(ctx, st.sql)
		if xerr == nil {
			st.result = result
			st.trace.Record("execute", fmt.Sprintf("%d rows", result.RowCount()), "", "")
			o.emitStage(st, "execute")
			break
		}
		st.trace.Record("execute", "execution failed", xerr.Error(), "")
		o.emitStage(st, "execute")
		if st.retries >= o.cfg.MaxRetries {
			return o.failed(st, "The query could not be executed against the database.")
		}
		if abort := o.correct(ctx, st, schemaContext, []string{"execution error: " + xerr.Error()}); abort != nil {
			return abort
		}
	}

	st.warnings = append(st.warnings, dbexec.CheckResult(st.result)...)
	st.trace.Record("result_check",
		fmt.Sprintf("%d rows, %d warnings", st.result.RowCount(), len(st.warnings)),
		strings.Join(st.warnings, "\n"), "")
	o.emitStage(st, "result_check")

	answer := ""
	synRes, err := o.callBatch(ctx, st, "synthesize_answer", []string{"answer"},
		synthesizeRequest(st.question, st.sql, st.result))
	if err != nil {
		// The data is already in hand; a synthesis failure degrades to a
		// plain summary instead of throwing the result away.
		if st.result.RowCount() == 0 {
			answer = "No rows matched the query."
		} else {
			answer = fmt.Sprintf("The query returned %d rows.", st.result.RowCount())
		}
		st.warnings = append(st.warnings, "answer synthesis unavailable; showing raw results")
	} else {
		answer = synRes.String("answer")
		if answer == "" {
			answer = fmt.Sprintf("The query returned %d rows.", st.result.RowCount())
		}
	}

	return o.succeed(st, answer, false)
}

// runMeta answers a question about the schema itself: no SQL is generated
// or executed.
func (o *Orchestrator) runMeta(ctx context.Context, st *queryState) *Response {
	description := o.cfg.Graph.Describe()
	st.trace.Record("schema_lookup",
		fmt.Sprintf("%d tables, %d foreign keys", len(o.cfg.Graph.Tables()), len(o.cfg.Graph.Edges())), "", "")
	o.emitStage(st, "schema_lookup")

	res, err := o.callBatch(ctx, st, "answer_meta", []string{"answer"},
		metaRequest(st.question, description))
	if err != nil {
		return o.abortForBatch(st, err)
	}
	resp := o.succeed(st, res.String("answer"), true)
	return resp
}

// sampleData fetches a few rows from each planned table for value grounding.
// Sampling failures are recorded but never abort the query.
func (o *Orchestrator) sampleData(ctx context.Context, st *queryState, tables []string) string {
	if o.cfg.Executor == nil || len(tables) == 0 {
		return ""
	}
	const maxSampledTables = 3
	var b strings.Builder
	sampled := 0
	for _, table := range tables {
		if sampled >= maxSampledTables {
			break
		}
		// The plan names tables; only introspected ones are sampled, and
		// always under their canonical schema name.
		t, ok := o.cfg.Graph.Table(table)
		if !ok {
			continue
		}
		rows, err := o.cfg.Executor.SampleRows(ctx, t.Name, o.cfg.SampleRowCount)
		if err != nil {
			st.trace.Record("sample_data", "sampling failed for "+t.Name, err.Error(), "")
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n", t.Name, renderResult(rows, o.cfg.SampleRowCount))
		sampled++
	}
	if sampled > 0 {
		st.trace.Record("sample_data", fmt.Sprintf("sampled %d tables", sampled), "", "")
		o.emitStage(st, "sample_data")
	}
	return b.String()
}

// correct spends one unit of the retry budget asking the backend to fix the
// current SQL candidate. Returns a non-nil abort response when the correction
// call itself fails.
func (o *Orchestrator) correct(ctx context.Context, st *queryState, schemaContext string, diagnostics []string) *Response {
	st.retries++
	o.emit(Event{Type: EventCorrection, QueryID: st.queryID, Data: map[string]any{
		"attempt":     st.retries,
		"diagnostics": diagnostics,
	}})
	res, err := o.callBatch(ctx, st, "correct_sql", []string{"sql"},
		correctRequest(st.resolved, schemaContext, st.sql, diagnostics))
	if err != nil {
		return o.abortForBatch(st, err)
	}
	st.sql = cleanSQL(res.String("sql"))
	return nil
}

// callBatch issues one reasoning batch and records it in the audit trace,
// including the prose-discard and repair accounting. Failures are recorded
// before being returned.
func (o *Orchestrator) callBatch(ctx context.Context, st *queryState, name string, expectedKeys []string, req llm.Request) (*llm.BatchResult, error) {
	res, err := o.cfg.Client.Call(ctx, name, expectedKeys, req)
	if err != nil {
		var denied *llm.AdmissionDeniedError
		if errors.As(err, &denied) {
			st.trace.Record("admission_denied",
				"rate limit exceeded",
				fmt.Sprintf("batch %s refused; retry after %s", name, denied.RetryAfter.Round(time.Second)), "")
			return nil, err
		}
		var perr *llm.ParseError
		if errors.As(err, &perr) {
			st.trace.Record(name, "reasoning call failed ("+string(perr.Category)+")", perr.Message, "")
			return nil, err
		}
		st.trace.Record(name, "reasoning call failed", err.Error(), "")
		return nil, err
	}

	detail := ""
	if res.DiscardedChars > 0 {
		detail = fmt.Sprintf("discarded %d chars of surrounding prose", res.DiscardedChars)
	}
	if len(res.Repairs) > 0 {
		if detail != "" {
			detail += "; "
		}
		detail += "repairs: " + strings.Join(res.Repairs, ", ")
	}
	st.trace.Record(name, "parsed response", detail, res.BatchID)
	o.emit(Event{Type: EventBatchCalled, QueryID: st.queryID, Stage: name, Data: map[string]any{
		"batch_id":        res.BatchID,
		"discarded_chars": res.DiscardedChars,
		"elapsed":         res.Elapsed,
	}})
	return res, nil
}

// abortForBatch maps a failed reasoning call to a terminal response: rate
// limit denials come back BLOCKED, everything else ERROR.
func (o *Orchestrator) abortForBatch(st *queryState, err error) *Response {
	var denied *llm.AdmissionDeniedError
	if errors.As(err, &denied) {
		return o.blocked(st, fmt.Sprintf(
			"Too many queries right now; try again in %s.", denied.RetryAfter.Round(time.Second)))
	}
	var perr *llm.ParseError
	if errors.As(err, &perr) {
		return o.failed(st, "The reasoning backend did not return a usable response ("+string(perr.Category)+").")
	}
	return o.failed(st, "The reasoning backend is unavailable.")
}

func (o *Orchestrator) succeed(st *queryState, answer string, meta bool) *Response {
	st.trace.FinalStatus = StatusSuccess
	resp := &Response{
		QueryID:     st.queryID,
		Success:     true,
		Answer:      answer,
		IsMetaQuery: meta,
		Warnings:    st.warnings,
		Trace:       st.trace,
	}
	if st.result != nil {
		resp.SQLUsed = st.sql
		resp.RowCount = st.result.RowCount()
		resp.Columns = st.result.Columns
		resp.Rows = st.result.Rows
	}
	return resp
}

func (o *Orchestrator) blocked(st *queryState, reason string) *Response {
	st.trace.FinalStatus = StatusBlocked
	return &Response{
		QueryID:  st.queryID,
		Success:  false,
		Answer:   reason,
		SQLUsed:  st.sql,
		Warnings: st.warnings,
		Trace:    st.trace,
	}
}

func (o *Orchestrator) failed(st *queryState, reason string) *Response {
	st.trace.FinalStatus = StatusError
	return &Response{
		QueryID:  st.queryID,
		Success:  false,
		Answer:   reason,
		SQLUsed:  st.sql,
		Warnings: st.warnings,
		Trace:    st.trace,
	}
}

func (o *Orchestrator) emit(evt Event) {
	if o.cfg.EventHandler == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	o.cfg.EventHandler(evt)
}

func (o *Orchestrator) emitStage(st *queryState, stage string) {
	o.emit(Event{Type: EventStageCompleted, QueryID: st.queryID, Stage: stage})
}

// renderPlan flattens the plan batch's object into prompt-ready text.
func renderPlan(res *llm.BatchResult) string {
	var b strings.Builder
	if tables := res.StringSlice("tables"); len(tables) > 0 {
		b.WriteString("tables: " + strings.Join(tables, ", ") + "\n")
	}
	if joins := res.StringSlice("joins"); len(joins) > 0 {
		b.WriteString("joins: " + strings.Join(joins, "; ") + "\n")
	}
	if filters := res.StringSlice("filters"); len(filters) > 0 {
		b.WriteString("filters: " + strings.Join(filters, "; ") + "\n")
	}
	if agg := res.String("aggregation"); agg != "" {
		b.WriteString("aggregation: " + agg + "\n")
	}
	return b.String()
}

// cleanSQL strips markdown fences and surrounding whitespace from a SQL
// candidate returned by the backend.
func cleanSQL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
