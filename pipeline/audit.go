// ABOUTME: Audit trace structures recording every stage a query passes through.
// ABOUTME: The trace is created at query start so every exit path carries one.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Status is the terminal state of a query.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusBlocked Status = "BLOCKED"
	StatusError   Status = "ERROR"
)

// Intent classifies what the user is asking for.
type Intent string

const (
	IntentDataQuery  Intent = "DATA_QUERY"
	IntentMetaQuery  Intent = "META_QUERY"
	IntentAmbiguous  Intent = "AMBIGUOUS"
	IntentUnresolved Intent = "UNRESOLVED"
)

// AuditAction is one recorded step in a query's lifecycle.
type AuditAction struct {
	Stage     string    `json:"stage"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditTrace is the complete record of one query's journey through the
// pipeline. It is allocated before the first stage runs, so early aborts
// (rate limit, ambiguity) still return a populated trace.
type AuditTrace struct {
	QueryID            string        `json:"query_id"`
	Question           string        `json:"question"`
	Actions            []AuditAction `json:"actions"`
	FinalStatus        Status        `json:"final_status"`
	TotalTimeMS        int64         `json:"total_time_ms"`
	CorrectionAttempts int           `json:"correction_attempts"`
}

// Record appends an action to the trace.
func (t *AuditTrace) Record(stage, summary, detail, batchID string) {
	t.Actions = append(t.Actions, AuditAction{
		Stage:     stage,
		Summary:   summary,
		Detail:    detail,
		BatchID:   batchID,
		Timestamp: time.Now(),
	})
}

// HasStage reports whether any recorded action ran under the given stage.
func (t *AuditTrace) HasStage(stage string) bool {
	for _, a := range t.Actions {
		if a.Stage == stage {
			return true
		}
	}
	return false
}

// Render formats the trace as a human-readable timeline.
func (t *AuditTrace) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query %s: %q\n", t.QueryID, t.Question)
	var base time.Time
	for _, a := range t.Actions {
		if base.IsZero() {
			base = a.Timestamp
		}
		offset := a.Timestamp.Sub(base).Round(time.Millisecond)
		fmt.Fprintf(&b, "+%-8s %-18s %s", offset, a.Stage, a.Summary)
		if a.BatchID != "" {
			fmt.Fprintf(&b, " [batch %s]", a.BatchID)
		}
		b.WriteString("\n")
		if a.Detail != "" {
			for _, line := range strings.Split(a.Detail, "\n") {
				b.WriteString("          " + line + "\n")
			}
		}
	}
	fmt.Fprintf(&b, "final: %s (%dms, %d corrections)\n",
		t.FinalStatus, t.TotalTimeMS, t.CorrectionAttempts)
	return b.String()
}
