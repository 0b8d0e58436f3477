// ABOUTME: Prompt construction for each reasoning batch in the query pipeline.
// ABOUTME: Every prompt demands a single JSON object so the extractor has something to find.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/2389-research/sqlscout/dbexec"
	"github.com/2389-research/sqlscout/llm"
)

const classifySystem = `You classify natural-language questions about a relational database.
Respond with a single JSON object and nothing else:
{"intent": "DATA_QUERY|META_QUERY|AMBIGUOUS|UNRESOLVED", "resolved_query": "...", "clarification": "..."}
- DATA_QUERY: answerable with a SQL query over the data.
- META_QUERY: a question about the schema itself (tables, columns, relationships).
- AMBIGUOUS: cannot be answered without clarification; put the question to ask in "clarification".
- UNRESOLVED: not a database question at all.
"resolved_query" restates the question with any reasonable assumptions made explicit.`

func classifyRequest(question, schemaSummary string) llm.Request {
	return llm.Request{
		System: classifySystem,
		Prompt: fmt.Sprintf("Database: %s\n\nQuestion: %s", schemaSummary, question),
	}
}

const metaSystem = `You answer questions about a relational database schema.
Use only the schema description provided. Respond with a single JSON object:
{"answer": "..."}
The answer is markdown. Do not invent tables or columns.`

func metaRequest(question, schemaDescription string) llm.Request {
	return llm.Request{
		System: metaSystem,
		Prompt: fmt.Sprintf("Schema:\n%s\n\nQuestion: %s", schemaDescription, question),
	}
}

const planSystem = `You plan SQL queries against a relational database.
Given the schema and a question, respond with a single JSON object:
{"tables": ["..."], "joins": ["A.x = B.y"], "filters": ["..."], "aggregation": "..."}
Only use tables and columns that appear in the schema. Join conditions must
follow the foreign keys listed; if two tables are not directly related, join
through the intermediate tables on the foreign-key path.`

func planRequest(question, schemaContext string) llm.Request {
	return llm.Request{
		System: planSystem,
		Prompt: fmt.Sprintf("Schema:\n%s\n\nQuestion: %s", schemaContext, question),
	}
}

const generateSystem = `You write SQLite SELECT statements.
Respond with a single JSON object: {"sql": "..."}
Rules:
- One statement, SELECT only. No INSERT/UPDATE/DELETE/DDL.
- Always include a LIMIT clause of at most %d.
- Never use a bare "SELECT *": list columns or qualify with a table alias.
- Join conditions must follow the foreign keys in the schema.`

func generateRequest(question, schemaContext, plan, samples string, rowCap int) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Schema:\n%s\n\n", schemaContext)
	fmt.Fprintf(&b, "Query plan:\n%s\n\n", plan)
	if samples != "" {
		fmt.Fprintf(&b, "Sample rows (for value formats only):\n%s\n\n", samples)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return llm.Request{
		System: fmt.Sprintf(generateSystem, rowCap),
		Prompt: b.String(),
	}
}

const correctSystem = `You fix SQLite SELECT statements that failed validation or execution.
Respond with a single JSON object: {"sql": "..."}
Apply every diagnostic below. Keep the statement a single bounded SELECT.`

func correctRequest(question, schemaContext, sqlText string, diagnostics []string) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Schema:\n%s\n\n", schemaContext)
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Failed SQL:\n%s\n\n", sqlText)
	b.WriteString("Diagnostics:\n")
	for _, d := range diagnostics {
		b.WriteString("- " + d + "\n")
	}
	return llm.Request{System: correctSystem, Prompt: b.String()}
}

const synthesizeSystem = `You summarize SQL query results for a non-technical reader.
Respond with a single JSON object: {"answer": "..."}
The answer is markdown. State only what the rows show; if the result is empty,
say that no rows matched. Never invent values that are not in the rows.`

func synthesizeRequest(question, sqlText string, result *dbexec.Result) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSQL:\n%s\n\n", question, sqlText)
	fmt.Fprintf(&b, "Result (%d rows):\n%s", result.RowCount(), renderResult(result, 20))
	return llm.Request{System: synthesizeSystem, Prompt: b.String()}
}

// renderResult formats up to maxRows of a result as a compact text table for
// prompts and trace details.
func renderResult(r *dbexec.Result, maxRows int) string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | ") + "\n")
	for i, row := range r.Rows {
		if i >= maxRows {
			fmt.Fprintf(&b, "... (%d more rows)\n", len(r.Rows)-maxRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				cells[j] = "NULL"
			} else {
				cells[j] = fmt.Sprintf("%v", v)
			}
		}
		b.WriteString(strings.Join(cells, " | ") + "\n")
	}
	return b.String()
}
