// ABOUTME: Deterministic SQL safety gate: read-only, bounded, schema-valid joins.
// ABOUTME: Provides a pluggable Rule interface, built-in rules, and Validate over a candidate statement.
package safety

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389-research/sqlscout/schema"
)

// RuleName identifies which safety rule produced a violation.
type RuleName string

const (
	RuleForbiddenStatement  RuleName = "forbidden_statement"
	RuleMissingLimit        RuleName = "missing_limit"
	RuleUnboundedLimit      RuleName = "unbounded_limit"
	RuleUnqualifiedWildcard RuleName = "unqualified_wildcard"
	RuleInvalidJoin         RuleName = "invalid_join"
)

// Violation is one failed safety check, with an optional suggested fix that
// the self-correction stage feeds back to the reasoning backend.
type Violation struct {
	Rule    RuleName
	Message string
	Fix     string
}

// String renders the violation as a single diagnostic line.
func (v Violation) String() string {
	s := fmt.Sprintf("[%s] %s", v.Rule, v.Message)
	if v.Fix != "" {
		s += " (fix: " + v.Fix + ")"
	}
	return s
}

// Result is the outcome of validating one SQL candidate.
type Result struct {
	Approved   bool
	Violations []Violation
}

// ViolationStrings returns the violations as diagnostic strings.
func (r Result) ViolationStrings() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// JoinViolations returns only the invalid-join violations, which the
// orchestrator records separately as FK diagnostics.
func (r Result) JoinViolations() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Rule == RuleInvalidJoin {
			out = append(out, v)
		}
	}
	return out
}

// Rule is the interface for safety checks over a SQL candidate.
type Rule interface {
	Name() RuleName
	Apply(sqlText string, v *Validator) []Violation
}

// Validator runs the safety rule set against SQL candidates. It performs no
// external calls: every check is a pure function of the candidate text, the
// configured limits, and the schema graph.
type Validator struct {
	graph             *schema.Graph
	forbiddenKeywords []string
	rowLimitCap       int
	rules             []Rule
}

// DefaultForbiddenKeywords is the baseline rejection list used when the
// configuration supplies none.
func DefaultForbiddenKeywords() []string {
	return []string{
		"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
		"REPLACE", "TRUNCATE", "ATTACH", "DETACH", "PRAGMA", "VACUUM",
		"REINDEX", "GRANT", "REVOKE",
	}
}

// New creates a Validator. A nil or empty keyword list falls back to
// DefaultForbiddenKeywords; rowLimitCap <= 0 defaults to 1000.
func New(graph *schema.Graph, forbiddenKeywords []string, rowLimitCap int) *Validator {
	if len(forbiddenKeywords) == 0 {
		forbiddenKeywords = DefaultForbiddenKeywords()
	}
	if rowLimitCap <= 0 {
		rowLimitCap = 1000
	}
	return &Validator{
		graph:             graph,
		forbiddenKeywords: forbiddenKeywords,
		rowLimitCap:       rowLimitCap,
		rules: []Rule{
			&singleSelectRule{},
			&forbiddenKeywordRule{},
			&wildcardRule{},
			&limitRule{},
			&joinRule{},
		},
	}
}

// RowLimitCap returns the configured maximum LIMIT value.
func (v *Validator) RowLimitCap() int { return v.rowLimitCap }

// Validate runs every rule against the candidate. All rules run even after a
// failure so the correction prompt sees the complete violation list.
func (v *Validator) Validate(sqlText string) Result {
	var violations []Violation
	for _, rule := range v.rules {
		violations = append(violations, rule.Apply(sqlText, v)...)
	}
	return Result{
		Approved:   len(violations) == 0,
		Violations: violations,
	}
}

// --- Built-in rules ---

var (
	limitClauseRe = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	wildcardRe    = regexp.MustCompile(`(?i)\bSELECT\s+(?:DISTINCT\s+)?\*`)
	leadingWordRe = regexp.MustCompile(`(?i)^\s*([A-Za-z]+)`)
)

// singleSelectRule requires exactly one statement that reads, not writes:
// it must start with SELECT (or WITH for common table expressions) and must
// not contain additional statements after a semicolon.
type singleSelectRule struct{}

func (r *singleSelectRule) Name() RuleName { return RuleForbiddenStatement }

func (r *singleSelectRule) Apply(sqlText string, _ *Validator) []Violation {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return []Violation{{
			Rule:    RuleForbiddenStatement,
			Message: "empty SQL candidate",
		}}
	}

	var out []Violation

	m := leadingWordRe.FindStringSubmatch(trimmed)
	first := ""
	if m != nil {
		first = strings.ToUpper(m[1])
	}
	if first != "SELECT" && first != "WITH" {
		out = append(out, Violation{
			Rule:    RuleForbiddenStatement,
			Message: fmt.Sprintf("statement must be a single SELECT, got %q", first),
			Fix:     "rewrite the query as one read-only SELECT statement",
		})
	}

	// A semicolon is allowed only as a trailer; anything after it is a
	// second statement.
	if i := strings.Index(trimmed, ";"); i >= 0 && strings.TrimSpace(trimmed[i+1:]) != "" {
		out = append(out, Violation{
			Rule:    RuleForbiddenStatement,
			Message: "multiple statements detected; only a single SELECT is allowed",
			Fix:     "remove everything after the first statement",
		})
	}

	return out
}

// forbiddenKeywordRule rejects candidates containing any configured keyword
// as a whole word, outside string literals.
type forbiddenKeywordRule struct{}

func (r *forbiddenKeywordRule) Name() RuleName { return RuleForbiddenStatement }

func (r *forbiddenKeywordRule) Apply(sqlText string, v *Validator) []Violation {
	scrubbed := blankStringLiterals(sqlText)
	upper := strings.ToUpper(scrubbed)

	var out []Violation
	for _, kw := range v.forbiddenKeywords {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToUpper(kw)) + `\b`)
		if re.MatchString(upper) {
			out = append(out, Violation{
				Rule:    RuleForbiddenStatement,
				Message: fmt.Sprintf("forbidden keyword %q present", strings.ToUpper(kw)),
				Fix:     "only read-only SELECT statements are permitted",
			})
		}
	}
	return out
}

// wildcardRule rejects unqualified SELECT *; an explicit column list is
// required. Aggregates like COUNT(*) and qualified table.* are permitted.
type wildcardRule struct{}

func (r *wildcardRule) Name() RuleName { return RuleUnqualifiedWildcard }

func (r *wildcardRule) Apply(sqlText string, _ *Validator) []Violation {
	if wildcardRe.MatchString(sqlText) {
		return []Violation{{
			Rule:    RuleUnqualifiedWildcard,
			Message: "unqualified SELECT * is not allowed",
			Fix:     "list the specific columns the question needs",
		}}
	}
	return nil
}

// limitRule requires a LIMIT clause with a value at or below the row cap.
type limitRule struct{}

func (r *limitRule) Name() RuleName { return RuleMissingLimit }

func (r *limitRule) Apply(sqlText string, v *Validator) []Violation {
	m := limitClauseRe.FindStringSubmatch(sqlText)
	if m == nil {
		return []Violation{{
			Rule:    RuleMissingLimit,
			Message: "no LIMIT clause present",
			Fix:     fmt.Sprintf("append LIMIT %d (or lower)", v.rowLimitCap),
		}}
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		// A digit run too large for int is still an out-of-bounds LIMIT.
		return []Violation{{
			Rule:    RuleUnboundedLimit,
			Message: fmt.Sprintf("LIMIT %s exceeds the row cap of %d", m[1], v.rowLimitCap),
			Fix:     fmt.Sprintf("lower the LIMIT to at most %d", v.rowLimitCap),
		}}
	}
	if n > v.rowLimitCap {
		return []Violation{{
			Rule:    RuleUnboundedLimit,
			Message: fmt.Sprintf("LIMIT %d exceeds the row cap of %d", n, v.rowLimitCap),
			Fix:     fmt.Sprintf("lower the LIMIT to at most %d", v.rowLimitCap),
		}}
	}
	return nil
}

// joinRule validates every extracted JOIN condition against the FK graph.
type joinRule struct{}

func (r *joinRule) Name() RuleName { return RuleInvalidJoin }

func (r *joinRule) Apply(sqlText string, v *Validator) []Violation {
	if v.graph == nil {
		return nil
	}

	var out []Violation
	for _, cond := range schema.ExtractJoinsFromSQL(sqlText) {
		valid, diag := v.graph.ValidateJoinCondition(cond)
		if !valid {
			out = append(out, Violation{
				Rule:    RuleInvalidJoin,
				Message: fmt.Sprintf("join condition %q is not backed by a foreign key: %s", cond, diag),
				Fix:     "use only join conditions that follow declared foreign keys",
			})
		}
	}
	return out
}

// blankStringLiterals replaces the contents of single-quoted literals with
// spaces so keyword scanning cannot be fooled by data values.
func blankStringLiterals(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			if inString && i+1 < len(s) && s[i+1] == '\'' {
				b.WriteString("  ")
				i++
				continue
			}
			inString = !inString
			b.WriteByte(' ')
			continue
		}
		if inString {
			b.WriteByte(' ')
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}
