// ABOUTME: Best-effort extraction of JOIN conditions from generated SQL text.
// ABOUTME: Regex-based by scope decision; does not parse subqueries or composite-key joins.
package schema

import (
	"regexp"
	"strings"
)

// joinSplitRe splits a statement at each JOIN keyword so every ON clause is
// scanned independently. A terminator regex that also matched JOIN would
// consume the next keyword and skip every join after the first.
var joinSplitRe = regexp.MustCompile(`(?i)\bJOIN\b`)

// onClauseRe captures the text following ON within one join segment.
var onClauseRe = regexp.MustCompile(`(?is)\bON\b(.*)`)

// clauseEndRe marks where an ON clause ends inside its segment.
var clauseEndRe = regexp.MustCompile(`(?i)\b(?:LEFT|RIGHT|INNER|OUTER|CROSS|WHERE|GROUP|ORDER|LIMIT|HAVING|UNION)\b|;`)

// equalityRe matches a single table.col = table.col equality inside an ON clause.
var equalityRe = regexp.MustCompile(`(?i)([A-Za-z_]\w*)\s*\.\s*([A-Za-z_]\w*)\s*=\s*([A-Za-z_]\w*)\s*\.\s*([A-Za-z_]\w*)`)

// joinCondition is one parsed "table.col = table.col" equality.
type joinCondition struct {
	leftTable   string
	leftColumn  string
	rightTable  string
	rightColumn string
}

// ExtractJoinsFromSQL pulls JOIN conditions out of SQL text for validation.
// Each returned string is a normalized "table.col = table.col" condition.
// Conditions inside subqueries are not visited, composite-key joins surface
// as independent single-column conditions, and table aliases are not resolved.
func ExtractJoinsFromSQL(sqlText string) []string {
	stripped := stripStringLiterals(sqlText)

	var conditions []string
	segments := joinSplitRe.Split(stripped, -1)
	for _, seg := range segments[1:] {
		on := onClauseRe.FindStringSubmatch(seg)
		if on == nil {
			continue
		}
		clause := on[1]
		if end := clauseEndRe.FindStringIndex(clause); end != nil {
			clause = clause[:end[0]]
		}
		for _, eq := range equalityRe.FindAllStringSubmatch(clause, -1) {
			conditions = append(conditions, eq[1]+"."+eq[2]+" = "+eq[3]+"."+eq[4])
		}
	}
	return conditions
}

// parseJoinCondition parses one "table.col = table.col" condition.
func parseJoinCondition(condition string) (joinCondition, bool) {
	m := equalityRe.FindStringSubmatch(strings.TrimSpace(condition))
	if m == nil {
		return joinCondition{}, false
	}
	return joinCondition{
		leftTable:   m[1],
		leftColumn:  m[2],
		rightTable:  m[3],
		rightColumn: m[4],
	}, true
}

// stripStringLiterals blanks out single-quoted SQL string literals so their
// contents cannot masquerade as join syntax. Escaped quotes ('') are handled.
func stripStringLiterals(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			if inString && i+1 < len(s) && s[i+1] == '\'' {
				// Escaped quote inside a literal; stay inside.
				b.WriteByte(' ')
				b.WriteByte(' ')
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
