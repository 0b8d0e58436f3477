// ABOUTME: Human-readable schema digest used as prompt context and for the CLI schema mode.
// ABOUTME: Lists tables, columns with types, and declared foreign-key relationships.
package schema

import (
	"fmt"
	"strings"
)

// Describe renders the full schema as a compact text digest: one section per
// table with its columns, then the FK relationship list. The same text is
// sent to the reasoning backend as schema context.
func (g *Graph) Describe() string {
	var b strings.Builder

	b.WriteString("## Tables\n")
	for _, name := range g.order {
		t := g.tables[strings.ToLower(name)]
		b.WriteString(name + " (")
		for i, c := range t.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			if c.Type != "" {
				b.WriteString(" " + c.Type)
			}
			if c.PrimaryKey {
				b.WriteString(" PK")
			}
		}
		b.WriteString(")\n")
	}

	if len(g.edges) > 0 {
		b.WriteString("\n## Foreign Keys\n")
		for _, e := range g.edges {
			b.WriteString(e.String() + "\n")
		}
	}

	return b.String()
}

// DescribeTables renders only the named tables (plus their FK edges), for
// focused schema context once relevant tables are known. Unknown names are
// skipped. An empty or all-unknown list falls back to the full digest.
func (g *Graph) DescribeTables(names []string) string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if g.HasTable(n) {
			want[strings.ToLower(n)] = true
		}
	}
	if len(want) == 0 {
		return g.Describe()
	}

	var b strings.Builder
	b.WriteString("## Tables\n")
	for _, name := range g.order {
		if !want[strings.ToLower(name)] {
			continue
		}
		t := g.tables[strings.ToLower(name)]
		b.WriteString(name + " (")
		for i, c := range t.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			if c.Type != "" {
				b.WriteString(" " + c.Type)
			}
			if c.PrimaryKey {
				b.WriteString(" PK")
			}
		}
		b.WriteString(")\n")
	}

	var fkLines []string
	for _, e := range g.edges {
		if want[strings.ToLower(e.FromTable)] || want[strings.ToLower(e.ToTable)] {
			fkLines = append(fkLines, e.String())
		}
	}
	if len(fkLines) > 0 {
		b.WriteString("\n## Foreign Keys\n")
		for _, l := range fkLines {
			b.WriteString(l + "\n")
		}
	}

	return b.String()
}

// Summary returns a one-line overview like "8 tables, 9 foreign keys".
func (g *Graph) Summary() string {
	return fmt.Sprintf("%d tables, %d foreign keys", len(g.order), len(g.edges))
}
