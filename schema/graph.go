// ABOUTME: Foreign-key relationship graph with shortest-path search and join-condition validation.
// ABOUTME: Immutable after Build; prevents syntactically valid but semantically wrong joins.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultMaxHops bounds shortest-path searches. Paths longer than this are
// treated as nonexistent to keep generated queries away from degenerate
// multi-way joins.
const DefaultMaxHops = 3

// Column describes one column of an introspected table.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

// Table describes one introspected table.
type Table struct {
	Name    string
	Columns []Column
}

// FKEdge is a directed foreign-key relationship. JOINs may traverse it in
// either direction, so path search treats edges as bidirectional.
type FKEdge struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// String renders the edge as a JOIN condition in declaration direction.
func (e FKEdge) String() string {
	return fmt.Sprintf("%s.%s = %s.%s", e.FromTable, e.FromColumn, e.ToTable, e.ToColumn)
}

// JoinPath is the result of a shortest-path query: the ordered tables visited
// and the FK edges connecting each consecutive pair.
type JoinPath struct {
	Tables []string
	Edges  []FKEdge
}

// Graph holds the introspected schema. Read-only after Build.
type Graph struct {
	tables map[string]*Table // keyed by lowercase name
	order  []string          // canonical table names, sorted
	edges  []FKEdge
	adj    map[string][]FKEdge // lowercase table -> incident edges, both directions
}

func newGraph() *Graph {
	return &Graph{
		tables: make(map[string]*Table),
		adj:    make(map[string][]FKEdge),
	}
}

func (g *Graph) addTable(name string, cols []Column) {
	g.tables[strings.ToLower(name)] = &Table{Name: name, Columns: cols}
	g.order = append(g.order, name)
}

func (g *Graph) addEdge(e FKEdge) {
	g.edges = append(g.edges, e)
	g.adj[strings.ToLower(e.FromTable)] = append(g.adj[strings.ToLower(e.FromTable)], e)
	g.adj[strings.ToLower(e.ToTable)] = append(g.adj[strings.ToLower(e.ToTable)], e)
}

// finalize sorts adjacency lists so traversal order — and therefore
// ShortestPath results — are deterministic for a fixed schema.
func (g *Graph) finalize() {
	sort.Strings(g.order)
	for k := range g.adj {
		edges := g.adj[k]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].FromTable != edges[j].FromTable {
				return edges[i].FromTable < edges[j].FromTable
			}
			if edges[i].ToTable != edges[j].ToTable {
				return edges[i].ToTable < edges[j].ToTable
			}
			return edges[i].FromColumn < edges[j].FromColumn
		})
	}
}

// primaryKeyColumn returns the name of the table's first primary key column,
// or "" if the table is unknown or has no declared PK.
func (g *Graph) primaryKeyColumn(table string) string {
	t, ok := g.tables[strings.ToLower(table)]
	if !ok {
		return ""
	}
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

// Tables returns the canonical table names in sorted order.
func (g *Graph) Tables() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Table looks up a table by name, case-insensitively.
func (g *Graph) Table(name string) (*Table, bool) {
	t, ok := g.tables[strings.ToLower(name)]
	return t, ok
}

// HasTable reports whether the schema contains the named table.
func (g *Graph) HasTable(name string) bool {
	_, ok := g.tables[strings.ToLower(name)]
	return ok
}

// HasColumn reports whether the named table has the named column.
func (g *Graph) HasColumn(table, column string) bool {
	t, ok := g.tables[strings.ToLower(table)]
	if !ok {
		return false
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// Edges returns a copy of all FK edges in declaration order.
func (g *Graph) Edges() []FKEdge {
	out := make([]FKEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// ShortestPath finds the shortest FK path between two tables using BFS over
// the bidirectional adjacency. maxHops <= 0 uses DefaultMaxHops. Returns nil
// when either table is unknown or no path exists within the hop bound.
func (g *Graph) ShortestPath(tableA, tableB string, maxHops int) *JoinPath {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	a, okA := g.tables[strings.ToLower(tableA)]
	b, okB := g.tables[strings.ToLower(tableB)]
	if !okA || !okB {
		return nil
	}
	if a.Name == b.Name {
		return &JoinPath{Tables: []string{a.Name}}
	}

	type step struct {
		table string // lowercase
		hops  int
	}
	start := strings.ToLower(a.Name)
	goal := strings.ToLower(b.Name)

	prev := map[string]arrival{start: {}}
	queue := []step{{table: start, hops: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= maxHops {
			continue
		}
		for _, e := range g.adj[cur.table] {
			next := strings.ToLower(e.ToTable)
			if next == cur.table {
				next = strings.ToLower(e.FromTable)
			}
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = arrival{from: cur.table, edge: e}
			if next == goal {
				return g.reconstructPath(start, goal, prev)
			}
			queue = append(queue, step{table: next, hops: cur.hops + 1})
		}
	}
	return nil
}

// arrival records how a table was reached during BFS, for path reconstruction.
type arrival struct {
	from string
	edge FKEdge
}

// reconstructPath walks prev pointers from goal back to start.
func (g *Graph) reconstructPath(start, goal string, prev map[string]arrival) *JoinPath {
	var tables []string
	var edges []FKEdge
	cur := goal
	for cur != start {
		ar := prev[cur]
		tables = append(tables, g.tables[cur].Name)
		edges = append(edges, ar.edge)
		cur = ar.from
	}
	tables = append(tables, g.tables[start].Name)

	// Reverse into start -> goal order.
	for i, j := 0, len(tables)-1; i < j; i, j = i+1, j-1 {
		tables[i], tables[j] = tables[j], tables[i]
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return &JoinPath{Tables: tables, Edges: edges}
}

// ValidateJoinCondition checks that a single "table.col = table.col" condition
// corresponds to exactly one declared FK edge between the two tables, in
// either direction. Conditions whose columns both exist but that match no FK
// edge are invalid: that is the bug class this graph exists to prevent.
func (g *Graph) ValidateJoinCondition(condition string) (bool, string) {
	cond, ok := parseJoinCondition(condition)
	if !ok {
		return false, fmt.Sprintf("could not parse join condition %q (expected table.col = table.col)", condition)
	}

	if !g.HasTable(cond.leftTable) {
		return false, fmt.Sprintf("unknown table %q in join condition", cond.leftTable)
	}
	if !g.HasTable(cond.rightTable) {
		return false, fmt.Sprintf("unknown table %q in join condition", cond.rightTable)
	}

	for _, e := range g.edges {
		if edgeMatches(e, cond) {
			return true, ""
		}
	}

	diag := fmt.Sprintf("no foreign key links %s.%s to %s.%s",
		cond.leftTable, cond.leftColumn, cond.rightTable, cond.rightColumn)
	if suggestion := g.SuggestJoinPath(cond.leftTable, cond.rightTable); suggestion != "" {
		diag += "; " + suggestion
	}
	return false, diag
}

// edgeMatches reports whether the FK edge covers the parsed condition in
// either direction.
func edgeMatches(e FKEdge, c joinCondition) bool {
	forward := strings.EqualFold(e.FromTable, c.leftTable) &&
		strings.EqualFold(e.FromColumn, c.leftColumn) &&
		strings.EqualFold(e.ToTable, c.rightTable) &&
		strings.EqualFold(e.ToColumn, c.rightColumn)
	reverse := strings.EqualFold(e.FromTable, c.rightTable) &&
		strings.EqualFold(e.FromColumn, c.rightColumn) &&
		strings.EqualFold(e.ToTable, c.leftTable) &&
		strings.EqualFold(e.ToColumn, c.leftColumn)
	return forward || reverse
}

// SuggestJoinPath renders a human-readable description of the correct join
// route between two tables, used to steer the self-correction stage.
// Returns "" when no path exists within the default hop bound.
func (g *Graph) SuggestJoinPath(tableA, tableB string) string {
	path := g.ShortestPath(tableA, tableB, DefaultMaxHops)
	if path == nil || len(path.Edges) == 0 {
		return ""
	}

	conds := make([]string, len(path.Edges))
	for i, e := range path.Edges {
		conds[i] = e.String()
	}
	return fmt.Sprintf("join via %s using %s",
		strings.Join(path.Tables, " -> "), strings.Join(conds, " AND "))
}
