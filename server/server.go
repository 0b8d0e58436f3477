// ABOUTME: HTTP server exposing the query pipeline over a small JSON API plus an HTML view.
// ABOUTME: Bearer-token auth on /api routes when a token is configured; loopback-only otherwise.
package server

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"

	"github.com/2389-research/sqlscout/pipeline"
)

// Option configures optional Server behavior.
type Option func(*Server)

// WithAuthToken requires a bearer token on /api routes.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

// WithCacheSize bounds how many recent responses are kept for the
// query-detail endpoint.
func WithCacheSize(n int) Option {
	return func(s *Server) { s.cacheSize = n }
}

// Server holds the chi router, the orchestrator, and the recent-response cache.
type Server struct {
	router    chi.Router
	orch      *pipeline.Orchestrator
	cache     *responseCache
	authToken string
	cacheSize int
	pageTmpl  *template.Template
}

// NewServer creates a Server with all routes configured.
func NewServer(orch *pipeline.Orchestrator, opts ...Option) *Server {
	s := &Server{orch: orch}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = newResponseCache(s.cacheSize)
	s.pageTmpl = template.Must(template.New("page").Funcs(template.FuncMap{
		"markdown": markdownToHTML,
	}).Parse(pageHTML))

	r := chi.NewRouter()
	if s.authToken != "" {
		r.Use(authMiddleware(s.authToken))
	}
	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Post("/api/query", s.handleQuery)
	r.Get("/api/query/{id}", s.handleQueryByID)
	r.Get("/api/schema", s.handleSchema)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// authMiddleware validates bearer tokens on /api routes. The health check
// and the HTML index pass through unprotected.
func authMiddleware(token string) func(http.Handler) http.Handler {
	expected := "Bearer " + token
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/healthz" || path == "/" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	resp := s.orch.Run(r.Context(), req.Question)
	s.cache.Add(resp)

	status := http.StatusOK
	if resp.Trace.FinalStatus == pipeline.StatusError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleQueryByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, ok := s.cache.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown query id"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// schemaPayload is the wire shape of the schema endpoint.
type schemaPayload struct {
	Tables      []tablePayload `json:"tables"`
	ForeignKeys []string       `json:"foreign_keys"`
}

type tablePayload struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	g := s.orch.Graph()
	payload := schemaPayload{}
	for _, name := range g.Tables() {
		t, _ := g.Table(name)
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
		}
		payload.Tables = append(payload.Tables, tablePayload{Name: t.Name, Columns: cols})
	}
	for _, e := range g.Edges() {
		payload.ForeignKeys = append(payload.ForeignKeys, e.String())
	}
	writeJSON(w, http.StatusOK, payload)
}

// indexData feeds the HTML view.
type indexData struct {
	Recent []*pipeline.Response
	Tables []string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	var data indexData
	// The index is reachable without a bearer token, so when one is
	// configured the page carries no cached answers or schema details.
	if s.authToken == "" {
		data.Recent = s.cache.Recent(20)
		data.Tables = s.orch.Graph().Tables()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pageTmpl.Execute(w, data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// markdownToHTML converts a markdown answer to HTML using goldmark. Raw HTML
// in the input is stripped to prevent XSS.
func markdownToHTML(input string) template.HTML {
	var buf bytes.Buffer
	md := goldmark.New()
	if err := md.Convert([]byte(input), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(input))
	}
	return template.HTML(buf.String())
}

const pageHTML = `<!DOCTYPE html>
<html>
<head>
<title>sqlscout</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; background: #1a1a2e; color: #e0e0e0; }
code, pre { background: #16213e; padding: 0.2rem 0.4rem; border-radius: 3px; }
.query { border: 1px solid #333; border-radius: 6px; padding: 1rem; margin-bottom: 1rem; }
.status-SUCCESS { color: #6bff8f; }
.status-BLOCKED { color: #ffd36b; }
.status-ERROR { color: #ff6b6b; }
.tables { color: #888; }
</style>
</head>
<body>
<h1>sqlscout</h1>
{{if .Tables}}<p class="tables">Tables: {{range $i, $t := .Tables}}{{if $i}}, {{end}}{{$t}}{{end}}</p>{{end}}
<p>POST a question to <code>/api/query</code> as <code>{"question": "..."}</code>.</p>
{{range .Recent}}
<div class="query">
  <p><strong>{{.Trace.Question}}</strong>
     <span class="status-{{.Trace.FinalStatus}}">{{.Trace.FinalStatus}}</span></p>
  <div>{{markdown .Answer}}</div>
  {{if .SQLUsed}}<pre>{{.SQLUsed}}</pre>{{end}}
  {{if .Warnings}}<p class="tables">Warnings: {{range $i, $w := .Warnings}}{{if $i}}; {{end}}{{$w}}{{end}}</p>{{end}}
</div>
{{else}}
<p class="tables">No queries yet.</p>
{{end}}
</body>
</html>
`
