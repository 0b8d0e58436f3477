// ABOUTME: HTTP handler tests using httptest and a scripted reasoning backend.
// ABOUTME: Covers the query endpoint, auth, the schema endpoint, and the response cache.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/sqlscout/dbexec"
	"github.com/2389-research/sqlscout/llm"
	"github.com/2389-research/sqlscout/pipeline"
	"github.com/2389-research/sqlscout/ratelimit"
	"github.com/2389-research/sqlscout/safety"
	"github.com/2389-research/sqlscout/schema"
)

type scriptProvider struct {
	mu        sync.Mutex
	responses []string
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Complete(_ context.Context, _ llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	return next, nil
}

func newTestServer(t *testing.T, responses []string, opts ...Option) *Server {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	stmts := []string{
		`CREATE TABLE Artist (ArtistId INTEGER PRIMARY KEY, Name TEXT NOT NULL)`,
		`INSERT INTO Artist VALUES (1, 'AC/DC'), (2, 'Accept')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	graph, err := schema.Build(db)
	if err != nil {
		t.Fatal(err)
	}
	orch := pipeline.New(pipeline.Config{
		Graph:      graph,
		Validator:  safety.New(graph, nil, 1000),
		Client:     llm.NewBatchClient(&scriptProvider{responses: responses}, ratelimit.New(time.Minute, 100), 10*time.Second),
		Executor:   dbexec.New(db, 10*time.Second, 1000),
		MaxRetries: 2,
	})
	return NewServer(orch, opts...)
}

func postQuery(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestQueryEndpoint(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"intent": "DATA_QUERY"}`,
		`{"tables": ["Artist"]}`,
		`{"sql": "SELECT Artist.Name FROM Artist LIMIT 10"}`,
		`{"answer": "There are two artists."}`,
	})

	w := postQuery(t, srv, `{"question": "List artists"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp pipeline.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Errorf("Success = false, answer = %q", resp.Answer)
	}
	if resp.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", resp.RowCount)
	}
	if resp.Trace == nil || len(resp.Trace.Actions) == 0 {
		t.Error("response missing audit trace")
	}
}

func TestQueryEndpointRejectsEmptyQuestion(t *testing.T) {
	srv := newTestServer(t, nil)

	for name, body := range map[string]string{
		"empty question": `{"question": ""}`,
		"bad json":       `{`,
	} {
		t.Run(name, func(t *testing.T) {
			if w := postQuery(t, srv, body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestBackendFailureMapsToBadGateway(t *testing.T) {
	srv := newTestServer(t, nil) // script exhausted on first call

	w := postQuery(t, srv, `{"question": "List artists"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestQueryByID(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"intent": "AMBIGUOUS", "clarification": "Which artists?"}`,
	})

	w := postQuery(t, srv, `{"question": "Show them"}`)
	var resp pipeline.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/query/"+resp.QueryID, nil)
	w2 := httptest.NewRecorder()
	srv.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("status = %d", w2.Code)
	}
	var cached pipeline.Response
	if err := json.Unmarshal(w2.Body.Bytes(), &cached); err != nil {
		t.Fatal(err)
	}
	if cached.QueryID != resp.QueryID {
		t.Errorf("QueryID = %q, want %q", cached.QueryID, resp.QueryID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/query/no-such-id", nil)
	w3 := httptest.NewRecorder()
	srv.ServeHTTP(w3, req)
	if w3.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w3.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/schema", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var payload struct {
		Tables []struct {
			Name    string   `json:"name"`
			Columns []string `json:"columns"`
		} `json:"tables"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Tables) != 1 || payload.Tables[0].Name != "Artist" {
		t.Errorf("tables = %+v", payload.Tables)
	}
}

func TestAuthToken(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"intent": "AMBIGUOUS", "clarification": "Which?"}`,
	}, WithAuthToken("secret"))

	t.Run("missing token rejected", func(t *testing.T) {
		if w := postQuery(t, srv, `{"question": "hi"}`); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("health exempt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("valid token accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question": "hi"}`))
		req.Header.Set("Authorization", "Bearer secret")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})
}

func TestIndexRendersRecentQueries(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"intent": "AMBIGUOUS", "clarification": "Which artists do you mean?"}`,
	})
	postQuery(t, srv, `{"question": "Show them"}`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Which artists do you mean?") {
		t.Error("index does not show the recent query answer")
	}
	if !strings.Contains(body, "BLOCKED") {
		t.Error("index does not show the final status")
	}
}

func TestIndexHidesDataWhenTokenConfigured(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"intent": "AMBIGUOUS", "clarification": "Which artists do you mean?"}`,
	}, WithAuthToken("secret"))

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question": "Show them"}`))
	req.Header.Set("Authorization", "Bearer secret")
	srv.ServeHTTP(httptest.NewRecorder(), req)

	// The index is auth-exempt, so with a token set it must not leak
	// cached answers or the table list.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "Which artists do you mean?") {
		t.Error("unauthenticated index leaks a cached answer")
	}
	if strings.Contains(body, "Artist") {
		t.Error("unauthenticated index leaks the table list")
	}
}

func TestCacheEviction(t *testing.T) {
	c := newResponseCache(2)
	for _, id := range []string{"a", "b", "c"} {
		c.Add(&pipeline.Response{QueryID: id})
	}
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry not evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry missing")
	}
	recent := c.Recent(10)
	if len(recent) != 2 || recent[0].QueryID != "c" {
		t.Errorf("Recent = %+v", recent)
	}
}
