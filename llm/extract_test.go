// ABOUTME: Tests for brace-balanced JSON extraction and best-effort repair.
// ABOUTME: Covers prose-wrapped objects, nesting, truncation, repairs, and the re-extraction round trip.
package llm

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractFirstObjectFromProse(t *testing.T) {
	raw := `Sure! Here's the result: {"intent": "ambiguous"} Hope this helps!`

	res, category, err := ExtractFirstObject(raw)
	if err != nil {
		t.Fatalf("ExtractFirstObject: %v (%s)", err, category)
	}

	want := map[string]any{"intent": "ambiguous"}
	if !reflect.DeepEqual(res.Object, want) {
		t.Errorf("Object = %v, want %v", res.Object, want)
	}

	wantDiscarded := len(raw) - len(`{"intent": "ambiguous"}`)
	if res.DiscardedChars != wantDiscarded {
		t.Errorf("DiscardedChars = %d, want %d", res.DiscardedChars, wantDiscarded)
	}
	if len(res.Repairs) != 0 {
		t.Errorf("Repairs = %v, want none", res.Repairs)
	}
}

func TestExtractFirstObjectNested(t *testing.T) {
	raw := "```json\n" + `{"plan": {"tables": ["Artist", "Album"], "joins": [{"on": "a = b"}]}}` + "\n```\ntrailing notes"

	res, _, err := ExtractFirstObject(raw)
	if err != nil {
		t.Fatalf("ExtractFirstObject: %v", err)
	}
	plan, ok := res.Object["plan"].(map[string]any)
	if !ok {
		t.Fatalf("plan missing or wrong type: %v", res.Object)
	}
	if len(plan["tables"].([]any)) != 2 {
		t.Errorf("tables = %v, want 2 entries", plan["tables"])
	}
}

func TestExtractFirstObjectBracesInsideStrings(t *testing.T) {
	raw := `{"sql": "SELECT '{' AS brace FROM t LIMIT 1", "note": "has } inside"}`

	res, _, err := ExtractFirstObject(raw)
	if err != nil {
		t.Fatalf("ExtractFirstObject: %v", err)
	}
	if res.Object["note"] != "has } inside" {
		t.Errorf("note = %v", res.Object["note"])
	}
	if res.DiscardedChars != 0 {
		t.Errorf("DiscardedChars = %d, want 0", res.DiscardedChars)
	}
}

func TestExtractFirstObjectFailureCategories(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ParseCategory
	}{
		{"empty", "", CategoryEmptyResponse},
		{"whitespace only", "   \n\t ", CategoryEmptyResponse},
		{"no object", "I could not produce a result, sorry.", CategoryInvalidFormat},
		{"unterminated", `Here you go: {"intent": "data_que`, CategoryTruncatedOutput},
		{"unparseable block", `{not json at all}`, CategoryInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, category, err := ExtractFirstObject(tt.raw)
			if err == nil {
				t.Fatal("err = nil, want categorized failure")
			}
			if category != tt.want {
				t.Errorf("category = %s, want %s", category, tt.want)
			}
		})
	}
}

func TestExtractFirstObjectRepairs(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantRepair string
		wantKey    string
		wantVal    any
	}{
		{
			name:       "trailing comma",
			raw:        `{"sql": "SELECT 1 LIMIT 1",}`,
			wantRepair: "drop_trailing_commas",
			wantKey:    "sql",
			wantVal:    "SELECT 1 LIMIT 1",
		},
		{
			name:       "single quotes",
			raw:        `{'intent': 'meta_query'}`,
			wantRepair: "normalize_single_quotes",
			wantKey:    "intent",
			wantVal:    "meta_query",
		},
		{
			name:       "line comment",
			raw:        "{\"answer\": \"42\" // the answer\n}",
			wantRepair: "strip_line_comments",
			wantKey:    "answer",
			wantVal:    "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, category, err := ExtractFirstObject(tt.raw)
			if err != nil {
				t.Fatalf("ExtractFirstObject: %v (%s)", err, category)
			}
			if res.Object[tt.wantKey] != tt.wantVal {
				t.Errorf("Object[%s] = %v, want %v", tt.wantKey, res.Object[tt.wantKey], tt.wantVal)
			}
			found := false
			for _, rep := range res.Repairs {
				if rep == tt.wantRepair {
					found = true
				}
			}
			if !found {
				t.Errorf("Repairs = %v, want %s recorded", res.Repairs, tt.wantRepair)
			}
		})
	}
}

func TestExtractRoundTrip(t *testing.T) {
	// Re-serializing the parsed object and re-extracting yields an
	// equivalent object: no keys are lost.
	raw := `prose before {"a": 1, "b": {"c": [1, 2, 3]}, "d": "x"} prose after`

	first, _, err := ExtractFirstObject(raw)
	if err != nil {
		t.Fatalf("first extraction: %v", err)
	}

	serialized, err := json.Marshal(first.Object)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	second, _, err := ExtractFirstObject(string(serialized))
	if err != nil {
		t.Fatalf("second extraction: %v", err)
	}

	if !reflect.DeepEqual(first.Object, second.Object) {
		t.Errorf("round trip differs:\nfirst  %v\nsecond %v", first.Object, second.Object)
	}
}
