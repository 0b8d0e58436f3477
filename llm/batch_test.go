// ABOUTME: Tests for the reasoning batch client chokepoint.
// ABOUTME: Covers admission denial, expected-key verification, provider failure, and result accounting.
package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/2389-research/sqlscout/ratelimit"
)

func staticProvider(response string) ProviderAdapter {
	return ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		return response, nil
	})
}

func TestCallParsesStructuredResponse(t *testing.T) {
	client := NewBatchClient(
		staticProvider(`Here it is: {"intent": "data_query", "resolved_query": "count customers"} done.`),
		ratelimit.New(time.Minute, 5),
		time.Second,
	)

	res, err := client.Call(context.Background(), "classify_intent",
		[]string{"intent", "resolved_query"}, Request{Prompt: "classify"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	if res.String("intent") != "data_query" {
		t.Errorf("intent = %q, want data_query", res.String("intent"))
	}
	if res.BatchID == "" {
		t.Error("BatchID is empty")
	}
	if res.BatchName != "classify_intent" {
		t.Errorf("BatchName = %q", res.BatchName)
	}
	if res.DiscardedChars == 0 {
		t.Error("DiscardedChars = 0, want surrounding prose counted")
	}
}

func TestCallAdmissionDenied(t *testing.T) {
	limiter := ratelimit.New(time.Minute, 1)
	called := 0
	client := NewBatchClient(ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		called++
		return `{"ok": true}`, nil
	}), limiter, time.Second)

	if _, err := client.Call(context.Background(), "b1", nil, Request{Prompt: "x"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	_, err := client.Call(context.Background(), "b2", nil, Request{Prompt: "y"})
	var denied *AdmissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want AdmissionDeniedError", err)
	}
	if denied.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", denied.RetryAfter)
	}
	if called != 1 {
		t.Errorf("backend called %d times, want 1 (denied call must not reach backend)", called)
	}
}

func TestCallMissingExpectedKeys(t *testing.T) {
	client := NewBatchClient(staticProvider(`{"intent": "data_query"}`),
		ratelimit.New(time.Minute, 5), time.Second)

	_, err := client.Call(context.Background(), "classify_intent",
		[]string{"intent", "resolved_query"}, Request{Prompt: "classify"})

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Category != CategorySchemaViolation {
		t.Errorf("Category = %s, want %s", pe.Category, CategorySchemaViolation)
	}
}

func TestCallProviderFailure(t *testing.T) {
	client := NewBatchClient(ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		return "", errors.New("quota exhausted")
	}), ratelimit.New(time.Minute, 5), time.Second)

	_, err := client.Call(context.Background(), "plan_query", nil, Request{Prompt: "plan"})

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Category != CategoryProviderFailure {
		t.Errorf("Category = %s, want %s", pe.Category, CategoryProviderFailure)
	}
}

func TestCallTimeoutIsProviderFailure(t *testing.T) {
	client := NewBatchClient(ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), ratelimit.New(time.Minute, 5), 10*time.Millisecond)

	_, err := client.Call(context.Background(), "generate_sql", nil, Request{Prompt: "gen"})

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Category != CategoryProviderFailure {
		t.Errorf("Category = %s, want %s", pe.Category, CategoryProviderFailure)
	}
}

func TestCallEmptyResponse(t *testing.T) {
	client := NewBatchClient(staticProvider("   "),
		ratelimit.New(time.Minute, 5), time.Second)

	_, err := client.Call(context.Background(), "synthesize_answer", nil, Request{Prompt: "answer"})

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Category != CategoryEmptyResponse {
		t.Errorf("Category = %s, want %s", pe.Category, CategoryEmptyResponse)
	}
}

func TestStringSlice(t *testing.T) {
	res := &BatchResult{Object: map[string]any{
		"tables": []any{"Artist", "Album", 3},
		"n":      1.0,
	}}

	got := res.StringSlice("tables")
	if len(got) != 2 || got[0] != "Artist" || got[1] != "Album" {
		t.Errorf("StringSlice = %v, want [Artist Album]", got)
	}
	if res.StringSlice("n") != nil {
		t.Error("StringSlice on non-slice value should be nil")
	}
	if res.StringSlice("missing") != nil {
		t.Error("StringSlice on missing key should be nil")
	}
}
