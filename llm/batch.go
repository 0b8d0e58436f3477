// ABOUTME: The single chokepoint for all calls to the external reasoning backend.
// ABOUTME: Enforces rate-limit admission, a per-call timeout, and robust structured-output parsing.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/sqlscout/ratelimit"
)

// BatchResult is the parsed outcome of one reasoning batch, with accounting
// the orchestrator records in the audit trace.
type BatchResult struct {
	BatchID        string
	BatchName      string
	Object         map[string]any
	DiscardedChars int
	Repairs        []string
	Elapsed        time.Duration
}

// String returns a short string value from the parsed object, or "" when the
// key is missing or not a string.
func (r *BatchResult) String(key string) string {
	s, _ := r.Object[key].(string)
	return s
}

// StringSlice returns a []string value from the parsed object, tolerating the
// JSON decoder's []any representation. Missing or mistyped keys yield nil.
func (r *BatchResult) StringSlice(key string) []string {
	switch v := r.Object[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// BatchClient is the only component permitted to call the reasoning backend.
// Every call is admitted through the shared rate limiter, bounded by a
// timeout, and parsed with the brace-balanced extractor; all failures come
// back as categorized ParseErrors or an AdmissionDeniedError, never raw
// transport or JSON errors.
type BatchClient struct {
	provider ProviderAdapter
	limiter  *ratelimit.Limiter
	timeout  time.Duration
}

// NewBatchClient creates a BatchClient. timeout <= 0 defaults to 60s.
func NewBatchClient(provider ProviderAdapter, limiter *ratelimit.Limiter, timeout time.Duration) *BatchClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BatchClient{
		provider: provider,
		limiter:  limiter,
		timeout:  timeout,
	}
}

// Call issues one reasoning batch. expectedKeys, when non-empty, must all be
// present in the parsed object or the call fails with a schema_violation.
func (c *BatchClient) Call(ctx context.Context, batchName string, expectedKeys []string, req Request) (*BatchResult, error) {
	if !c.limiter.CanProceed() {
		return nil, &AdmissionDeniedError{
			ClientError: ClientError{Message: fmt.Sprintf("rate limit reached for batch %q", batchName)},
			RetryAfter:  c.limiter.WaitTime(),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.provider.Complete(callCtx, req)
	elapsed := time.Since(start)
	c.limiter.RecordCall()

	if err != nil {
		// A hung backend surfaces here as context.DeadlineExceeded; both it
		// and provider-level failures (quota, auth, transport) are the same
		// category to the orchestrator.
		msg := "reasoning backend call failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("reasoning backend timed out after %s", c.timeout)
		}
		return nil, NewParseError(batchName, CategoryProviderFailure, msg, err)
	}

	extracted, category, err := ExtractFirstObject(raw)
	if err != nil {
		return nil, NewParseError(batchName, category, err.Error(), nil)
	}

	var missing []string
	for _, key := range expectedKeys {
		if _, ok := extracted.Object[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, NewParseError(batchName, CategorySchemaViolation,
			fmt.Sprintf("response missing expected key(s) %v", missing), nil)
	}

	return &BatchResult{
		BatchID:        ulid.Make().String(),
		BatchName:      batchName,
		Object:         extracted.Object,
		DiscardedChars: extracted.DiscardedChars,
		Repairs:        extracted.Repairs,
		Elapsed:        elapsed,
	}, nil
}
