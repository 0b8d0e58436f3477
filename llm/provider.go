// ABOUTME: Provider adapter interface for the reasoning backend.
// ABOUTME: Adapters translate a prompt pair into raw completion text; parsing happens in the batch client.
package llm

import "context"

// Request is the prompt pair sent to a reasoning provider.
type Request struct {
	System string
	Prompt string
}

// ProviderAdapter is the minimal contract a reasoning backend must satisfy.
// Implementations return the raw completion text; robustness against prose,
// fences, and malformed output lives in the batch client, not the adapter.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a plain function into a ProviderAdapter, used by tests
// and by the offline stub backend.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Name() string { return "func" }

func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
