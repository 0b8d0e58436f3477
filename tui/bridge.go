// ABOUTME: Bridge connecting the query pipeline to the Bubble Tea message loop.
// ABOUTME: Provides EventBridge for event injection plus tea.Cmd factories for queries and ticks.
package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/sqlscout/pipeline"
)

// Forwarder is a settable event handler. The orchestrator is constructed
// before the Bubble Tea program exists, so its event handler points at a
// Forwarder whose target is set once the program is running. Events arriving
// before a target is set are dropped.
type Forwarder struct {
	mu sync.Mutex
	fn pipeline.EventHandler
}

// HandleEvent implements the pipeline.Config.EventHandler signature.
func (f *Forwarder) HandleEvent(evt pipeline.Event) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(evt)
	}
}

// SetTarget points the forwarder at a concrete handler.
func (f *Forwarder) SetTarget(fn pipeline.EventHandler) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

// EventBridge wraps a tea.Program's Send method for injecting pipeline events
// into the Bubble Tea message loop. Typically constructed with program.Send.
type EventBridge struct {
	send func(msg tea.Msg)
}

// NewEventBridge creates an EventBridge that sends messages via the given function.
func NewEventBridge(send func(msg tea.Msg)) *EventBridge {
	return &EventBridge{send: send}
}

// HandleEvent implements the pipeline.Config.EventHandler signature.
func (b *EventBridge) HandleEvent(evt pipeline.Event) {
	b.send(PipelineEventMsg{Event: evt})
}

// RunQueryCmd returns a tea.Cmd that runs one question through the
// orchestrator and delivers the terminal response.
func RunQueryCmd(ctx context.Context, orch *pipeline.Orchestrator, question string) tea.Cmd {
	return func() tea.Msg {
		return QueryResultMsg{Response: orch.Run(ctx, question)}
	}
}
