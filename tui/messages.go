// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type wraps domain events for the tea.Msg interface.
package tui

import (
	"github.com/2389-research/sqlscout/pipeline"
)

// QueryResultMsg signals that a query has reached a terminal state.
type QueryResultMsg struct {
	Response *pipeline.Response
}

// PipelineEventMsg wraps a pipeline.Event for the Bubble Tea message loop.
type PipelineEventMsg struct {
	Event pipeline.Event
}
