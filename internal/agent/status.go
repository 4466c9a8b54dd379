package agent

import (
	"fmt"
	"strings"

	"github.com/reverie-agent/reverie/internal/graph"
	"github.com/reverie-agent/reverie/internal/memstore"
)

// Status is a point-in-time view of the core's internal state.
type Status struct {
	BufferTurns     int                   `json:"buffer_turns"`
	TokenEstimate   int                   `json:"token_estimate"`
	GraphNodes      int                   `json:"graph_nodes"`
	GraphEdges      int                   `json:"graph_edges"`
	Memory          memstore.StatusCounts `json:"memory"`
	DegradedStorage bool                  `json:"degraded_storage"`
}

// Status reports buffer, graph, and store state.
func (c *Core) Status() Status {
	nodes, edges := c.deps.Graph.Counts()
	return Status{
		BufferTurns:     c.deps.Stream.Len(),
		TokenEstimate:   c.deps.Stream.EstimateTokens(),
		GraphNodes:      nodes,
		GraphEdges:      edges,
		Memory:          c.deps.Store.Counts(),
		DegradedStorage: c.degraded.Load(),
	}
}

// String renders the status for the STATUS tool and CLI output.
func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Buffer: %d turns (~%d tokens)\n", s.BufferTurns, s.TokenEstimate)
	fmt.Fprintf(&b, "Graph: %d entities, %d relationships\n", s.GraphNodes, s.GraphEdges)
	fmt.Fprintf(&b, "Memory: %d experiences, %d facts\n", s.Memory.Experiences, s.Memory.Facts)
	fmt.Fprintf(&b, "Tasks: %d pending, %d done", s.Memory.TasksPending, s.Memory.TasksDone)
	if s.DegradedStorage {
		b.WriteString("\nWarning: storage is degraded")
	}
	return b.String()
}

// GraphSnapshot exposes the full graph for inspection.
func (c *Core) GraphSnapshot() ([]graph.Node, []graph.Edge, error) {
	return c.deps.Graph.Snapshot()
}

// Reset flushes the buffer and bulk-deletes every persisted record
// family. It returns a confirmation string.
func (c *Core) Reset() (string, error) {
	c.deps.Stream.Replace(nil)
	if err := c.deps.Store.Reset(); err != nil {
		c.degraded.Store(true)
		return "", fmt.Errorf("reset memory store: %w", err)
	}
	if err := c.deps.Graph.Reset(); err != nil {
		c.degraded.Store(true)
		return "", fmt.Errorf("reset graph: %w", err)
	}
	c.degraded.Store(false)
	c.logger.Info("full reset complete")
	return "All memory cleared: buffer, experiences, facts, tasks, and graph.", nil
}
