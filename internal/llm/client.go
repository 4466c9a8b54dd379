package llm

import "context"

// Client is the interface the rest of the system uses to reach the
// reasoning service. Implementations must honor the context deadline;
// callers rely on it as the only cancellation mechanism.
type Client interface {
	// Generate sends a chat completion request and returns the reply.
	Generate(ctx context.Context, req Request) (*Reply, error)

	// Ping checks if the service is reachable.
	Ping(ctx context.Context) error
}
