package events

import "context"

type runKey struct{}

// WithRunID returns a context whose events are attributed to the run or
// session id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runKey{}, id)
}

// RunID returns the id set by WithRunID, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runKey{}).(string)
	return id
}

// Attribute adds the run id carried by ctx to metadata unless metadata
// already names one. It allocates the map when needed.
func Attribute(ctx context.Context, metadata map[string]any) map[string]any {
	id := RunID(ctx)
	if id == "" {
		return metadata
	}
	if _, ok := metadata["run_id"]; ok {
		return metadata
	}
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	metadata["run_id"] = id
	return metadata
}
