package core

import "context"

type contextKey string

const ctxKeySource contextKey = "import_source"

// ContextWithSource records who submitted an import: the client IP for web
// uploads, "cli" for the command line tool. It ends up in the ImportRecord.
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ctxKeySource, source)
}

// SourceFromContext returns the import source, or "" when none was set.
func SourceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySource).(string); ok {
		return v
	}
	return ""
}
