package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/web/middleware"
)

// withRequestSource tags ctx with the client address for the import record.
func withRequestSource(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithSource(ctx, middleware.ClientIP(r))
}
