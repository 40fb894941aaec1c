package web

// errors.go maps pipeline errors to responses. Every failure is logged with
// the technical error and request id, then answered with core.MapError's
// user message in the format the client asked for.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/logging"
	"github.com/JonMunkholm/valuedcustomer/internal/web/views"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code"`
	Action  string `json:"action,omitempty"`
}

// respondError logs err and writes the mapped user message with its status.
// Details carry the technical text only for client errors, so driver
// internals never reach the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := msg.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if rerr := views.ErrorAlert(msg).Render(r.Context(), w); rerr != nil {
			s.logRenderError(r, rerr)
		}
		return
	}

	resp := ErrorResponse{
		Error:  msg.Message,
		Code:   msg.Code,
		Action: msg.Action,
	}
	if status < http.StatusInternalServerError && core.IsUserFacing(err) {
		resp.Details = err.Error()
	}
	writeJSONStatus(w, status, resp)
}

func (s *Server) logRenderError(r *http.Request, err error) {
	logging.FromContext(r.Context()).Error("render failed", "path", r.URL.Path, "error", err)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:  "Method not allowed",
		Code:   "HTTP405",
		Action: "Use " + allowedMethod(r.URL.Path),
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusNotFound, ErrorResponse{
		Error: "Not found",
		Code:  "HTTP404",
	})
}

func allowedMethod(path string) string {
	if strings.HasPrefix(path, "/api/imports") {
		return http.MethodGet
	}
	if strings.HasPrefix(path, "/api/") {
		return http.MethodPost
	}
	return http.MethodGet
}

// isHTMX reports whether the request came from HTMX.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsCSV reports whether the client asked for the confirmation CSV.
func wantsCSV(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are logged since the
// header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
