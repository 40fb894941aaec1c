// Package views renders the upload page and the HTMX fragments returned by
// the upload endpoint.
package views

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

const htmxSrc = "https://unpkg.com/htmx.org@1.9.12"

// UploadPage is the single-page import form. The form posts to
// /api/upload with HTMX and swaps the result into #result.
func UploadPage(maxBytes int64) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Valued customer import</title>
<script src="%s"></script>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
table { border-collapse: collapse; width: 100%%; }
td, th { border: 1px solid #ccc; padding: .25rem .5rem; text-align: left; }
.error { color: #a00; }
</style>
</head>
<body>
<h1>Valued customer import</h1>
<p>Upload a CSV whose first row is exactly <code>%s</code>. Files up to %s are accepted.</p>
<form hx-post="/api/upload" hx-encoding="multipart/form-data" hx-target="#result">
<input type="file" name="%s" accept=".csv,text/csv" required>
<button type="submit">Import</button>
</form>
<div id="result"></div>
</body>
</html>
`,
			htmxSrc,
			templ.EscapeString("Customer Name,Mother Code,Group"),
			formatBytes(maxBytes),
			core.UploadFormField,
		)
		return err
	})
}

// ImportSummary lists the rows an import accepted.
func ImportSummary(result *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		e := &errWriter{w: w}
		e.printf(`<div class="summary"><p>Imported %d customers from %s`,
			len(result.Accepted), templ.EscapeString(result.FileName))
		if result.Discarded > 0 {
			e.printf(`, skipped %d rows without a customer name`, result.Discarded)
		}
		e.printf(`.</p>`)

		if len(result.Accepted) > 0 {
			e.printf(`<table><thead><tr><th>Line</th><th>Customer ID</th><th>Customer Name</th><th>Mother Code</th><th>Group</th></tr></thead><tbody>`)
			for _, row := range result.Accepted {
				e.printf(`<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
					row.Line,
					templ.EscapeString(row.CustomerID),
					templ.EscapeString(row.CustomerName),
					templ.EscapeString(row.MotherCode),
					templ.EscapeString(row.Group),
				)
			}
			e.printf(`</tbody></table>`)
		}
		e.printf(`</div>`)
		return e.err
	})
}

// ErrorAlert renders a mapped error for HTMX targets.
func ErrorAlert(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="error" role="alert"><p>%s</p><p>%s</p><small>Code: %s</small></div>`,
			templ.EscapeString(msg.Message),
			templ.EscapeString(msg.Action),
			templ.EscapeString(msg.Code),
		)
		return err
	})
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func formatBytes(n int64) string {
	const mb = 1 << 20
	if n >= mb && n%mb == 0 {
		return strconv.FormatInt(n/mb, 10) + " MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
