package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/web/views"
)

// maxJSONBody bounds export request bodies.
const maxJSONBody = 1 << 20

// exportFileName is the attachment name of every CSV download.
const exportFileName = "ValuedCustomer.csv"

type uploadResponse struct {
	Message             string             `json:"message"`
	BatchID             string             `json:"batchId"`
	Data                []core.AcceptedRow `json:"data"`
	InsertedIdentifiers []string           `json:"insertedIdentifiers"`
	Discarded           int                `json:"discarded"`
	CSVContent          string             `json:"csvContent"`
}

type exportRequest struct {
	InsertedIdentifiers []string `json:"insertedIdentifiers"`
}

type customerExportRequest struct {
	Identifiers []string `json:"identifiers"`
}

type exportResponse struct {
	Message    string         `json:"message"`
	Customers  []customerJSON `json:"customers"`
	CSVContent string         `json:"csvContent"`
}

type customerJSON struct {
	CustomerID   string    `json:"customerId"`
	CustomerName string    `json:"customerName"`
	MotherCode   string    `json:"motherCode"`
	Group        string    `json:"group"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toCustomerJSON(rows []core.Customer) []customerJSON {
	out := make([]customerJSON, len(rows))
	for i, c := range rows {
		out[i] = customerJSON{
			CustomerID:   c.Identifier.String(),
			CustomerName: c.Name,
			MotherCode:   c.MotherCode,
			Group:        c.Group,
			Active:       c.Active,
			CreatedAt:    c.CreatedAt,
		}
	}
	return out
}

// handleUpload imports the CSV file carried by a multipart body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, r, readBodyError(err))
		return
	}

	ctx := withRequestSource(r.Context(), r)
	result, err := s.service.ImportUpload(ctx, body, r.Header.Get("Content-Type"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	csvContent := core.NewExporter(core.ModeRegister).Render(result.Customers)

	switch {
	case wantsCSV(r):
		writeCSV(w, csvContent)
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := views.ImportSummary(result).Render(r.Context(), w); err != nil {
			s.logRenderError(r, err)
		}
	default:
		if result.Accepted == nil {
			result.Accepted = []core.AcceptedRow{}
		}
		writeJSON(w, uploadResponse{
			Message:             importMessage(result),
			BatchID:             result.BatchID,
			Data:                result.Accepted,
			InsertedIdentifiers: result.Identifiers(),
			Discarded:           result.Discarded,
			CSVContent:          csvContent,
		})
	}
}

func importMessage(result *core.ImportResult) string {
	if len(result.Accepted) == 0 {
		return "No customers imported"
	}
	return fmt.Sprintf("Imported %d customers", len(result.Accepted))
}

// handleExport re-renders previously inserted rows as the register CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.Export(r.Context(), req.InsertedIdentifiers, core.ModeRegister)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, exportResponse{
		Message:    fmt.Sprintf("Exported %d customers", len(result.Customers)),
		Customers:  toCustomerJSON(result.Customers),
		CSVContent: result.CSV,
	})
}

// handleCustomerExport downloads the status CSV for a set of identifiers.
func (s *Server) handleCustomerExport(w http.ResponseWriter, r *http.Request) {
	var req customerExportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.Export(r.Context(), req.Identifiers, core.ModeStatus)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeCSV(w, result.CSV)
}

// handleImports lists recent imports, newest first.
func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	records, err := s.service.RecentImports(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if records == nil {
		records = []core.ImportRecord{}
	}
	writeJSON(w, map[string]any{"imports": records})
}

func writeCSV(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName+`"`)
	_, _ = io.WriteString(w, content)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, mbe.Limit)
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	return nil
}

func readBodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: upload exceeds %d bytes", core.ErrFileTooLarge, mbe.Limit)
	}
	return fmt.Errorf("%w: read body: %v", core.ErrMalformedUpload, err)
}
