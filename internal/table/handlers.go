package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/tablescan/internal/scanning"
)

// maxFormSize bounds a scan upload, enough for several high-resolution phone photos
const maxFormSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func jsonWarning(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"warning": message})
}

// writeServiceError maps service failures onto HTTP responses
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *scanning.APIError
	var parseErr *scanning.ParseError

	switch {
	case errors.Is(err, scanning.ErrMissingAPIKey):
		jsonError(w, http.StatusUnauthorized, scanning.ErrMissingAPIKey.Error())
	case errors.Is(err, ErrColumnRequired), errors.Is(err, ErrNoFiles), errors.Is(err, ErrUnreadableFile):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoProducts):
		jsonWarning(w, "No products found in the images")
	case errors.Is(err, ErrNoData):
		jsonWarning(w, "No data to export")
	case errors.Is(err, ErrNoTable):
		jsonError(w, http.StatusNotFound, "No table has been scanned yet")
	case errors.Is(err, ErrRowNotFound), errors.Is(err, ErrPageNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scanning.ErrUnrecognizedEnvelope):
		jsonError(w, http.StatusBadGateway, "Error: Could not find data in AI response. Check server logs for details.")
	case errors.As(err, &parseErr):
		jsonError(w, http.StatusBadGateway, parseErr.Error())
	case errors.As(err, &apiErr):
		jsonError(w, http.StatusBadGateway, apiErr.Error())
	default:
		jsonError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleScan handles the multipart scan upload
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "Upload is too large. Maximum size is 50MB."
		}
		jsonError(w, http.StatusBadRequest, errorMsg)
		return
	}

	req := ScanRequest{
		Comment: r.FormValue("comment"),
		Column:  r.FormValue("column"),
	}
	if pro := r.FormValue("pro"); pro != "" {
		parsed, err := strconv.ParseBool(pro)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "Invalid pro flag")
			return
		}
		req.Pro = parsed
	}

	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "error", err, "filename", header.Filename)
			jsonError(w, http.StatusBadRequest, "Error reading file. Please try again.")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}

		req.Files = append(req.Files, Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	table, err := s.service.Scan(r.Context(), req)
	if err != nil {
		slog.Error("Error scanning files", "files", len(req.Files), "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, table)
}

// handleGetTable returns the current table
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	table, err := s.service.GetTable()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleReplaceRows stores the edited rows
func (s *Server) handleReplaceRows(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rows []Row `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	table, err := s.service.ReplaceRows(req.Rows)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleDeleteRow removes one row
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		corsError(w, "Invalid row index", http.StatusBadRequest)
		return
	}

	table, err := s.service.DeleteRow(index)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleGetPage serves a page preview
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		corsError(w, "Invalid page number", http.StatusBadRequest)
		return
	}

	data, err := s.service.GetPage(n)
	if err != nil {
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func writeDownload(w http.ResponseWriter, filename, contentType string, data []byte) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// handleExportCSV downloads the table as CSV
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.service.ExportCSV()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeDownload(w, filename, "text/csv; charset=utf-8", data)
}

// handleExportXLSX downloads the table as a workbook
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.service.ExportXLSX()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeDownload(w, filename, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// handleClipboard returns the table as tab separated text
func (s *Server) handleClipboard(w http.ResponseWriter, r *http.Request) {
	text, err := s.service.ClipboardText()
	if errors.Is(err, ErrNoData) {
		jsonWarning(w, "No data to copy")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)
}

// handleGetSettings reports credential and model state
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.Settings()
	if err != nil {
		slog.Error("Error getting settings", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSetAPIKey stores the credential
func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.SetAPIKey(req.APIKey); err != nil {
		if errors.Is(err, scanning.ErrMissingAPIKey) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleClearAPIKey forgets the stored credential
func (s *Server) handleClearAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearAPIKey(); err != nil {
		writeServiceError(w, err)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetModel stores the model preference
func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pro bool `json:"pro"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.SetProModel(req.Pro); err != nil {
		writeServiceError(w, err)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
