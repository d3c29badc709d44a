package capture

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ocrdesk/invoice-capture/internal/geometry"
	"github.com/ocrdesk/invoice-capture/internal/overview"
	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// maxUploadSize bounds multipart uploads; scanned batches of A4 pages
// stay well under this.
const maxUploadSize = int64(100 << 20) // 100MB

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// writeJSON encodes a response body.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// errorJSON writes an {"error": ...} body the frontend shows as a
// blocking notification.
func errorJSON(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// pathInt parses an integer path segment.
func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(r.PathValue(name))
}

// sessionFor resolves the session named in the request path, writing
// the error response itself when the session is unknown.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, err := s.service.Session(r.PathValue("name"))
	if err != nil {
		corsError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- profiles ----

type profileSummary struct {
	Name    string `json:"name"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.service.ListProfiles()
	if err != nil {
		slog.Error("Error listing profiles", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	summaries := make([]profileSummary, 0, len(profiles))
	for _, p := range profiles {
		summaries = append(summaries, profileSummary{
			Name:    p.Name,
			Created: p.Created.Format("2006-01-02T15:04:05"),
			Updated: p.Updated.Format("2006-01-02T15:04:05"),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errorJSON(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	name := r.FormValue("name")
	var zones []zone.Zone
	if err := json.Unmarshal([]byte(r.FormValue("zones")), &zones); err != nil {
		errorJSON(w, http.StatusBadRequest, "Invalid JSON in zones")
		return
	}

	var image []byte
	var imageType string
	if f, header, err := r.FormFile("image"); err == nil {
		defer f.Close()
		imageType = header.Header.Get("Content-Type")
		image, err = io.ReadAll(f)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "Error reading image")
			return
		}
	}

	if err := s.service.SaveProfile(name, zones, image, imageType); err != nil {
		slog.Error("Error saving profile", "profile", name, "error", err)
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	profile, err := s.service.Profile(name)
	if err != nil {
		corsError(w, "Profile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     profile.Name,
		"zones":    profile.Zones,
		"imageUrl": "/api/profiles/" + profile.Name + "/image",
	})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteProfile(r.PathValue("name")); err != nil {
		corsError(w, "Profile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleProfileImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.ProfileImage(r.PathValue("name"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// ---- export-template fields ----

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.service.ExportFields()
	if err != nil {
		slog.Error("Error listing export fields", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleActiveFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.service.ActiveFields()
	if err != nil {
		slog.Error("Error listing active fields", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleSaveFields(w http.ResponseWriter, r *http.Request) {
	var fields []ExportField
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.service.SaveExportFields(fields); err != nil {
		slog.Error("Error saving export fields", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// ---- ad-hoc OCR ----

func (s *Server) handleTestOCR(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errorJSON(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("image")
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "Error reading image")
		return
	}

	var zones []zone.Zone
	if err := json.Unmarshal([]byte(r.FormValue("zones")), &zones); err != nil {
		errorJSON(w, http.StatusBadRequest, "Invalid JSON in zones")
		return
	}

	results, err := s.service.TestOCR(r.Context(), image, header.Header.Get("Content-Type"), zones)
	if err != nil {
		if errors.Is(err, ErrNoNamedZones) {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("OCR test failed", "error", err)
		errorJSON(w, http.StatusBadGateway, err.Error())
		return
	}

	type ocrResult struct {
		PropertyName string `json:"propertyName"`
		Text         string `json:"text"`
	}
	out := make([]ocrResult, 0, len(results))
	for property, text := range results {
		out = append(out, ocrResult{PropertyName: property, Text: text})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// ---- queues ----

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.service.Queues()
	if err != nil {
		slog.Error("Error listing queues", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, queues)
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.service.Queue(r.PathValue("name"))
	if err != nil {
		corsError(w, "Queue not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteQueue(r.PathValue("name")); err != nil {
		corsError(w, "Queue not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleQueueImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.QueueImage(r.PathValue("name"), r.PathValue("filename"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleOpenQueue(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.OpenQueue(r.PathValue("name"))
	if err != nil {
		corsError(w, "Queue not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

// ---- sessions ----

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errorJSON(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	name := r.FormValue("name")
	profile := r.FormValue("profile")
	if name == "" || profile == "" {
		errorJSON(w, http.StatusBadRequest, "Batch name and profile are required")
		return
	}

	var uploads []Upload
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				errorJSON(w, http.StatusBadRequest, "Error reading uploaded file")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				errorJSON(w, http.StatusInternalServerError, "Error reading uploaded file")
				return
			}
			uploads = append(uploads, Upload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	session, err := s.service.StartSession(name, profile, uploads)
	if err != nil {
		slog.Error("Error starting session", "batch", name, "error", err)
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session.View())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.SessionNames())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.service.CloseSession(r.PathValue("name"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePageImage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}
	data, contentType, err := session.PageImage(page)
	if err != nil {
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// zoneOp runs a session page/zone mutation shared by the zone
// handlers, translating the common errors.
func (s *Server) zoneOp(w http.ResponseWriter, r *http.Request, op func(session *Session, page, zoneID int) error) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}
	zoneID, err := pathInt(r, "id")
	if err != nil {
		corsError(w, "Invalid zone id", http.StatusBadRequest)
		return
	}

	if err := op(session, page, zoneID); err != nil {
		switch {
		case errors.Is(err, ErrPageIndex):
			corsError(w, "Page not found", http.StatusNotFound)
		case errors.Is(err, zone.ErrNameTaken):
			errorJSON(w, http.StatusConflict, err.Error())
		default:
			slog.Error("Zone operation failed", "error", err)
			errorJSON(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}

	var req struct {
		Rect         geometry.Rect `json:"rect"`
		PropertyName string        `json:"propertyName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := session.CreateZone(page, req.Rect, req.PropertyName)
	if err != nil {
		if errors.Is(err, zone.ErrNameTaken) {
			errorJSON(w, http.StatusConflict, err.Error())
			return
		}
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleMoveZone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.zoneOp(w, r, func(session *Session, page, zoneID int) error {
		return session.MoveZone(page, zoneID, req.X, req.Y)
	})
}

func (s *Server) handleResizeZone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction zone.ResizeDirection `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.zoneOp(w, r, func(session *Session, page, zoneID int) error {
		return session.ResizeZone(page, zoneID, req.Direction)
	})
}

func (s *Server) handleRenameZone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyName string `json:"propertyName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.zoneOp(w, r, func(session *Session, page, zoneID int) error {
		return session.RenameZone(page, zoneID, req.PropertyName)
	})
}

func (s *Server) handleToggleItemZone(w http.ResponseWriter, r *http.Request) {
	s.zoneOp(w, r, func(session *Session, page, zoneID int) error {
		return session.ToggleItemZone(page, zoneID)
	})
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	s.zoneOp(w, r, func(session *Session, page, zoneID int) error {
		return session.DeleteZone(page, zoneID)
	})
}

func (s *Server) handleApplyDelta(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}

	var req struct {
		DX          float64 `json:"dx"`
		DY          float64 `json:"dy"`
		MovedZoneID int     `json:"movedZoneId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := session.ApplyMoveDelta(page, req.DX, req.DY, req.MovedZoneID); err != nil {
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}

	var req struct {
		RowOffset float64 `json:"rowOffset"`
	}
	// An empty body means the default offset.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RowOffset <= 0 {
		req.RowOffset = s.service.RowOffset()
	}

	created, err := session.AddItemRow(page, req.RowOffset)
	if err != nil {
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}
	rowID, err := pathInt(r, "rowId")
	if err != nil {
		corsError(w, "Invalid row id", http.StatusBadRequest)
		return
	}

	if err := session.DeleteItemRow(page, rowID); err != nil {
		if errors.Is(err, zone.ErrTemplateRow) {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := session.SetValue(page, r.PathValue("property"), req.Value); err != nil {
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetLock(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}

	var req struct {
		Locked bool `json:"locked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := session.SetLocked(page, req.Locked); err != nil {
		corsError(w, "Page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOCRPage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		corsError(w, "Invalid page index", http.StatusBadRequest)
		return
	}

	if err := s.service.OCRPage(r.Context(), session.Name(), page); err != nil {
		switch {
		case errors.Is(err, ErrPageIndex):
			corsError(w, "Page not found", http.StatusNotFound)
		case errors.Is(err, ErrPageLocked), errors.Is(err, ErrOCRInFlight):
			errorJSON(w, http.StatusConflict, err.Error())
		default:
			slog.Error("OCR failed", "batch", session.Name(), "page", page, "error", err)
			errorJSON(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, session.View().Pages[page])
}

func (s *Server) handleOCRAll(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if err := s.service.OCRAll(r.Context(), session.Name()); err != nil {
		slog.Error("OCR all failed", "batch", session.Name(), "error", err)
		errorJSON(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.service.SaveSession(name); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			corsError(w, "Session not found", http.StatusNotFound)
			return
		}
		slog.Error("Error saving session", "batch", name, "error", err)
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handlePropagateSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	count, err := s.service.PropagateSession(name)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			corsError(w, "Session not found", http.StatusNotFound)
			return
		}
		slog.Error("Error propagating session", "batch", name, "error", err)
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "propagated", "count": count})
}

func (s *Server) handleExportBatch(w http.ResponseWriter, r *http.Request) {
	export, err := s.service.ExportBatch(r.PathValue("name"))
	if err != nil {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleSetSystemValues(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	session.SetSystemValues(values)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var mapping overview.FieldMapping
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	session.SetMapping(mapping)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- overview ----

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Invoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.service.UpdateInvoice(r.PathValue("id"), patch); err != nil {
		corsError(w, "Invoice not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteInvoice(r.PathValue("id")); err != nil {
		corsError(w, "Invoice not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleClearInvoices(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearInvoices(); err != nil {
		slog.Error("Error clearing invoices", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data, err := s.service.ExportInvoicesXML(req.IDs)
	if err != nil {
		slog.Error("Error exporting invoices", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write(data)
}
