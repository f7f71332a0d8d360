package shipments_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/CargoLedger/internal/auth"
	"github.com/BearBump/CargoLedger/internal/invoice"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/shipments"
	"github.com/BearBump/CargoLedger/internal/shipdate"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const maxUploadSize = 32 << 20

type ShipmentsAPI struct {
	svc *shipments.Service
}

func New(svc *shipments.Service) *ShipmentsAPI {
	return &ShipmentsAPI{svc: svc}
}

// Router собирает /api: health открыт, остальное за JWT.
func (a *ShipmentsAPI) Router(authMW func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(authMW)

		r.Get("/shipments", a.List)
		r.Get("/shipments/{id}", a.Get)
		r.Post("/shipments/save", a.Save)
		r.Post("/shipments/{id}/edit", a.Edit)
		r.Post("/shipments/{id}/logs", a.AppendLog)
		r.Post("/shipments/bulk-update", a.BulkUpdate)
		r.Post("/shipments/recalculate", a.Recalculate)
		r.Post("/shipments/duplicate", a.Duplicate)
		r.Post("/shipments/invoice", a.LockInvoice)
		r.Post("/shipments/invoice/unlock", a.UnlockInvoice)

		r.Post("/sheets/load", a.LoadSheet)
		r.Post("/sheets/upload", a.UploadSheet)
		r.Get("/sheets/sessions", a.ListSessions)
		r.Delete("/sheets/sessions/{sessionId}", a.DeleteSession)
	})
	return r
}

type saveRequest struct {
	Shipments []*models.ShipmentRecord `json:"shipments"`
}

type editRequest struct {
	Changes map[string]models.Value `json:"changes"`
}

type bulkUpdateRequest struct {
	IDs   []models.RecordID `json:"ids"`
	Field string            `json:"field"`
	Value models.Value      `json:"value"`
}

type recalculateRequest struct {
	IDs    []models.RecordID `json:"ids"`
	Column string            `json:"column"`
}

type idsRequest struct {
	IDs []models.RecordID `json:"ids"`
}

type lockRequest struct {
	ID   models.RecordID `json:"id"`
	Memo string          `json:"memo"`
}

type unlockRequest struct {
	ID       models.RecordID `json:"id"`
	Password string          `json:"password"`
}

type loadSheetRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

func (a *ShipmentsAPI) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.svc.List(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ShipmentsAPI) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.Get(r.Context(), principal(r), models.ParseRecordID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *ShipmentsAPI) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.svc.Save(r.Context(), principal(r), req.Shipments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ShipmentsAPI) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := a.svc.EditRecord(r.Context(), principal(r), models.ParseRecordID(chi.URLParam(r, "id")), req.Changes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *ShipmentsAPI) AppendLog(w http.ResponseWriter, r *http.Request) {
	var entry models.AuditLogEntry
	if !decode(w, r, &entry) {
		return
	}
	rec, err := a.svc.AppendAuditEntry(r.Context(), principal(r), models.ParseRecordID(chi.URLParam(r, "id")), entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *ShipmentsAPI) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	recs, err := a.svc.BulkEdit(r.Context(), principal(r), req.IDs, req.Field, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(recs), "shipments": recs})
}

func (a *ShipmentsAPI) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if !decode(w, r, &req) {
		return
	}
	recs, err := a.svc.Recalculate(r.Context(), principal(r), req.IDs, req.Column)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(recs), "shipments": recs})
}

func (a *ShipmentsAPI) Duplicate(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decode(w, r, &req) {
		return
	}
	ids, err := a.svc.Duplicate(r.Context(), principal(r), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]models.RecordID, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.PersistedID(id))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": out})
}

func (a *ShipmentsAPI) LockInvoice(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := a.svc.LockInvoice(r.Context(), principal(r), req.ID, req.Memo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *ShipmentsAPI) UnlockInvoice(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := a.svc.UnlockInvoice(r.Context(), principal(r), req.ID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *ShipmentsAPI) LoadSheet(w http.ResponseWriter, r *http.Request) {
	var req loadSheetRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.svc.ImportSheet(r.Context(), principal(r), strings.TrimSpace(req.URL), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ShipmentsAPI) UploadSheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.Wrap(models.ErrValidation, "multipart field \"file\" is required"))
		return
	}
	defer func() { _ = file.Close() }()

	res, err := a.svc.ImportXLSX(r.Context(), principal(r), file, hdr.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ShipmentsAPI) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.svc.ListSessions(r.Context(), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *ShipmentsAPI) DeleteSession(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.DeleteSession(r.Context(), principal(r), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func principal(r *http.Request) models.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func parseFilter(r *http.Request) (models.ShipmentFilter, error) {
	q := r.URL.Query()
	f := models.ShipmentFilter{
		VehicleNumber: q.Get("vehicleNumber"),
		DriverName:    q.Get("driverName"),
		Origin:        q.Get("origin"),
		Destination:   q.Get("destination"),
		Contractor:    q.Get("contractor"),
	}
	var err error
	if f.From, err = parseDate(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		return f, err
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := shipdate.Parse(s)
	if !ok {
		return time.Time{}, errors.Wrapf(models.ErrValidation, "bad date %q", s)
	}
	return t, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errors.Wrap(models.ErrValidation, "invalid request body: "+err.Error()))
		return false
	}
	return true
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrCredentialMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrRecordLocked),
		errors.Is(err, invoice.ErrAlreadyLocked),
		errors.Is(err, invoice.ErrNotLocked):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", msg)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
