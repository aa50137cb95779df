// Package api exposes the HTTP surface: spreadsheet imports, direct record
// upserts, contract management and reports.
package api

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/reconcile"
	"github.com/enerflow/reconciler/internal/repository"
)

// DefaultMaxImportBytes caps the decoded spreadsheet payload at 50 MiB.
const DefaultMaxImportBytes = 50 << 20

// acceptedMimeTypes lists the spreadsheet content types the import endpoint
// takes. Unknown binary uploads pass as octet-stream and fail at workbook
// load instead.
var acceptedMimeTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
	"application/octet-stream": true,
	"text/csv":                 true,
	"text/plain":               true,
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	importer       *reconcile.Importer
	contracts      *reconcile.ContractService
	recalc         *reconcile.Recalculator
	energyRepo     *repository.EnergyBalanceRepo
	scdeRepo       *repository.ScdeRepo
	log            *zap.SugaredLogger
	maxImportBytes int64
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorw("encode response", "error", err)
	}
}

func (h *Handlers) writeData(w http.ResponseWriter, status int, v any) {
	h.writeJSON(w, status, map[string]any{"success": true, "data": v})
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// --- Imports ---

func (h *Handlers) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.FileName == "" || req.Base64 == "" {
		h.writeError(w, http.StatusBadRequest, "fileName and base64 are required")
		return
	}

	mime := strings.ToLower(strings.TrimSpace(req.MimeType))
	if mime != "" && !acceptedMimeTypes[strings.Split(mime, ";")[0]] {
		h.writeError(w, http.StatusUnsupportedMediaType, "unsupported mime type "+mime)
		return
	}

	if int64(base64.StdEncoding.DecodedLen(len(req.Base64))) > h.maxImportBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the import size limit")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Base64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "base64 field is not valid base64")
		return
	}

	batch, replayed, err := h.importer.Import(r.Context(), reconcile.ImportRequest{
		Data:           data,
		FileName:       req.FileName,
		MimeType:       mime,
		Origin:         req.Origin,
		Strategy:       domain.OverwriteStrategy(req.OverwriteStrategy),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		var verr *reconcile.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusUnprocessableEntity, verr.Msg)
			return
		}
		h.log.Errorw("import failed", "file", req.FileName, "error", err)
		h.writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, newImportResponse(batch, replayed))
}

func (h *Handlers) GetImport(w http.ResponseWriter, r *http.Request) {
	batch, err := h.importer.Batch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batch == nil {
		h.writeError(w, http.StatusNotFound, "import batch not found")
		return
	}
	h.writeJSON(w, http.StatusOK, newImportResponse(batch, false))
}

// --- Direct upserts ---

func (h *Handlers) UpsertEnergyBalance(w http.ResponseWriter, r *http.Request) {
	var req energyUpsertRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	row, msg := req.toRow()
	if msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	stored, counts, err := h.importer.UpsertEnergy(r.Context(), row, domain.OverwriteStrategy(req.OverwriteStrategy))
	if err != nil {
		h.upsertError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "counts": counts, "data": stored})
}

func (h *Handlers) UpsertScde(w http.ResponseWriter, r *http.Request) {
	var req scdeUpsertRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	row, msg := req.toRow()
	if msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	stored, counts, err := h.importer.UpsertScde(r.Context(), row, domain.OverwriteStrategy(req.OverwriteStrategy))
	if err != nil {
		h.upsertError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "counts": counts, "data": stored})
}

// RecalculateEnergyBalance re-derives one stored balance against the current
// contract terms, for row-level edits applied outside the import path.
func (h *Handlers) RecalculateEnergyBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "energy balance id must be an integer")
		return
	}
	eb, err := h.recalc.RecalcBalance(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "energy balance not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeData(w, http.StatusOK, eb)
}

func (h *Handlers) upsertError(w http.ResponseWriter, err error) {
	var verr *reconcile.ValidationError
	if errors.As(err, &verr) {
		h.writeError(w, http.StatusUnprocessableEntity, verr.Msg)
		return
	}
	h.log.Errorw("direct upsert failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, "upsert failed")
}

// --- Listings ---

func (h *Handlers) ListEnergyBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := q.Get("month")
	if month == "" {
		h.writeError(w, http.StatusBadRequest, "month query parameter is required (YYYY-MM)")
		return
	}
	from, to, ok := parseMonth(month)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	rows, total, err := h.energyRepo.ListByMonth(r.Context(), repository.MonthFilter{
		From:  from,
		To:    to,
		Page:  parseIntDefault(q.Get("page"), 1),
		Limit: parseIntDefault(q.Get("limit"), 50),
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "total": total, "data": rows})
}

func (h *Handlers) ListScde(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, total, err := h.scdeRepo.List(r.Context(), repository.ScdeFilter{
		Period: q.Get("period"),
		Group:  q.Get("group"),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "total": total, "data": rows})
}

// --- Contracts ---

func (h *Handlers) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	c, err := h.contracts.Create(r.Context(), req.toInput())
	if err != nil {
		if errors.Is(err, reconcile.ErrCodeExhausted) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeData(w, http.StatusCreated, c)
}

func (h *Handlers) ListContracts(w http.ResponseWriter, r *http.Request) {
	list, err := h.contracts.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeData(w, http.StatusOK, list)
}

func (h *Handlers) GetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contractID(w, r)
	if !ok {
		return
	}
	c, err := h.contracts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		h.writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	h.writeData(w, http.StatusOK, c)
}

func (h *Handlers) UpdateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contractID(w, r)
	if !ok {
		return
	}
	var req contractRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	c, err := h.contracts.Update(r.Context(), id, req.toInput())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "contract not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeData(w, http.StatusOK, c)
}

func (h *Handlers) DeleteContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contractID(w, r)
	if !ok {
		return
	}
	if err := h.contracts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "contract not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeData(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (h *Handlers) RecalculateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contractID(w, r)
	if !ok {
		return
	}
	c, err := h.contracts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		h.writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	if c.GroupName == "" {
		h.writeError(w, http.StatusUnprocessableEntity, "contract has no group to recalculate")
		return
	}

	updated, err := h.recalc.RecalcContractGroup(r.Context(), c.GroupName)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeData(w, http.StatusOK, map[string]any{"group": c.GroupName, "updated": updated})
}

func (h *Handlers) contractID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "contract id must be an integer")
		return 0, false
	}
	return id, true
}

// --- Reports ---

func (h *Handlers) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	from, to, ok := parseMonth(month)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	summary, err := h.energyRepo.SummarizeMonth(r.Context(), from, to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"month":   from.Format("2006-01"),
		"data":    summary,
	})
}

func (h *Handlers) ComplianceReport(w http.ResponseWriter, r *http.Request) {
	list, err := h.contracts.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]complianceItem, 0, len(list))
	compliant := 0
	for i := range list {
		c := &list[i]
		ok := boolVal(c.ComplianceNF) && boolVal(c.ComplianceInvoice) && boolVal(c.ComplianceOverall)
		if ok {
			compliant++
		}
		items = append(items, complianceItem{
			ContractCode:      c.ContractCode,
			ClientName:        c.ClientName,
			GroupName:         c.GroupName,
			Status:            c.Status,
			ComplianceNF:      c.ComplianceNF,
			ComplianceInvoice: c.ComplianceInvoice,
			ComplianceOverall: c.ComplianceOverall,
			Compliant:         ok,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"total":     len(items),
		"compliant": compliant,
		"data":      items,
	})
}

// OpportunityReport lists the balances of a month whose billable energy hit
// the contract ceiling, meaning the shortfall must be purchased on the spot
// market.
func (h *Handlers) OpportunityReport(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		h.writeError(w, http.StatusBadRequest, "month query parameter is required (YYYY-MM)")
		return
	}
	from, to, ok := parseMonth(month)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	rows, _, err := h.energyRepo.ListByMonth(r.Context(), repository.MonthFilter{
		From:  from,
		To:    to,
		Page:  1,
		Limit: 500,
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]opportunityItem, 0)
	for i := range rows {
		if rows[i].CpCode == calc.CpMustBuy {
			items = append(items, newOpportunity(&rows[i]))
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"month":   from.Format("2006-01"),
		"total":   len(items),
		"data":    items,
	})
}

func boolVal(b *bool) bool {
	return b != nil && *b
}
