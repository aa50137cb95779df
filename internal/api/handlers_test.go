package api

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/reconcile"
	"github.com/enerflow/reconciler/internal/repository"
)

func testServer(t *testing.T) (http.Handler, *sql.DB) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop().Sugar()
	recalc := reconcile.NewRecalculator(db, calc.BoundsDoubleVolume, log)
	contracts := reconcile.NewContractService(db, calc.BoundsDoubleVolume, recalc, log)
	importer := reconcile.NewImporter(db, calc.BoundsDoubleVolume, log)

	router := NewRouter(importer, contracts, recalc,
		repository.NewEnergyBalanceRepo(db), repository.NewScdeRepo(db), log, 0)
	return router, db
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func importBody(csv string) map[string]any {
	return map[string]any{
		"fileName": "balanco_jul24.csv",
		"mimeType": "text/csv",
		"origin":   "upload",
		"base64":   base64.StdEncoding.EncodeToString([]byte(csv)),
	}
}

const sampleCSV = "Cliente;Data Base;Medidor;Consumo\nACME Energia;01/07/2024;MTR-1;1000\n"

func TestCreateImportEndpoint(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/imports", importBody(sampleCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	out := decodeResponse(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Nil(t, out["replayed"])

	counts := out["counts"].(map[string]any)
	energy := counts["energyBalance"].(map[string]any)
	assert.Equal(t, float64(1), energy["inserted"])
	assert.Equal(t, []any{}, out["errors"], "errors is an empty array, not null")
	batchKey := out["importBatchId"].(string)
	require.NotEmpty(t, batchKey)

	// Same payload again replays the stored result.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/imports", importBody(sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeResponse(t, rec)
	assert.Equal(t, true, out["replayed"])
	assert.Equal(t, batchKey, out["importBatchId"])

	// And the batch is retrievable by key, in the same shape.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/imports/"+batchKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeResponse(t, rec)
	assert.Equal(t, batchKey, out["importBatchId"])
	assert.NotNil(t, out["counts"])
}

func TestCreateImportValidation(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/imports", map[string]any{"fileName": "x.csv"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/imports", map[string]any{
		"fileName": "x.bin",
		"mimeType": "application/pdf",
		"base64":   base64.StdEncoding.EncodeToString([]byte("x")),
	})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/imports", map[string]any{
		"fileName": "x.csv",
		"base64":   "not base64!!!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetImportNotFound(t *testing.T) {
	h, _ := testServer(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/imports/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectEnergyUpsertEndpoint(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/energy-balances", map[string]any{
		"clientName":     "ACME",
		"meter":          "MTR-1",
		"referenceDate":  "01/07/2024",
		"consumption":    "200.000",
		"contractVolume": "50",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeResponse(t, rec)
	data := out["data"].(map[string]any)
	assert.Equal(t, "100", data["billable"])
	assert.Equal(t, "Compra", data["cp_code"])
}

func TestDirectEnergyUpsertRequiresClientAndDate(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/energy-balances", map[string]any{"meter": "MTR-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/v1/energy-balances", map[string]any{
		"clientName": "ACME", "referenceDate": "sem data",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDirectScdeUpsertEndpoint(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/scde", map[string]any{
		"clientName": "ACME",
		"group":      "GRP-1",
		"period":     "2024 - 07",
		"consumed":   "12.345,6",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeResponse(t, rec)
	data := out["data"].(map[string]any)
	assert.Equal(t, "2024-07", data["period_ref"])
	assert.Equal(t, "12345.6", data["consumed"])
}

func TestDirectScdeUpsertOriginList(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/scde", map[string]any{
		"clientName": "ACME",
		"group":      "GRP-1",
		"period":     "2024-07",
		"consumed":   "100",
		"origin":     []string{"SCDE", "manual"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeResponse(t, rec)
	data := out["data"].(map[string]any)
	assert.Equal(t, "SCDE,manual", data["origin"])
}

func TestContractEndpoints(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/contracts", map[string]any{
		"clientName":          "ACME",
		"groupName":           "MTR-1",
		"contractedVolumeMwh": "50",
		"averagePriceMwh":     "140,00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeResponse(t, rec)["data"].(map[string]any)
	id := int64(data["id"].(float64))
	assert.NotEmpty(t, data["contract_code"])
	assert.Equal(t, "100", data["max_demand"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/contracts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/contracts/%d", id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/v1/contracts/%d", id), map[string]any{
		"contractedVolumeMwh": "120",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = decodeResponse(t, rec)["data"].(map[string]any)
	assert.Equal(t, "240", data["max_demand"])

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/contracts/%d", id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/contracts/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecalculateEndpoint(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/contracts", map[string]any{
		"clientName":          "ACME",
		"groupName":           "MTR-1",
		"contractedVolumeMwh": "50",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decodeResponse(t, rec)["data"].(map[string]any)["id"].(float64))

	rec = doJSON(t, h, http.MethodPut, "/api/v1/energy-balances", map[string]any{
		"clientName":    "ACME",
		"meter":         "MTR-1",
		"referenceDate": "01/07/2024",
		"consumption":   "200000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/contracts/%d/recalculate", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeResponse(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["updated"])
}

func TestRecalculateEnergyBalanceEndpoint(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/energy-balances", map[string]any{
		"clientName":    "ACME",
		"meter":         "MTR-1",
		"referenceDate": "01/07/2024",
		"consumption":   "200000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeResponse(t, rec)["data"].(map[string]any)
	id := int64(data["id"].(float64))
	assert.Nil(t, data["billable"], "no contract terms yet")

	// A contract created afterwards contributes volume on recalculation.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/contracts", map[string]any{
		"clientName":          "ACME",
		"groupName":           "MTR-1",
		"contractedVolumeMwh": "50",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/energy-balances/%d/recalculate", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = decodeResponse(t, rec)["data"].(map[string]any)
	assert.Equal(t, "100", data["billable"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/energy-balances/9999/recalculate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContractComplianceBooleanForms(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/contracts", map[string]any{
		"clientName":        "ACME",
		"complianceNf":      "true",
		"complianceInvoice": 1,
		"complianceOverall": false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeResponse(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["compliance_nf"])
	assert.Equal(t, true, data["compliance_invoice"])
	assert.Equal(t, false, data["compliance_overall"])
}

func TestListAndReportEndpoints(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/imports", importBody(sampleCSV))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/energy-balances?month=2024-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeResponse(t, rec)
	assert.Equal(t, float64(1), out["total"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/energy-balances?month=2024-08", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeResponse(t, rec)["total"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/energy-balances", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/summary/2024-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeResponse(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(1), summary["rows"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/compliance", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/opportunities?month=2024-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOpportunityReportFlagsShortfalls(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/energy-balances", map[string]any{
		"clientName":     "ACME",
		"meter":          "MTR-1",
		"referenceDate":  "01/07/2024",
		"consumption":    "200000",
		"contractVolume": "50",
		"price":          "150",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/opportunities?month=2024-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeResponse(t, rec)
	require.Equal(t, float64(1), out["total"], rec.Body.String())

	item := out["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "106", item["net"])
	assert.Equal(t, "15900", item["estimatedCost"])
}
