package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/reconcile"
	"github.com/enerflow/reconciler/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	importer *reconcile.Importer,
	contracts *reconcile.ContractService,
	recalc *reconcile.Recalculator,
	energyRepo *repository.EnergyBalanceRepo,
	scdeRepo *repository.ScdeRepo,
	log *zap.SugaredLogger,
	maxImportBytes int64,
) http.Handler {
	if maxImportBytes <= 0 {
		maxImportBytes = DefaultMaxImportBytes
	}
	h := &Handlers{
		importer:       importer,
		contracts:      contracts,
		recalc:         recalc,
		energyRepo:     energyRepo,
		scdeRepo:       scdeRepo,
		log:            log,
		maxImportBytes: maxImportBytes,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Spreadsheet imports.
		r.Post("/imports", h.CreateImport)
		r.Get("/imports/{batchID}", h.GetImport)

		// Direct record writes.
		r.Put("/energy-balances", h.UpsertEnergyBalance)
		r.Post("/energy-balances/{id}/recalculate", h.RecalculateEnergyBalance)
		r.Put("/scde", h.UpsertScde)

		// Listings.
		r.Get("/energy-balances", h.ListEnergyBalances)
		r.Get("/scde", h.ListScde)

		// Contracts.
		r.Post("/contracts", h.CreateContract)
		r.Get("/contracts", h.ListContracts)
		r.Get("/contracts/{id}", h.GetContract)
		r.Put("/contracts/{id}", h.UpdateContract)
		r.Delete("/contracts/{id}", h.DeleteContract)
		r.Post("/contracts/{id}/recalculate", h.RecalculateContract)

		// Reports.
		r.Get("/reports/summary/{month}", h.MonthlySummary)
		r.Get("/reports/compliance", h.ComplianceReport)
		r.Get("/reports/opportunities", h.OpportunityReport)
	})

	return r
}
