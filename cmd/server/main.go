package main

import (
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/api"
	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/reconcile"
	"github.com/enerflow/reconciler/internal/repository"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	port := envDefault("PORT", "8080")
	dbPath := envDefault("DB_PATH", "enerflow.db")

	bounds, err := calc.ParseBoundsStrategy(envDefault("BOUNDS_STRATEGY", string(calc.BoundsDoubleVolume)))
	if err != nil {
		log.Fatalw("invalid BOUNDS_STRATEGY", "error", err)
	}

	maxImportBytes := int64(api.DefaultMaxImportBytes)
	if v := os.Getenv("MAX_IMPORT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			log.Fatalw("invalid MAX_IMPORT_BYTES", "value", v)
		}
		maxImportBytes = n
	}

	log.Infow("initializing database", "path", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalw("init db", "error", err)
	}
	defer db.Close()

	energyRepo := repository.NewEnergyBalanceRepo(db)
	scdeRepo := repository.NewScdeRepo(db)

	recalc := reconcile.NewRecalculator(db, bounds, log)
	contracts := reconcile.NewContractService(db, bounds, recalc, log)
	importer := reconcile.NewImporter(db, bounds, log)

	router := api.NewRouter(importer, contracts, recalc, energyRepo, scdeRepo, log, maxImportBytes)

	log.Infow("enerflow reconciler listening",
		"port", port,
		"api_base", "/api/v1",
		"bounds_strategy", bounds,
		"max_import_bytes", maxImportBytes)

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
