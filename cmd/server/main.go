package main

import (
	"log"
	"net/http"

	"github.com/lmb/settlements/internal/api"
	"github.com/lmb/settlements/internal/config"
	"github.com/lmb/settlements/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	auditRepo := repository.NewAuditRepo(db)
	uploadRepo := repository.NewUploadRepo(db)

	router := api.NewRouter(auditRepo, uploadRepo)

	log.Printf("Amazon Settlement Reporting API")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  GET    /api/v1/invoices")
	log.Printf("  GET    /api/v1/invoices/{id}/rows")
	log.Printf("  GET    /api/v1/uploads")
	log.Printf("  GET    /api/v1/settlements/{id}/audit-match")
	log.Printf("  POST   /api/v1/reconcile/transactions")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
