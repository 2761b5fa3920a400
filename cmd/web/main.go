package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"examlms/internal/app"
	"examlms/internal/db"
	"examlms/internal/events"
	"examlms/internal/exam"
)

func main() {
	cfg := app.LoadConfig()

	dbConn, err := db.OpenWithConfig(context.Background(), db.Driver(cfg.DBDriver), cfg.DBDSN, db.Config{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	var publisher exam.CompletionPublisher
	if cfg.AMQPURL != "" {
		p, err := events.Connect(cfg.AMQPURL)
		if err != nil {
			log.Printf("amqp error: %v", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	}

	r := app.NewRouter(cfg, dbConn, db.Driver(cfg.DBDriver), publisher)

	log.Printf("examlms web listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
