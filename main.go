package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"miprojet-payment-service/internal/config"
	"miprojet-payment-service/internal/db"
	"miprojet-payment-service/internal/event"
	"miprojet-payment-service/internal/gateway"
	"miprojet-payment-service/internal/initiation"
	"miprojet-payment-service/internal/kafka"
	"miprojet-payment-service/internal/logging"
	"miprojet-payment-service/internal/metrics"
	"miprojet-payment-service/internal/reconcile"
	"miprojet-payment-service/internal/webhook"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := config.MustLoadConfig("./config")

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	connStr := db.GetConnStr(cfg.Database)
	db.RunMigrations(connStr, "./migrations")

	dbpool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	repo := db.NewPaymentRepository(dbpool)

	var publisher *event.Publisher
	if cfg.Kafka.Broker.URL != "" {
		writer := kafka.NewWriter(cfg.Kafka)
		defer writer.Close()
		publisher = event.NewPublisher(writer, logger)
	} else {
		publisher = event.NewPublisher(nil, logger)
	}

	engine := reconcile.NewEngine(repo, publisher, logger)

	gatewayClient := gateway.NewClient(cfg.Gateway, logger)
	initiator := initiation.NewInitiator(repo, gatewayClient, logger)

	fedapayHandler := webhook.NewFedapayHandler(engine, config.Get("FEDAPAY_WEBHOOK_SECRET", ""), logger)
	moneyFusionHandler := webhook.NewMoneyFusionHandler(engine, config.Get("MONEYFUSION_WEBHOOK_SECRET", ""), logger)
	paymentHandler := webhook.NewPaymentHandler(initiator, repo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /functions/fedapay-webhook", fedapayHandler.Handle)
	mux.HandleFunc("POST /functions/money-fusion-webhook", moneyFusionHandler.Handle)
	mux.HandleFunc("POST /functions/money-fusion-payment", paymentHandler.Initiate)
	mux.HandleFunc("GET /payments/{id}", paymentHandler.GetStatus)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	logger.Info("Starting payment service", "port", port)
	log.Fatal(http.ListenAndServe(":"+port, mux))
}
