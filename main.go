package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proof-verify-pipeline/config"
	"proof-verify-pipeline/embedding"
	"proof-verify-pipeline/evidence"
	"proof-verify-pipeline/handlers"
	"proof-verify-pipeline/manipulation"
	"proof-verify-pipeline/metrics"
	"proof-verify-pipeline/pipeline"
	"proof-verify-pipeline/rabbitmq"
	"proof-verify-pipeline/reviewstore"
	"proof-verify-pipeline/vlm"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	// Evidence store: Pinecone when configured, in-memory otherwise
	var store evidence.Store
	if cfg.PineconeAPIKey != "" && cfg.PineconeComplaintHost != "" {
		store = evidence.NewPineconeStore(cfg.PineconeAPIKey,
			cfg.PineconeComplaintHost, cfg.PineconeProofHost, cfg.PineconeMetadataHost)
		log.Info("using Pinecone evidence store")
	} else {
		store = evidence.NewMemStore()
		log.Warn("PINECONE_API_KEY not set, using in-memory evidence store")
	}

	// Semantic assessor
	var assessor vlm.Assessor
	switch cfg.AssessorProvider {
	case "stub":
		assessor = vlm.NewStubAssessor()
	default:
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required (or set ASSESSOR_PROVIDER=stub)")
		}
		assessor = vlm.NewOpenAIAssessor(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.AssessorTimeout)
	}
	log.WithField("assessor", assessor.SourceName()).Info("assessor configured")

	pipe := pipeline.New(store, embedding.NewPixelEmbedder(),
		manipulation.NewELADetector(), assessor).
		WithDuplicateThreshold(cfg.DuplicateThreshold)

	// Review database
	reviews, err := reviewstore.NewReviewStore(cfg)
	if err != nil {
		log.WithError(err).Warn("review database unavailable, review endpoints disabled")
		reviews = nil
	} else {
		defer reviews.Close()
		if err := reviews.CreateTables(); err != nil {
			log.WithError(err).Fatal("failed to create review tables")
		}
		pipe.WithReviewQueue(reviews)
	}

	// Report publisher (optional)
	if cfg.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, report publishing disabled")
		} else {
			defer publisher.Close()
			pipe.WithPublisher(publisher)
		}
	}

	metrics.Register()

	// Setup HTTP server
	router := gin.Default()
	handlers.NewHandlers(pipe, reviews).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.WithField("port", cfg.Port).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exited")
}
