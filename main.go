package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"match-service/config"
	"match-service/internal/constants"
	"match-service/internal/handlers"
	"match-service/internal/middleware"
	"match-service/internal/notifier"
	"match-service/internal/service"
	"match-service/pkg/cache"
	"match-service/pkg/database"
	"match-service/pkg/email"
	"match-service/pkg/messaging"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg := config.Load()
	log.Println("Configuration loaded")

	pgClient, err := database.NewPostgresClient(&cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	log.Println("Connected to PostgreSQL")
	defer pgClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pgClient.InitSchema(ctx); err != nil {
		log.Printf("Warning: Failed to initialize PostgreSQL schema: %v", err)
	} else {
		log.Println("PostgreSQL schema initialized")
	}
	cancel()

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		redisClient = nil
	} else {
		log.Println("Connected to Redis")
		defer redisClient.Close()
	}

	rabbitClient, err := messaging.NewRabbitMQClient(&cfg.RabbitMQ)
	if err != nil {
		log.Printf("Warning: Failed to connect to RabbitMQ: %v", err)
		rabbitClient = nil
	} else {
		log.Println("Connected to RabbitMQ")
		defer rabbitClient.Close()
	}

	smtpClient := email.NewSMTPClient(&cfg.SMTP)
	log.Println("SMTP client initialized")

	var cacheClient service.Cache
	if redisClient != nil {
		cacheClient = redisClient
	}
	var publisher service.Publisher
	if rabbitClient != nil {
		publisher = rabbitClient
	}

	funnelService := service.NewFunnelService(pgClient.GetDB(), cacheClient, publisher, cfg.Funnel)
	funnelHandler := handlers.NewFunnelHandler(funnelService)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "match-service",
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if pgClient == nil || redisClient == nil || rabbitClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/quizzes/:quizID/versions/:versionID/leads", funnelHandler.GateSubmit)
		api.GET("/resume", funnelHandler.Resume)
		api.GET("/embed/config", funnelHandler.EmbedConfig)
		api.POST("/events", funnelHandler.ClientEvent)

		api.POST("/admin/quizzes/:quizID/versions/:versionID", funnelHandler.PublishQuizVersion)

		leads := api.Group("/leads", middleware.ResumeTokenAuth(cfg.Funnel.TokenSecret))
		{
			leads.PUT("/:leadID/progress", funnelHandler.SaveProgress)
			leads.POST("/:leadID/progress/beacon", funnelHandler.SaveProgressBeacon)
			leads.POST("/:leadID/score", funnelHandler.Score)
			leads.POST("/:leadID/readiness/:programID/start", funnelHandler.StartReadiness)
			leads.POST("/:leadID/readiness/:programID/complete", funnelHandler.CompleteReadiness)
			leads.POST("/:leadID/resume-email", funnelHandler.ResendResumeEmail)
		}
	}

	if rabbitClient != nil {
		log.Println("Starting RabbitMQ consumers...")
		startConsumers(rabbitClient, notifier.NewNotifier(smtpClient))
	}

	httpAddr := ":" + cfg.Server.HTTPPort
	log.Printf("Match Service HTTP server starting on port %s...", cfg.Server.HTTPPort)
	go func() {
		if err := router.Run(httpAddr); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Match Service stopped")
}

func startConsumers(rabbitClient *messaging.RabbitMQClient, n *notifier.Notifier) {
	ctx := context.Background()

	go consumeQueue(ctx, rabbitClient, constants.QueueLeadEmails, n.HandleLeadEmail)

	log.Println("All RabbitMQ consumers started")
}

func consumeQueue(ctx context.Context, rabbitClient *messaging.RabbitMQClient, queueName string, handler func(context.Context, []byte) error) {
	msgs, err := rabbitClient.Consume(queueName)
	if err != nil {
		log.Printf("Failed to start consumer for queue %s: %v", queueName, err)
		return
	}

	log.Printf("Started consumer for queue: %s", queueName)

	for msg := range msgs {
		if err := handler(ctx, msg.Body); err != nil {
			log.Printf("Failed to handle message from %s: %v", queueName, err)
			msg.Nack(false, false)
			continue
		}
		msg.Ack(false)
	}
}
