package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"cmc-connect/internal/auth"
	"cmc-connect/internal/config"
	"cmc-connect/internal/db"
	"cmc-connect/internal/handlers"
	"cmc-connect/internal/identity"
	"cmc-connect/internal/middleware"
	"cmc-connect/internal/notify"
	"cmc-connect/internal/observability"
	"cmc-connect/internal/presence"
	"cmc-connect/internal/rabbitmq"
	"cmc-connect/internal/repositories"
	"cmc-connect/internal/telemetry"
	"cmc-connect/internal/ws"
)

const serviceName = "cmc-connect"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	authService := auth.NewService(ctx, auth.Config{Secret: cfg.AuthSecret, TokenExpiry: cfg.TokenExpiry}, userRepo)
	directory := identity.NewDirectory(ctx, userRepo)
	notifier := notify.NewNotifier(notify.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
		BaseURL:         cfg.BaseURL,
	}, userRepo)

	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, directory, notifier)
	gateway := ws.NewGateway(hub, authService)

	authHandler := handlers.NewAuthHandler(authService, audit)
	userHandler := handlers.NewUserHandler(userRepo, cfg.VAPIDPublicKey)
	chatHandler := handlers.NewChatHandler(conversationRepo, messageRepo, audit)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(authService))
	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/users", userHandler.ListUsers)
	authed.GET("/vapid-public-key", userHandler.VapidPublicKey)
	authed.POST("/subscribe", userHandler.Subscribe)

	chat := authed.Group("/chat")
	chat.POST("/conversation", chatHandler.CreateConversation)
	chat.GET("/conversation", chatHandler.ListConversations)
	chat.GET("/conversation/:conversation_id", chatHandler.GetConversation)
	chat.DELETE("/conversation/:conversation_id", chatHandler.DeleteConversation)
	chat.GET("/message/:conversation_id", chatHandler.GetMessages)
	chat.POST("/message", chatHandler.PostMessage)
	chat.PUT("/message/read/:conversation_id", chatHandler.MarkRead)
	chat.PUT("/message/edit/:message_id", chatHandler.EditMessage)
	chat.PUT("/message/delete/:message_id", chatHandler.DeleteMessage)

	router.GET("/ws", gateway.Handle)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("server listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
