// Package main runs the live session HTTP server with graceful shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulse-live/backend/config"
	"github.com/pulse-live/backend/internal/auth"
	"github.com/pulse-live/backend/internal/live"
	"github.com/pulse-live/backend/internal/middleware"
	"github.com/pulse-live/backend/internal/qa"
	"github.com/pulse-live/backend/internal/store"
	"github.com/pulse-live/backend/internal/store/memory"
	"github.com/pulse-live/backend/internal/store/mongodb"
	"github.com/pulse-live/backend/pkg/database"
	"github.com/pulse-live/backend/pkg/queue"
	"github.com/pulse-live/backend/pkg/redis"
	"github.com/pulse-live/backend/pkg/response"
)

func main() {
	devMode := flag.Bool("dev", false, "run with in-memory storage, no Mongo or Redis")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var st store.Store
	var jobQueue *queue.Queue
	if *devMode {
		st = memory.New()
		logger.Info("dev mode: in-memory store, notifications disabled")
	} else {
		db, err := database.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
		if err != nil {
			logger.Fatal("mongo", zap.Error(err))
		}
		defer db.Client().Disconnect(ctx)

		mongoStore := mongodb.New(db)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Fatal("mongo indexes", zap.Error(err))
		}
		st = mongoStore

		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, notifications disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			jobQueue = queue.NewQueue(rdb, logger)
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	liveService := live.NewService(st, jobQueue, logger)
	liveHandler := live.NewHandler(liveService)

	qaService := qa.NewService(st, logger)
	qaHandler := qa.NewHandler(qaService)

	hostRoles := config.HostRoles()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public: PIN lookup and join (join accepts an optional token so
	// identified participants rejoin their own record).
	router.GET("/live/activities/pin/:pin", liveHandler.GetByPIN)
	router.POST("/live/activities/:id/join", middleware.OptionalJWT(jwtService), liveHandler.Join)

	// Participant surface. Participant identity is the participantId issued
	// at join, carried in the request body; reads that reveal more to hosts
	// take an optional token.
	router.POST("/live/activities/:id/responses", liveHandler.SubmitResponse)
	router.POST("/live/activities/:id/vote", liveHandler.Vote)
	router.POST("/live/activities/:id/react", liveHandler.React)
	router.GET("/live/activities/:id/status", liveHandler.Status)
	router.GET("/live/activities/:id/results", middleware.OptionalJWT(jwtService), liveHandler.Results)
	router.GET("/live/activities/:id/results/:index", middleware.OptionalJWT(jwtService), liveHandler.Results)
	router.GET("/live/activities/:id/polls", liveHandler.ListActivePolls)
	router.GET("/live/activities/:id/polls/:pollId/results", middleware.OptionalJWT(jwtService), liveHandler.PollResults)
	router.GET("/live/activities/:id/questions/:questionId/reactions", liveHandler.Reactions)
	router.GET("/live/participants/:participantId", middleware.OptionalJWT(jwtService), liveHandler.GetParticipant)

	// Q&A
	router.POST("/live/activities/:id/questions", qaHandler.Submit)
	router.POST("/live/activities/:id/questions/:questionId/replies", qaHandler.Reply)
	router.GET("/live/activities/:id/questions", qaHandler.List)
	router.POST("/live/activities/:id/questions/:questionId/upvote", qaHandler.Upvote)

	// Host surface (JWT + host role required)
	host := router.Group("")
	host.Use(middleware.JWT(jwtService), middleware.RequireRole(hostRoles...))
	{
		host.POST("/live/activities", liveHandler.Create)
		host.GET("/live/activities/host", liveHandler.ListByHost)
		host.PATCH("/live/activities/:id/details", liveHandler.UpdateDetails)
		host.PATCH("/live/activities/:id/toggle", liveHandler.ToggleLive)
		host.PATCH("/live/activities/:id/navigate", liveHandler.Navigate)
		host.POST("/live/activities/:id/polls", liveHandler.CreatePoll)
		host.GET("/live/activities/:id/export", liveHandler.Export)
		host.POST("/live/activities/:id/questions/:questionId/answer", qaHandler.Answer)
		host.POST("/live/activities/:id/questions/:questionId/dismiss", qaHandler.Dismiss)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
