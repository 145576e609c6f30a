package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Iam-samyog/EduCircle/internal/analysis"
	"github.com/Iam-samyog/EduCircle/internal/auth"
	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/config"
	"github.com/Iam-samyog/EduCircle/internal/database"
	"github.com/Iam-samyog/EduCircle/internal/decks"
	"github.com/Iam-samyog/EduCircle/internal/extract"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/ids"
	"github.com/Iam-samyog/EduCircle/internal/llm"
	"github.com/Iam-samyog/EduCircle/internal/logging"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
	"github.com/Iam-samyog/EduCircle/internal/server"
	"github.com/Iam-samyog/EduCircle/internal/users"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	gin.SetMode(gin.ReleaseMode)

	if !appConfig.AIReady() {
		logger.Warn("GEMINI_API_KEY is not set; AI analysis endpoints will fail until it is configured")
	}

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := realtime.NewDispatcher()
	bus, err := newBus(signalCtx, appConfig, dispatcher, logger)
	if err != nil {
		return err
	}
	defer bus.Close() //nolint:errcheck
	if err := bus.Start(signalCtx); err != nil {
		return err
	}

	handler, err := buildHandler(appConfig, db, dispatcher, bus, logger)
	if err != nil {
		return err
	}

	httpServer := newHTTPServer(signalCtx, appConfig.HTTPAddress, handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Bool("ai_ready", appConfig.AIReady()),
			zap.Bool("redis_fanout", appConfig.RedisAddress != ""),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newHTTPServer derives request contexts from ctx so open event streams end
// when shutdown begins instead of holding Shutdown until its deadline.
func newHTTPServer(ctx context.Context, address string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func newBus(ctx context.Context, appConfig config.AppConfig, dispatcher *realtime.Dispatcher, logger *zap.Logger) (realtime.Bus, error) {
	if appConfig.RedisAddress == "" {
		return realtime.NewLocalBus(dispatcher), nil
	}
	return realtime.NewRedisBus(ctx, realtime.RedisBusConfig{
		Address:    appConfig.RedisAddress,
		Channel:    appConfig.RedisChannel,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
}

func newAnalysisService(appConfig config.AppConfig, logger *zap.Logger) (*analysis.Service, error) {
	generator := llm.NewGeminiGenerator(llm.GeminiConfig{
		APIKey:  appConfig.AIAPIKey,
		BaseURL: appConfig.AIBaseURL,
		Timeout: appConfig.AIRequestTimeout,
	})
	invoker, err := llm.NewInvoker(llm.InvokerConfig{
		Generator: generator,
		Models:    appConfig.AIModels,
		Backoff:   appConfig.AIRetryBackoff,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return analysis.NewService(analysis.ServiceConfig{
		Extractor:       extract.NewRegistry(),
		Invoker:         invoker,
		Ready:           generator.Configured,
		MaxPromptChars:  appConfig.MaxPromptChars,
		MaxUploadBytes:  appConfig.MaxUploadBytes,
		MinContentChars: appConfig.MinContentChars,
		Logger:          logger,
	})
}

func buildHandler(appConfig config.AppConfig, db *gorm.DB, dispatcher *realtime.Dispatcher, publisher realtime.Publisher, logger *zap.Logger) (http.Handler, error) {
	entityIDs := ids.NewUUIDv7()

	roomService, err := rooms.NewService(rooms.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: rooms.NewRoomCodeProvider(),
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	noteService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: entityIDs,
		Members:    roomService,
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	deckService, err := decks.NewService(decks.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: entityIDs,
		Members:    roomService,
		Notes:      noteService,
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: entityIDs,
		Members:    roomService,
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	goalService, err := goals.NewService(goals.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: entityIDs,
		Members:    roomService,
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	roomService.AddCascade(noteService.DeleteByRoom)
	roomService.AddCascade(deckService.DeleteByRoom)
	roomService.AddCascade(chatService.DeleteByRoom)
	roomService.AddCascade(goalService.DeleteByRoom)

	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return nil, err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return nil, err
	}
	analysisService, err := newAnalysisService(appConfig, logger)
	if err != nil {
		return nil, err
	}

	return server.NewHTTPHandler(server.Dependencies{
		SessionValidator:  sessionValidator,
		Users:             userService,
		Analysis:          analysisService,
		Rooms:             roomService,
		Notes:             noteService,
		Decks:             deckService,
		Chat:              chatService,
		Goals:             goalService,
		Dispatcher:        dispatcher,
		AllowedOrigins:    appConfig.AllowedOrigins,
		HeartbeatInterval: appConfig.HeartbeatInterval,
		Logger:            logger,
	})
}
