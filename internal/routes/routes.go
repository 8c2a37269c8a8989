package routes

import (
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/saeid-a/TeleClinicBack/internal/config"
	"github.com/saeid-a/TeleClinicBack/internal/handlers"
	"github.com/saeid-a/TeleClinicBack/internal/middleware"
	"github.com/saeid-a/TeleClinicBack/internal/repository"
	"github.com/saeid-a/TeleClinicBack/internal/rtc"
	"github.com/saeid-a/TeleClinicBack/internal/services"
	"github.com/saeid-a/TeleClinicBack/internal/telehealth"
	signalws "github.com/saeid-a/TeleClinicBack/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, log *logrus.Logger) error {
	userRepo := repository.NewUserRepository(db)
	historyRepo := repository.NewSessionHistoryRepository(db)

	var publisher services.Publisher
	if cfg.AMQPUrl != "" {
		amqpPublisher, err := services.NewAMQPPublisher(cfg.AMQPUrl)
		if err != nil {
			return err
		}
		publisher = amqpPublisher
	}
	auditService := services.NewAuditService(publisher, cfg.AuditExchange, log)

	var presence telehealth.Presence
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		presence = services.NewPresenceService(redis.NewClient(opts))
	} else {
		presence = telehealth.NewMemoryPresence()
	}

	hub := signalws.NewHub()
	go hub.Run()

	engine := telehealth.NewEngine(telehealth.EngineConfig{
		Dialer:       rtc.NewDialer(),
		PeerConfig:   telehealth.PeerConfig{ICEServers: cfg.ICEServers},
		Device:       rtc.NewDevice(),
		Signaler:     hub,
		Directory:    services.NewDirectoryService(userRepo),
		Audit:        auditService,
		History:      historyRepo,
		Presence:     presence,
		Recorder:     rtc.NewSampleRecorder(),
		Artifacts:    services.NewFileArtifactStore(cfg.RecordingDir, cfg.RecordingBaseURL),
		Capacity:     cfg.SessionCapacity,
		MaxRecording: time.Duration(cfg.RecordingMaxMinutes) * time.Minute,
		Logger:       log,
	})

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	telehealthHandler := handlers.NewTelehealthHandler(engine)
	signalingHandler := handlers.NewSignalingHandler(hub, engine.Peers(), cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/telehealth/sessions")
	sessions.Post("", middleware.RoleRequired("therapist"), telehealthHandler.CreateSession)
	sessions.Post("/:id/join", telehealthHandler.JoinSession)
	sessions.Post("/:id/leave", telehealthHandler.LeaveSession)
	sessions.Post("/:id/end", middleware.RoleRequired("therapist"), telehealthHandler.EndSession)
	sessions.Post("/:id/cancel", telehealthHandler.CancelSession)
	sessions.Post("/:id/recording/start", middleware.RoleRequired("therapist"), telehealthHandler.StartRecording)
	sessions.Post("/:id/recording/stop", middleware.RoleRequired("therapist"), telehealthHandler.StopRecording)
	sessions.Post("/:id/screenshare/start", telehealthHandler.StartScreenShare)
	sessions.Post("/:id/screenshare/stop", telehealthHandler.StopScreenShare)
	sessions.Post("/:id/chat", telehealthHandler.SendChatMessage)
	sessions.Post("/:id/media/audio", telehealthHandler.ToggleAudio)
	sessions.Post("/:id/media/video", telehealthHandler.ToggleVideo)
	sessions.Get("/:id", telehealthHandler.GetSession)

	authProtected.Get("/telehealth/history", telehealthHandler.History)
	authProtected.Get("/telehealth/active", telehealthHandler.ActiveSessions)

	app.Static(cfg.RecordingBaseURL, cfg.RecordingDir)

	app.Use("/ws/telehealth/:id", signalingHandler.WebSocketAuth)
	app.Get("/ws/telehealth/:id", websocket.New(signalingHandler.HandleWebSocket))

	return nil
}
