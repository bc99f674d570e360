// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/unclebandit/creator-outreach/internal/ai"
	"github.com/unclebandit/creator-outreach/internal/config"
	"github.com/unclebandit/creator-outreach/internal/controller"
	"github.com/unclebandit/creator-outreach/internal/db"
	"github.com/unclebandit/creator-outreach/internal/handler"
	"github.com/unclebandit/creator-outreach/internal/logger"
	"github.com/unclebandit/creator-outreach/internal/marketplace"
	"github.com/unclebandit/creator-outreach/internal/middleware"
	"github.com/unclebandit/creator-outreach/internal/queue"
	"github.com/unclebandit/creator-outreach/internal/repository"
	"github.com/unclebandit/creator-outreach/internal/response"
	"github.com/unclebandit/creator-outreach/internal/service"
	"github.com/unclebandit/creator-outreach/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	pg, err := db.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.ClosePostgres(pg)

	rdb, err := db.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, continuing without replay guard and live events")
		rdb = nil
	}
	defer db.CloseRedis(rdb)

	campaignRepo := &repository.CampaignRepository{DB: pg}
	creatorRepo := &repository.CreatorRepository{DB: pg}
	invitationRepo := &repository.InvitationRepository{DB: pg}
	eventRepo := &repository.EventRepository{DB: pg}

	bus, closeSinks := newEventBus(cfg, eventRepo, rdb)

	market := marketplace.NewClient(cfg.MarketplaceBaseURL, cfg.MarketplaceAccessToken,
		cfg.MarketplaceAdvertiserID, &http.Client{Timeout: cfg.SendTimeout + cfg.LookupTimeout})

	var classifier service.SentimentClassifier = service.KeywordClassifier{}
	var enhancer service.MessageEnhancer
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini unavailable, using keyword sentiment and static templates")
		} else {
			classifier = service.FallbackClassifier{Primary: gemini}
			if cfg.AIPersonalize {
				enhancer = gemini
			}
		}
	}

	cost, _ := cfg.InviteCost()
	engine := service.NewEngine(service.EngineConfig{
		Campaigns:             campaignRepo,
		Creators:              creatorRepo,
		Invitations:           invitationRepo,
		Directory:             market,
		Transport:             market,
		Enhancer:              enhancer,
		Events:                bus,
		Governor:              service.NewGovernor(cfg.BatchSize, cost, cfg.GlobalInvitesPerMinute),
		DiscoveryLimit:        cfg.DiscoveryLimit,
		SendTimeout:           cfg.SendTimeout,
		LookupTimeout:         cfg.LookupTimeout,
		MaxAttemptsPerCreator: cfg.MaxAttemptsPerCreator,
	})

	campaignController := &controller.CampaignController{
		CampaignService: &service.CampaignService{
			CampaignRepo:   campaignRepo,
			CreatorRepo:    creatorRepo,
			InvitationRepo: invitationRepo,
			Jobs:           engine,
			Personalizer:   &service.Personalizer{Enhancer: enhancer},
		},
		Engine: engine,
	}

	webhookHandler := &handler.WebhookHandler{
		Secret: cfg.WebhookSecret,
		Reactor: &service.Reactor{
			Invitations: invitationRepo,
			Creators:    creatorRepo,
			Classifier:  classifier,
			Events:      bus,
		},
	}
	if rdb != nil {
		webhookHandler.Replay = webhook.NewRedisReplayGuard(rdb, webhook.DefaultReplayTTL)
	}
	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET is not set, every webhook will be rejected")
	}

	if cfg.ResumeActiveOnBoot {
		n, err := engine.ResumeActive(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Failed to resume active campaigns")
		} else {
			log.Info().Int("campaigns", n).Msg("Resumed active campaigns")
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", health(pg, rdb))
	r.Post("/webhooks/marketplace", webhookHandler.Receive)
	campaignController.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	engine.Shutdown()
	bus.Close()
	closeSinks()
	log.Info().Msg("Server exited")
}

// newEventBus subscribes the configured sinks. The returned func releases broker resources.
func newEventBus(cfg *config.Config, events repository.EventRepositoryInterface, rdb *redis.Client) (*queue.Bus, func()) {
	bus := queue.NewBus()
	var closers []func()

	switch cfg.EventsSink {
	case config.EventsSinkAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		pub, err := queue.NewAMQPPublisher(conn, cfg.EventsQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to declare events queue")
		}
		bus.SubscribeAll(pub.Handle)
		closers = append(closers, func() {
			pub.Close()
			conn.Close()
		})
		log.Info().Str("queue", cfg.EventsQueue).Msg("Publishing analytics events to RabbitMQ")
	default:
		sink := &queue.AnalyticsSink{Events: events}
		bus.SubscribeAll(sink.Handle)
	}

	if rdb != nil {
		bus.SubscribeAll(queue.NewRedisPublisher(rdb, queue.DefaultEventsChannel).Handle)
	}

	return bus, func() {
		for _, c := range closers {
			c()
		}
	}
}

func health(pg *sqlx.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "ok"}
		if err := pg.PingContext(ctx); err != nil {
			status["database"] = "down"
			response.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = "down"
			}
		}
		response.OK(w, status)
	}
}
