package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"challenge-chat/internal/config"
	"challenge-chat/internal/db"
	"challenge-chat/internal/grpcserver"
	"challenge-chat/internal/handlers"
	"challenge-chat/internal/media"
	"challenge-chat/internal/middleware"
	"challenge-chat/internal/notify"
	"challenge-chat/internal/observability"
	"challenge-chat/internal/rabbitmq"
	"challenge-chat/internal/realtime"
	"challenge-chat/internal/repositories"
	"challenge-chat/internal/telemetry"
	"challenge-chat/internal/ws"
)

const serviceName = "challenge-chat"

func main() {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Challenge chat feed service and terminal client",
	}
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(remindersCmd())
	root.AddCommand(chatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(envFile)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and gRPC health servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			migrate, _ := cmd.Flags().GetBool("migrate")
			withReminders, _ := cmd.Flags().GetBool("reminders")
			return serve(cfg, migrate, withReminders)
		},
	}
	cmd.Flags().Bool("migrate", false, "apply the schema before serving")
	cmd.Flags().Bool("reminders", false, "run the check-in reminder scheduler in-process")
	return cmd
}

func serve(cfg config.Config, migrate, withReminders bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if err := middleware.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		log.Printf("sentry init failed: %v", err)
	}
	defer middleware.FlushSentry(2 * time.Second)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown failed: %v", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer database.Close()

	if migrate {
		if err := db.Migrate(ctx, database); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)
	notifier := notify.NewNotifier(publisher)

	hub := ws.NewHub()
	broadcaster := realtime.NewBroadcaster(cfg.AMQPURL, cfg.RealtimeExchange, hub)
	defer broadcaster.Close()
	go func() {
		if err := broadcaster.Run(ctx); err != nil {
			log.Printf("realtime relay stopped: %v", err)
		}
	}()

	sessionRepo := repositories.NewSessionRepo(database)
	challengeRepo := repositories.NewChallengeRepo(database)
	itemRepo := repositories.NewItemRepo(database)
	likeRepo := repositories.NewLikeRepo(database)

	uploader := media.NewUploader(cfg.MediaUploadURL, cfg.MediaAPIKey)

	challengeHandler := handlers.NewChallengeHandler(challengeRepo, audit, loc)
	itemHandler := handlers.NewItemHandler(itemRepo, challengeRepo, likeRepo, uploader, broadcaster, notifier, loc)
	likeHandler := handlers.NewLikeHandler(likeRepo, itemRepo, notifier)
	chatWS := ws.NewChatWebSocketHandler(hub, sessionRepo, challengeRepo)

	router := gin.New()
	router.Use(
		gin.Logger(),
		middleware.RequestID(),
		middleware.ErrorReporter(),
		otelgin.Middleware(serviceName),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"publisher": rabbitmq.PublisherMode(publisher),
			"realtime":  realtime.Mode(broadcaster),
		})
	})

	authMiddleware := middleware.AuthMiddleware(sessionRepo)
	writeLimit := middleware.RateLimit(middleware.NewWriteLimiter(cfg.WriteRatePerSec, cfg.WriteBurst))

	// rate limiting keys on the user, so it runs after auth
	api := router.Group("/", authMiddleware)
	api.POST("/challenges", writeLimit, challengeHandler.CreateChallenge)
	api.GET("/challenges", challengeHandler.ListChallenges)
	api.GET("/challenges/:challenge_id", challengeHandler.GetChallenge)
	api.POST("/challenges/:challenge_id/join", writeLimit, challengeHandler.JoinChallenge)
	api.GET("/challenges/:challenge_id/cohorts/:cohort_id/chat", itemHandler.ChatFeed)

	api.POST("/posts", writeLimit, itemHandler.CreatePost)
	api.POST("/checkins", writeLimit, itemHandler.CreateCheckIn)
	api.POST("/comments", writeLimit, itemHandler.CreateComment)
	api.GET("/comments", itemHandler.ListComments)

	api.GET("/likes", likeHandler.ListLikes)
	api.POST("/likes", writeLimit, likeHandler.Like)
	api.DELETE("/likes", writeLimit, likeHandler.Unlike)

	router.GET("/ws/chat/:challenge_id/:cohort_id", chatWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, broadcaster, cfg.DebugRoutes)

	grpcServer := grpcserver.New()
	go func() {
		if err := grpcServer.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
			log.Printf("grpc server error: %v", err)
			stop()
		}
	}()

	if withReminders {
		scheduler := notify.NewScheduler(challengeRepo, notifier, loc, cfg.ReminderInterval)
		go func() {
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("reminder scheduler stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("http listening addr=%s env=%s", srv.Addr, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	grpcServer.SetServing(true)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	grpcServer.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown failed: %v", err)
	}
	log.Printf("shutdown complete")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			database, err := db.Connect(ctx, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("failed to connect to db: %w", err)
			}
			defer database.Close()
			if err := db.Migrate(ctx, database); err != nil {
				return err
			}
			log.Printf("schema up to date")
			return nil
		},
	}
}

func remindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Run the check-in reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := db.Connect(ctx, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("failed to connect to db: %w", err)
			}
			defer database.Close()

			publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
			defer publisher.Close()
			observability.SetPublisher(publisher)

			scheduler := notify.NewScheduler(repositories.NewChallengeRepo(database), notify.NewNotifier(publisher), loc, cfg.ReminderInterval)
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
