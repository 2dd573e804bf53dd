package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tourvia/backend/internal/handlers"
	"github.com/tourvia/backend/internal/identity"
	"github.com/tourvia/backend/internal/mailer"
	"github.com/tourvia/backend/internal/repository"
	"github.com/tourvia/backend/internal/service"
	"github.com/tourvia/backend/internal/sms"
	"github.com/tourvia/backend/pkg/config"
	"github.com/tourvia/backend/pkg/database"
	"github.com/tourvia/backend/pkg/events"
	"github.com/tourvia/backend/pkg/logger"
	mw "github.com/tourvia/backend/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// Connect to database
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to Redis (rate limiting)
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Outbound providers, swapped for logging fakes in dev mode
	var mailService mailer.Service
	if cfg.Email.DevMode {
		mailService = mailer.NewDevMailer()
	} else {
		mailService = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}

	var smsVerifier sms.Verifier
	if cfg.SMS.DevMode {
		smsVerifier = sms.NewDevVerifier()
	} else {
		smsVerifier = sms.NewTwilioVerifier(cfg.SMS.TwilioAccountSID, cfg.SMS.TwilioAuthToken, cfg.SMS.VerifyServiceSID)
	}

	googleVerifier := identity.NewGoogleVerifier(cfg.Google.ClientID)

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	challengeRepo := repository.NewChallengeRepository(pool)
	rateLimitRepo := repository.NewRateLimitRepository(rdb)

	// Initialize services
	authService := service.NewAuthService(userRepo, challengeRepo, mailService, googleVerifier, eventBus, cfg)
	challengeService := service.NewChallengeService(userRepo, challengeRepo, mailService, smsVerifier, eventBus, cfg)

	// Initialize handlers
	h := handlers.New(authService, challengeService, rateLimitRepo, cfg)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.App.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/api/v1/users", func(r chi.Router) {
		// Public auth
		r.Group(func(r chi.Router) {
			r.Use(h.RateLimit("auth", 30, time.Minute))

			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Get("/logout", h.Logout)
			r.Post("/google-login", h.GoogleLogin)

			r.Post("/send-email-code", h.SendEmailCode)
			r.Post("/verify-email-code", h.VerifyEmailCode)

			r.Post("/check-phone", h.CheckPhone)
			r.Post("/send-otp", h.SendLoginOTP)
			r.Post("/verify-otp", h.VerifyLoginOTP)

			r.Post("/forgotPassword", h.ForgotPassword)
			r.Patch("/resetPassword/{token}", h.ResetPassword)
		})

		// Session restore for the frontend; anonymous visitors pass through
		r.Group(func(r chi.Router) {
			r.Use(h.IsLoggedIn())

			r.Get("/is-logged-in", h.Session)
		})

		// Logged-in users
		r.Group(func(r chi.Router) {
			r.Use(h.Protect())

			r.Post("/send-phone-verification-otp", h.SendPhoneVerificationOTP)
			r.Post("/verify-phone-otp", h.VerifyPhoneOTP)

			r.Patch("/updateMyPassword", h.UpdatePassword)
			r.Get("/me", h.Me)
			r.Patch("/updateMe", h.UpdateMe)
			r.Delete("/deleteMe", h.DeleteMe)
		})

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(h.Protect())
			r.Use(h.RestrictTo("admin"))

			r.Get("/", h.ListUsers)
			r.Get("/{id}", h.GetUser)
			r.Patch("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting server", "port", cfg.Server.Port, "env", cfg.App.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
