package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/config"
	"github.com/tourday/booking-backend/internal/database"
	"github.com/tourday/booking-backend/internal/handlers"
	"github.com/tourday/booking-backend/internal/middleware"
	"github.com/tourday/booking-backend/internal/services"
	"github.com/tourday/booking-backend/internal/utils"
	"github.com/tourday/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Tourday Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	tourRepo := database.NewTourRepository(db.DB)
	promoRepo := database.NewPromoRepository(db.DB)
	availabilityRepo := database.NewAvailabilityRepository(db.DB)
	reservationRepo := database.NewReservationRepository(db.DB, availabilityRepo)
	bookingRepo := database.NewBookingRepository(db.DB)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	pricingService := services.NewPricingService(cfg.Booking.FixedDeposit, cfg.Booking.Currency)
	promoService := services.NewPromoService(promoRepo)
	reservationService := services.NewReservationService(reservationRepo, cfg.Booking.HoldTTL, logger)
	availabilityService := services.NewAvailabilityService(availabilityRepo, tourRepo, pricingService, logger)

	// Payment gateway
	var gateway services.PaymentGateway
	if cfg.Payment.Environment == "mock" {
		logger.Info("Payment gateway in mock mode (all payments accepted)")
		gateway = services.NewMockPaymentGateway(logger)
	} else {
		logger.Infof("Payment gateway in %s mode", cfg.Payment.Environment)
		gateway = services.NewHTTPPaymentGateway(&cfg.Payment, logger)
	}

	// Notification transport
	var notifier services.Notifier
	if cfg.Notification.Mode == "amqp" {
		amqpNotifier, err := services.NewAMQPNotifier(cfg.Notification.AMQPURL, cfg.Notification.Exchange, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to AMQP broker: %v", err)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
		logger.Info("AMQP notifier initialized")
	} else {
		notifier = services.NewLogNotifier(logger)
		logger.Info("Log notifier initialized (no broker configured)")
	}

	bookingService := services.NewBookingService(
		tourRepo,
		bookingRepo,
		availabilityRepo,
		reservationService,
		pricingService,
		promoService,
		gateway,
		notifier,
		cfg.Booking,
		logger,
	)

	rateLimiter := services.NewRateLimitService(db)

	// Start the background hold sweeper
	sweeper := services.NewHoldSweeperService(bookingService, rateLimiter, cfg.Booking.SweepInterval, logger)
	sweeper.Start()

	logger.Info("Services initialized")

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, rateLimiter, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(bookingService, availabilityService, logger)
	webhookHandler := handlers.NewWebhookHandler(bookingService, logger)
	promoHandler := handlers.NewPromoHandler(promoService, logger)
	adminHandler := handlers.NewAdminHandler(availabilityService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Availability routes (public)
		tours := v1.Group("/tours")
		{
			tours.GET("/:tour_id/availability", availabilityHandler.CheckAvailability)
			tours.GET("/:tour_id/availability/calendar", availabilityHandler.Calendar)
		}

		// Payment webhook (gateway-facing, authenticated by check value)
		v1.POST("/webhooks/payment", webhookHandler.PaymentResult)

		// Booking routes (protected)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService))
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:booking_id", bookingHandler.GetBooking)
			bookings.POST("/:booking_id/initiate-payment", bookingHandler.InitiatePayment)
			bookings.POST("/:booking_id/cancel", bookingHandler.CancelBooking)
		}

		// Promo validation (protected)
		promos := v1.Group("/promos")
		promos.Use(middleware.AuthMiddleware(jwtService))
		{
			promos.POST("/validate", promoHandler.Validate)
		}

		// Admin routes (protected, admin role required)
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService))
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.PUT("/tours/:tour_id/price-override", adminHandler.SetPriceOverride)
			admin.PUT("/tours/:tour_id/capacity", adminHandler.SetCapacity)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the hold sweeper
	sweeper.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         utils.GetRealIP(c),
			"latency_ms": latency.Milliseconds(),
			"user_agent": utils.GetUserAgent(c),
		}

		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
