// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/iagallery/iag-backend/internal/config"
	"github.com/iagallery/iag-backend/internal/handlers"
	"github.com/iagallery/iag-backend/internal/keylock"
	"github.com/iagallery/iag-backend/internal/middleware"
	"github.com/iagallery/iag-backend/internal/services"
	"github.com/iagallery/iag-backend/internal/utils"
)

// Services bundles everything the HTTP layer and the background sweeper
// need, wired once at startup.
type Services struct {
	Auth          *services.AuthService
	Artworks      *services.ArtworkService
	License       *services.LicenseService
	Ledger        *services.LedgerService
	Payments      *services.PaymentService
	Marketplace   *services.MarketplaceService
	Stripe        *services.StripeService
	Audit         *services.AuditService
	Notifications *services.NotificationService
	Storage       *services.StorageService
	Sweeper       *services.Sweeper
}

// BuildServices constructs the service graph on top of one shared keyed
// locker, so every mutating flow contends on the same locks.
func BuildServices(db *gorm.DB, cfg *config.Config) (*Services, error) {
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	locks := keylock.New()
	ledger := services.NewLedgerService(db)
	audit := services.NewAuditService(db, cfg)
	notifications := services.NewNotificationService(db)
	artworks := services.NewArtworkService(db)
	license := services.NewLicenseService(db, locks, ledger, audit, storage, cfg)
	payments := services.NewPaymentService(db, locks, ledger, audit, notifications, license, cfg)
	marketplace := services.NewMarketplaceService(db, locks, ledger, audit, license, cfg)

	return &Services{
		Auth:          services.NewAuthService(db, cfg),
		Artworks:      artworks,
		License:       license,
		Ledger:        ledger,
		Payments:      payments,
		Marketplace:   marketplace,
		Stripe:        services.NewStripeService(license, artworks, cfg),
		Audit:         audit,
		Notifications: notifications,
		Storage:       storage,
		Sweeper:       services.NewSweeper(payments, audit, cfg),
	}, nil
}

func Setup(svcs *Services, cfg *config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())

	// Per-IP limits distort in-process test traffic, which shares one IP.
	rateLimited := cfg.Environment != "test"
	if rateLimited {
		r.Use(middleware.GeneralRateLimit())
	}

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	authHandler := handlers.NewAuthHandler(svcs.Auth)
	artworkHandler := handlers.NewArtworkHandler(svcs.Artworks, svcs.License)
	paymentHandler := handlers.NewPaymentHandler(svcs.Payments, svcs.Ledger, svcs.Stripe)
	marketplaceHandler := handlers.NewMarketplaceHandler(svcs.Marketplace)
	adminHandler := handlers.NewAdminHandler(svcs.Payments, svcs.License, svcs.Artworks, svcs.Audit, svcs.Notifications, svcs.Storage)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	if rateLimited {
		auth.Use(middleware.AuthRateLimit())
	}
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}
	v1.GET("/auth/profile", middleware.AuthRequired(), authHandler.Profile)

	// Public catalog; owner identity stays masked without auth.
	v1.GET("/artworks", middleware.OptionalAuth(), artworkHandler.List)
	v1.GET("/artworks/:id", middleware.OptionalAuth(), artworkHandler.Get)

	v1.GET("/marketplace/listings", marketplaceHandler.Browse)
	v1.GET("/marketplace/listings/:id", marketplaceHandler.Get)

	user := v1.Group("")
	user.Use(middleware.AuthRequired())
	{
		user.POST("/artworks/:id/purchase", artworkHandler.Purchase)
		user.POST("/artworks/:id/download", artworkHandler.Download)
		user.POST("/artworks/:id/refund", artworkHandler.Refund)
		user.GET("/my/artworks", artworkHandler.MyCollection)

		user.POST("/orders", paymentHandler.CreateOrder)
		user.GET("/orders", paymentHandler.ListOrders)
		user.GET("/orders/:id", paymentHandler.GetOrder)
		user.POST("/orders/:id/cancel", paymentHandler.CancelOrder)

		user.GET("/balance", paymentHandler.Balance)
		user.GET("/balance/history", paymentHandler.BalanceHistory)
		user.POST("/withdrawals", paymentHandler.Withdraw)
		user.GET("/transactions", paymentHandler.Transactions)

		user.POST("/payments/card/intent", paymentHandler.CreateCardIntent)
		user.POST("/payments/card/confirm", paymentHandler.ConfirmCardPurchase)

		user.POST("/marketplace/listings", marketplaceHandler.Create)
		user.POST("/marketplace/listings/:id/buy", marketplaceHandler.Buy)
		user.DELETE("/marketplace/listings/:id", marketplaceHandler.Cancel)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	{
		admin.POST("/artworks", adminHandler.CreateArtwork)
		admin.POST("/artworks/:id/asset", adminHandler.UploadAsset)
		admin.GET("/artworks/:id/provenance", adminHandler.Provenance)
		admin.POST("/artworks/:id/refund", adminHandler.ManualRefund)
		admin.POST("/artworks/:id/transfer", adminHandler.ManualTransfer)

		admin.POST("/bank-transactions", adminHandler.RecordBankTransaction)
		admin.GET("/bank-transactions", adminHandler.ListBankTransactions)
		admin.POST("/bank-transactions/:id/resolve", adminHandler.ResolveBankTransaction)

		admin.GET("/orders", adminHandler.ListOrders)
		admin.POST("/orders/:id/confirm", adminHandler.ConfirmOrder)
		admin.POST("/orders/:id/refund", adminHandler.RefundOrder)

		admin.GET("/audit-logs", adminHandler.AuditLogs)
		admin.GET("/audit-logs/stats", adminHandler.AuditStats)

		admin.GET("/notifications", adminHandler.Notifications)
		admin.POST("/notifications/:id/read", adminHandler.MarkNotificationRead)
	}

	return r
}
