// internal/services/testhelpers_test.go
package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iagallery/iag-backend/internal/config"
	"github.com/iagallery/iag-backend/internal/keylock"
	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/utils"
)

// testEnv wires the full service graph against an in-memory database. One
// connection max, so every query in a transaction flows through the same
// handle and the concurrency tests exercise the keyed locks, not the pool.
type testEnv struct {
	db            *gorm.DB
	cfg           *config.Config
	ledger        *LedgerService
	audit         *AuditService
	notifications *NotificationService
	artworks      *ArtworkService
	license       *LicenseService
	payments      *PaymentService
	marketplace   *MarketplaceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Artwork{},
		&models.OwnershipRecord{},
		&models.Transaction{},
		&models.LedgerEntry{},
		&models.PaymentOrder{},
		&models.BankTransaction{},
		&models.Listing{},
		&models.AuditLog{},
		&models.AdminNotification{},
	))

	cfg := &config.Config{
		Payment: config.PaymentConfig{
			ReferencePrefix:   "IAG",
			OrderTTLHours:     72,
			Currency:          "EUR",
			MinimumWithdrawal: 10,
		},
		Audit: config.AuditConfig{RetentionHours: 72},
		Locks: config.LockConfig{WaitMillis: 2000},
	}

	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	locks := keylock.New()
	ledger := NewLedgerService(db)
	audit := NewAuditService(db, cfg)
	notifications := NewNotificationService(db)
	artworks := NewArtworkService(db)
	license := NewLicenseService(db, locks, ledger, audit, storage, cfg)
	payments := NewPaymentService(db, locks, ledger, audit, notifications, license, cfg)
	marketplace := NewMarketplaceService(db, locks, ledger, audit, license, cfg)

	return &testEnv{
		db:            db,
		cfg:           cfg,
		ledger:        ledger,
		audit:         audit,
		notifications: notifications,
		artworks:      artworks,
		license:       license,
		payments:      payments,
		marketplace:   marketplace,
	}
}

func paginationDefaults() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@test.local",
		UserType: models.UserTypeBuyer,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Sup3rSecret!"))
	require.NoError(t, e.db.Create(user).Error)

	return user
}

func (e *testEnv) createAdmin(t *testing.T, username string) *models.User {
	t.Helper()

	admin := &models.User{
		Username: username,
		Email:    username + "@test.local",
		UserType: models.UserTypeAdmin,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, admin.SetPassword("Sup3rSecret!"))
	require.NoError(t, e.db.Create(admin).Error)

	return admin
}

func (e *testEnv) createArtwork(t *testing.T, price string) *models.Artwork {
	t.Helper()

	artwork := &models.Artwork{
		Title:        "Test Artwork",
		Description:  "one of a kind",
		Category:     "digital",
		Price:        dec(price),
		AssetKey:     "artworks/test-master.png",
		CreatedBy:    uuid.New(),
		LicenseState: models.LicenseStateAvailable,
	}
	require.NoError(t, e.db.Create(artwork).Error)

	return artwork
}

func (e *testEnv) fund(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	require.NoError(t, e.ledger.CreditTx(e.db, userID, dec(amount), models.LedgerKindDeposit, "test", nil, nil))
}

func (e *testEnv) balance(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	b, err := e.ledger.Balance(userID)
	require.NoError(t, err)

	return b.StringFixed(2)
}

func (e *testEnv) reloadArtwork(t *testing.T, id uuid.UUID) *models.Artwork {
	t.Helper()

	var artwork models.Artwork
	require.NoError(t, e.db.First(&artwork, "id = ?", id).Error)

	return &artwork
}

func (e *testEnv) reloadOrder(t *testing.T, id uuid.UUID) *models.PaymentOrder {
	t.Helper()

	var order models.PaymentOrder
	require.NoError(t, e.db.First(&order, "id = ?", id).Error)

	return &order
}
