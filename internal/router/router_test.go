// internal/router/router_test.go
package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iagallery/iag-backend/internal/config"
	"github.com/iagallery/iag-backend/internal/models"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
		Environment: "test",
		JWT: config.JWTConfig{
			SecretKey:       "test-secret",
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
		},
		Payment: config.PaymentConfig{
			ReferencePrefix:   "IAG",
			OrderTTLHours:     72,
			Currency:          "EUR",
			MinimumWithdrawal: 10,
		},
		Audit: config.AuditConfig{RetentionHours: 72},
		Locks: config.LockConfig{WaitMillis: 2000},
	}

	svcs, err := BuildServices(db, cfg)
	require.NoError(t, err)

	return Setup(svcs, cfg), db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success, "unexpected error response: %s", w.Body.String())

	return resp.Data
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestRegisterLoginAndProfile(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice@test.local",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decodeData(t, w)
	token, _ := data["access_token"].(string)
	require.NotEmpty(t, token)

	w = doJSON(t, r, http.MethodGet, "/api/v1/auth/profile", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRejectBuyers(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice@test.local",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	token, _ := decodeData(t, w)["access_token"].(string)
	require.NotEmpty(t, token)

	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/orders", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	r, db := newTestRouter(t)

	// Seed an admin directly; registration only creates buyers.
	admin := &models.User{
		Username: "root",
		Email:    "root@test.local",
		UserType: models.UserTypeAdmin,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, admin.SetPassword("Adm1n!Pass"))
	require.NoError(t, db.Create(admin).Error)

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "root",
		"password": "Adm1n!Pass",
	})
	require.Equal(t, http.StatusOK, w.Code)
	adminToken, _ := decodeData(t, w)["access_token"].(string)

	w = doJSON(t, r, http.MethodPost, "/api/v1/admin/artworks", adminToken, gin.H{
		"title": "Sunset No. 4",
		"price": "100.00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	artworkID, _ := decodeData(t, w)["id"].(string)
	require.NotEmpty(t, artworkID)

	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "bob",
		"email":    "bob@test.local",
		"password": "Buy3r!Pass",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	buyerData := decodeData(t, w)
	buyerToken, _ := buyerData["access_token"].(string)

	// Fund the buyer out of band.
	buyerUser, _ := buyerData["user"].(map[string]interface{})
	buyerIDStr, _ := buyerUser["id"].(string)
	buyerID, err := uuid.Parse(buyerIDStr)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.LedgerEntry{
		UserID:        buyerID,
		Direction:     models.LedgerDirectionCredit,
		Amount:        decimal.RequireFromString("105.00"),
		Kind:          models.LedgerKindDeposit,
		ReferenceType: "test",
	}).Error)

	w = doJSON(t, r, http.MethodPost, "/api/v1/artworks/"+artworkID+"/purchase", buyerToken, gin.H{
		"payment_method": "balance",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/balance", buyerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0")

	w = doJSON(t, r, http.MethodPost, "/api/v1/artworks/"+artworkID+"/download", buyerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "download_url")

	// Used license: refund is rejected.
	w = doJSON(t, r, http.MethodPost, "/api/v1/artworks/"+artworkID+"/refund", buyerToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
