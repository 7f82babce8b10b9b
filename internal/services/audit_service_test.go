// internal/services/audit_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iagallery/iag-backend/internal/models"
)

func TestRefundSchedulesAuditExpiry(t *testing.T) {
	e := newTestEnv(t)
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, buyer.ID, "105.00")

	_, err := e.license.Purchase(buyer.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	var beforeRefund []models.AuditLog
	require.NoError(t, e.db.Where("artwork_id = ?", artwork.ID).Find(&beforeRefund).Error)
	require.NotEmpty(t, beforeRefund)
	for _, entry := range beforeRefund {
		assert.Nil(t, entry.ExpiresAt, "entries must not expire before a refund")
	}

	_, err = e.license.Refund(buyer.ID, artwork.ID)
	require.NoError(t, err)

	var afterRefund []models.AuditLog
	require.NoError(t, e.db.Where("artwork_id = ?", artwork.ID).Find(&afterRefund).Error)
	require.NotEmpty(t, afterRefund)

	expected := time.Now().Add(72 * time.Hour)
	for _, entry := range afterRefund {
		require.NotNil(t, entry.ExpiresAt, "refund must stamp every entry of the artwork")
		assert.WithinDuration(t, expected, *entry.ExpiresAt, time.Minute)
	}
}

func TestSweepDeletesOnlyPastRetention(t *testing.T) {
	e := newTestEnv(t)
	buyer := e.createUser(t, "alice")
	refunded := e.createArtwork(t, "100.00")
	kept := e.createArtwork(t, "100.00")
	e.fund(t, buyer.ID, "210.00")

	_, err := e.license.Purchase(buyer.ID, refunded.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)
	_, err = e.license.Refund(buyer.ID, refunded.ID)
	require.NoError(t, err)

	_, err = e.license.Purchase(buyer.ID, kept.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	// Two days in: still inside the 72h window, nothing goes.
	deleted, err := e.audit.SweepExpired(time.Now().Add(48 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	// Four days in: the refunded artwork's history is gone.
	deleted, err = e.audit.SweepExpired(time.Now().Add(96 * time.Hour))
	require.NoError(t, err)
	assert.Greater(t, deleted, int64(0))

	var remaining int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).
		Where("artwork_id = ?", refunded.ID).Count(&remaining).Error)
	assert.Equal(t, int64(0), remaining)

	// The unrefunded artwork keeps its trail indefinitely.
	var keptCount int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).
		Where("artwork_id = ?", kept.ID).Count(&keptCount).Error)
	assert.Greater(t, keptCount, int64(0))
}

func TestAuditQueryAndStats(t *testing.T) {
	e := newTestEnv(t)
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, buyer.ID, "105.00")

	_, err := e.license.Purchase(buyer.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)
	_, err = e.license.Download(buyer.ID, artwork.ID)
	require.NoError(t, err)

	logs, total, err := e.audit.Query(paginationDefaults(), models.AuditArtworkPurchased, &artwork.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditArtworkPurchased, logs[0].Action)

	stats, err := e.audit.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["total_entries"])
	assert.Equal(t, 72, stats["retention_hours"])

	byAction, ok := stats["by_action"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(1), byAction[models.AuditArtworkDownloaded])
}
