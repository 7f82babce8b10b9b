// internal/models/audit.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the engine.
const (
	AuditArtworkPurchased    = "artwork_purchased"
	AuditArtworkDownloaded   = "artwork_downloaded"
	AuditArtworkTransferred  = "artwork_transferred"
	AuditRefundProcessed     = "refund_processed"
	AuditOrderCreated        = "payment_order_created"
	AuditOrderCancelled      = "payment_order_cancelled"
	AuditOrderConfirmed      = "payment_order_confirmed"
	AuditOrderExpired        = "payment_order_expired"
	AuditOrderRefunded       = "payment_order_refunded"
	AuditBankTxRecorded      = "bank_transaction_recorded"
	AuditBankTxMatched       = "bank_transaction_matched"
	AuditBankTxResolved      = "bank_transaction_resolved"
	AuditListingCreated      = "listing_created"
	AuditListingSold         = "listing_sold"
	AuditListingCancelled    = "listing_cancelled"
	AuditWithdrawalRequested = "withdrawal_requested"
	AuditAdminOverride       = "admin_override"
)

// AuditLog is append-only. ExpiresAt stays null for indefinite retention;
// refund flows set it to refund time + 72h on rows referencing the refunded
// artwork, after which the sweep hard-deletes them.
type AuditLog struct {
	ImmutableModel
	Action    string     `json:"action" gorm:"size:100;not null;index"`
	ActorID   *uuid.UUID `json:"actor_id" gorm:"type:uuid;index"`
	ArtworkID *uuid.UUID `json:"artwork_id" gorm:"type:uuid;index"`
	OrderID   *uuid.UUID `json:"order_id" gorm:"type:uuid;index"`
	Details   JSONB      `json:"details,omitempty" gorm:"type:jsonb"`
	IPAddress string     `json:"ip_address,omitempty" gorm:"size:45"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`

	// Relationships
	Actor *User `json:"actor,omitempty" gorm:"foreignKey:ActorID"`
}

// Admin notification types and priorities.
const (
	NotificationUnmatchedTransaction = "unmatched_transaction"
	NotificationOrderExpired         = "order_expired"

	NotificationPriorityHigh   = "high"
	NotificationPriorityMedium = "medium"

	NotificationStatusUnread = "unread"
	NotificationStatusRead   = "read"
)

// AdminNotification surfaces events that need manual attention on the admin
// payment console, most importantly unmatched bank transactions.
type AdminNotification struct {
	BaseModel
	Type                string     `json:"type" gorm:"type:varchar(50);not null;index"`
	Title               string     `json:"title" gorm:"size:255;not null"`
	Message             string     `json:"message" gorm:"type:text;not null"`
	Priority            string     `json:"priority" gorm:"type:varchar(20);default:'medium';index"`
	Status              string     `json:"status" gorm:"type:varchar(20);default:'unread';index"`
	RelatedResourceType string     `json:"related_resource_type,omitempty" gorm:"size:50"`
	RelatedResourceID   *uuid.UUID `json:"related_resource_id" gorm:"type:uuid"`
	ReadAt              *time.Time `json:"read_at"`
}
