// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// ImmutableModel is for append-only records: no soft delete, never updated.
type ImmutableModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *ImmutableModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserType string

const (
	UserTypeBuyer UserType = "buyer"
	UserTypeAdmin UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

// LicenseState is the single lifecycle state of an artwork's exclusive
// license. The legacy boolean flags the UI consumes are derived views.
type LicenseState string

const (
	LicenseStateAvailable LicenseState = "available"
	LicenseStateOwned     LicenseState = "owned"
	LicenseStateUsed      LicenseState = "used"
	LicenseStateRefunded  LicenseState = "refunded"
)

type TransactionType string

const (
	TransactionTypePurchase       TransactionType = "purchase"
	TransactionTypeP2PSale        TransactionType = "p2p_sale"
	TransactionTypeRefund         TransactionType = "refund"
	TransactionTypeManualRefund   TransactionType = "manual_refund"
	TransactionTypeManualTransfer TransactionType = "manual_transfer"
	TransactionTypeWithdrawal     TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaymentReceived OrderStatus = "PAYMENT_RECEIVED"
	OrderStatusConfirmed       OrderStatus = "CONFIRMED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
)

// Terminal reports whether no further transition may leave this status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusExpired, OrderStatusRefunded:
		return true
	}
	return false
}

type BankTransactionStatus string

const (
	BankTransactionStatusUnmatched        BankTransactionStatus = "unmatched"
	BankTransactionStatusMatched          BankTransactionStatus = "matched"
	BankTransactionStatusManuallyResolved BankTransactionStatus = "manually_resolved"
)

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
)

type LedgerDirection string

const (
	LedgerDirectionDebit  LedgerDirection = "debit"
	LedgerDirectionCredit LedgerDirection = "credit"
)

type LedgerKind string

const (
	LedgerKindPurchase     LedgerKind = "purchase"
	LedgerKindRefund       LedgerKind = "refund"
	LedgerKindSaleProceeds LedgerKind = "sale_proceeds"
	LedgerKindWithdrawal   LedgerKind = "withdrawal"
	LedgerKindAdjustment   LedgerKind = "adjustment"
	LedgerKindDeposit      LedgerKind = "deposit"
)

type AcquisitionMethod string

const (
	AcquisitionPurchase      AcquisitionMethod = "purchase"
	AcquisitionP2PSale       AcquisitionMethod = "p2p_sale"
	AcquisitionAdminTransfer AcquisitionMethod = "admin_transfer"
)

type ReleaseMethod string

const (
	ReleaseTransfer      ReleaseMethod = "transfer"
	ReleaseRefund        ReleaseMethod = "refund"
	ReleaseAdminTransfer ReleaseMethod = "admin_transfer"
)

type PaymentMethod string

const (
	PaymentMethodBalance      PaymentMethod = "balance"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)
