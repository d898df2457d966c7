package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table. Balance is mutated only inside
// engine transactions.
type Account struct {
	AccountID  string          `gorm:"primaryKey"`
	Persona    string          `gorm:"not null"`
	Balance    decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	ReferredBy *string         `gorm:"index:idx_accounts_referred_by"`
	CreatedAt  time.Time       `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// Moment mirrors the moments table. Price and tier are immutable after
// creation.
type Moment struct {
	MomentID     string          `gorm:"primaryKey"`
	CreatorID    string          `gorm:"not null;index:idx_moments_creator"`
	Price        decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	RequiredTier string          `gorm:"not null"`
	Kind         string          `gorm:"not null"`
	CreatedAt    time.Time       `gorm:"not null"`
}

func (Moment) TableName() string { return "moments" }

func (moment *Moment) BeforeCreate(tx *gorm.DB) error {
	if moment.MomentID == "" {
		moment.MomentID = uuid.NewString()
	}
	return nil
}

// UnlockRow mirrors the unlocks table: one paid access grant per
// (fan, moment) pair, enforced by the composite primary key.
type UnlockRow struct {
	FanID     string    `gorm:"primaryKey"`
	MomentID  string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UnlockRow) TableName() string { return "unlocks" }

// SubscriptionRow mirrors the subscriptions table.
type SubscriptionRow struct {
	SubscriptionID string          `gorm:"primaryKey"`
	FanID          string          `gorm:"not null;index:idx_subscriptions_pair,priority:1"`
	CreatorID      string          `gorm:"not null;index:idx_subscriptions_pair,priority:2"`
	Status         string          `gorm:"not null"`
	Price          decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	TierLabel      string          `gorm:"not null"`
	ExpiresAt      time.Time       `gorm:"not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

func (SubscriptionRow) TableName() string { return "subscriptions" }

func (subscription *SubscriptionRow) BeforeCreate(tx *gorm.DB) error {
	if subscription.SubscriptionID == "" {
		subscription.SubscriptionID = uuid.NewString()
	}
	return nil
}

// LoyaltyRow mirrors the loyalty_stats table. Tier is a cached value
// recomputed from lifetime_resonance on every write.
type LoyaltyRow struct {
	FanID             string          `gorm:"primaryKey"`
	CreatorID         string          `gorm:"primaryKey"`
	LifetimeResonance decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	Tier              string          `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

func (LoyaltyRow) TableName() string { return "loyalty_stats" }

// LedgerEntry mirrors the append-only ledger_entries table.
type LedgerEntry struct {
	EntryID        string          `gorm:"primaryKey"`
	SenderID       string          `gorm:"not null;index:idx_ledger_sender_created,priority:1"`
	ReceiverID     string          `gorm:"not null;index:idx_ledger_receiver_created,priority:1"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CreatorCut     decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	PlatformCut    decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	ReferralCut    decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	Type           string          `gorm:"not null"`
	Status         string          `gorm:"not null"`
	IdempotencyKey string          `gorm:"not null;uniqueIndex:uniq_ledger_idempotency"`
	Metadata       datatypes.JSON  `gorm:"not null"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_ledger_sender_created,priority:2;index:idx_ledger_receiver_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// SettlementReceipt mirrors the settlement_receipts table; the primary key
// on the gateway reference is what makes replays a no-op.
type SettlementReceipt struct {
	Reference string          `gorm:"primaryKey"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (SettlementReceipt) TableName() string { return "settlement_receipts" }
