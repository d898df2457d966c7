package resonance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative decimal quantity of resonance.
// Money is never represented in binary floating point.
type Amount struct {
	value decimal.Decimal
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// NewAmount validates a non-negative amount.
func NewAmount(raw decimal.Decimal) (Amount, error) {
	if raw.IsNegative() {
		return Amount{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount{value: raw}, nil
}

// NewPositiveAmount validates a strictly positive amount.
func NewPositiveAmount(raw decimal.Decimal) (Amount, error) {
	if !raw.IsPositive() {
		return Amount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount{value: raw}, nil
}

// ParseAmount parses a decimal string into a non-negative amount.
func ParseAmount(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return NewAmount(parsed)
}

// AmountFromMinorUnits converts gateway minor units (hundredths) to an amount.
func AmountFromMinorUnits(minor int64) (Amount, error) {
	if minor < 0 {
		return Amount{}, fmt.Errorf("%w: minor units must not be negative", ErrInvalidAmount)
	}
	return Amount{value: decimal.New(minor, -2)}, nil
}

func amountOf(raw decimal.Decimal) Amount {
	return Amount{value: raw}
}

// Add returns the sum of two amounts.
func (amount Amount) Add(other Amount) Amount {
	return Amount{value: amount.value.Add(other.value)}
}

// Cmp compares two amounts (-1, 0, +1).
func (amount Amount) Cmp(other Amount) int {
	return amount.value.Cmp(other.value)
}

// IsZero reports whether the amount is exactly zero.
func (amount Amount) IsZero() bool {
	return amount.value.IsZero()
}

// Decimal exposes the underlying decimal value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String renders the amount as a decimal string.
func (amount Amount) String() string {
	return amount.value.String()
}

// AccountID identifies an account.
type AccountID struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// MomentID identifies a content item.
type MomentID struct {
	value string
}

// NewMomentID validates and normalizes a moment id.
func NewMomentID(raw string) (MomentID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MomentID{}, fmt.Errorf("%w: empty value", ErrInvalidMomentID)
	}
	return MomentID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id MomentID) String() string {
	return id.value
}

// IdempotencyKey scopes duplicate detection for wallet operations.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// Persona distinguishes creators from fans.
type Persona string

const (
	PersonaCreator Persona = "creator"
	PersonaFan     Persona = "fan"
)

// ParsePersona validates a persona label.
func ParsePersona(raw string) (Persona, error) {
	switch Persona(strings.TrimSpace(raw)) {
	case PersonaCreator:
		return PersonaCreator, nil
	case PersonaFan:
		return PersonaFan, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPersona, raw)
	}
}

// String returns the persona label.
func (persona Persona) String() string {
	return string(persona)
}

// MomentKind distinguishes public moments from paywalled ones.
type MomentKind string

const (
	KindPublic    MomentKind = "public"
	KindPaywalled MomentKind = "paywalled"
)

// ParseMomentKind validates a moment kind label.
func ParseMomentKind(raw string) (MomentKind, error) {
	switch MomentKind(strings.TrimSpace(raw)) {
	case KindPublic:
		return KindPublic, nil
	case KindPaywalled:
		return KindPaywalled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMomentKind, raw)
	}
}

// String returns the kind label.
func (kind MomentKind) String() string {
	return string(kind)
}

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntrySubscription EntryType = "subscription"
	EntryUnlock       EntryType = "unlock"
	EntryTip          EntryType = "tip"
	EntryWithdrawal   EntryType = "withdrawal"
	EntryBoost        EntryType = "boost"
)

// ParseEntryType validates an entry type label.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(strings.TrimSpace(raw)) {
	case EntrySubscription, EntryUnlock, EntryTip, EntryWithdrawal, EntryBoost:
		return EntryType(strings.TrimSpace(raw)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
	}
}

// String returns the type label.
func (entryType EntryType) String() string {
	return string(entryType)
}

// EntryStatus describes a ledger entry's settlement state.
type EntryStatus string

const (
	EntryStatusSuccess EntryStatus = "success"
	EntryStatusPending EntryStatus = "pending"
)

// ParseEntryStatus validates an entry status label.
func ParseEntryStatus(raw string) (EntryStatus, error) {
	switch EntryStatus(strings.TrimSpace(raw)) {
	case EntryStatusSuccess:
		return EntryStatusSuccess, nil
	case EntryStatusPending:
		return EntryStatusPending, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryStatus, raw)
	}
}

// String returns the status label.
func (status EntryStatus) String() string {
	return string(status)
}

// SubscriptionStatus describes the subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus validates a subscription status label.
func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	switch SubscriptionStatus(strings.TrimSpace(raw)) {
	case SubscriptionActive:
		return SubscriptionActive, nil
	case SubscriptionExpired:
		return SubscriptionExpired, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSubscriptionStatus, raw)
	}
}

// String returns the status label.
func (status SubscriptionStatus) String() string {
	return string(status)
}

// Account owns a wallet balance. Balances are mutated only inside
// engine transactions.
type Account struct {
	ID         AccountID
	Persona    Persona
	Balance    Amount
	ReferredBy *AccountID
}

// Moment is a creator's content item, optionally paywalled.
type Moment struct {
	ID           MomentID
	CreatorID    AccountID
	Price        Amount
	RequiredTier Tier
	Kind         MomentKind
}

// Unlock records a one-time paid access grant, unique per (fan, moment).
type Unlock struct {
	FanID          AccountID
	MomentID       MomentID
	CreatedUnixUTC int64
}

// Subscription ties a fan to a creator for a period.
type Subscription struct {
	FanID            AccountID
	CreatorID        AccountID
	Status           SubscriptionStatus
	Price            Amount
	TierLabel        string
	ExpiresAtUnixUTC int64
}

// LoyaltyStats tracks one fan's cumulative spend toward one creator.
// Tier is derived from LifetimeResonance, never set independently.
type LoyaltyStats struct {
	FanID             AccountID
	CreatorID         AccountID
	LifetimeResonance Amount
	Tier              Tier
}

// EntryInput is a ledger line to append.
type EntryInput struct {
	SenderID       AccountID
	ReceiverID     AccountID
	Amount         Amount
	CreatorCut     Amount
	PlatformCut    Amount
	ReferralCut    Amount
	Type           EntryType
	Status         EntryStatus
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
	CreatedUnixUTC int64
}

// Entry is a stored immutable ledger line.
type Entry struct {
	EntryID        string
	SenderID       AccountID
	ReceiverID     AccountID
	Amount         Amount
	CreatorCut     Amount
	PlatformCut    Amount
	ReferralCut    Amount
	Type           EntryType
	Status         EntryStatus
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
	CreatedUnixUTC int64
}

// SettlementReceipt deduplicates gateway notifications by reference.
type SettlementReceipt struct {
	Reference      string
	Amount         Amount
	CreatedUnixUTC int64
}

// AccessDecision is the read-time lock state for a viewer and a moment.
type AccessDecision struct {
	Locked     bool
	ViewerTier Tier
}

// Store is the persistence contract used by Service. Implementations must
// make WithTx all-or-nothing with at least read-committed isolation and
// row-level locking on accounts.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id AccountID) (Account, error)
	LockAccount(ctx context.Context, id AccountID) (Account, error)
	AddToBalance(ctx context.Context, id AccountID, delta Amount) error
	SubtractFromBalance(ctx context.Context, id AccountID, delta Amount) error
	CreateMoment(ctx context.Context, moment Moment) error
	GetMoment(ctx context.Context, id MomentID) (Moment, error)
	HasUnlock(ctx context.Context, fanID AccountID, momentID MomentID) (bool, error)
	InsertUnlock(ctx context.Context, unlock Unlock) error
	ActiveSubscription(ctx context.Context, fanID AccountID, creatorID AccountID, atUnixUTC int64) (Subscription, bool, error)
	InsertSubscription(ctx context.Context, subscription Subscription) error
	ExtendSubscription(ctx context.Context, fanID AccountID, creatorID AccountID, expiresAtUnixUTC int64) error
	GetLoyalty(ctx context.Context, fanID AccountID, creatorID AccountID) (LoyaltyStats, bool, error)
	SaveLoyalty(ctx context.Context, stats LoyaltyStats) error
	InsertEntry(ctx context.Context, entry EntryInput) error
	ListEntries(ctx context.Context, accountID AccountID, beforeUnixUTC int64, limit int) ([]Entry, error)
	HasSettlement(ctx context.Context, reference string) (bool, error)
	InsertSettlement(ctx context.Context, receipt SettlementReceipt) error
}
