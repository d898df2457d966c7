package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/resonance/pkg/resonance"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore    = "store"
	errorSubjectAccount    = "account"
	errorSubjectMoment     = "moment"
	errorSubjectUnlock     = "unlock"
	errorSubjectSub        = "subscription"
	errorSubjectLoyalty    = "loyalty"
	errorSubjectEntry      = "entry"
	errorSubjectSettlement = "settlement"
	errorSubjectTx         = "tx"

	errorCodeAborted   = "aborted"
	errorCodeBalance   = "balance"
	errorCodeCreate    = "create"
	errorCodeDuplicate = "duplicate"
	errorCodeExtend    = "extend"
	errorCodeGet       = "get"
	errorCodeInsert    = "insert"
	errorCodeInvalid   = "invalid"
	errorCodeList      = "list"
	errorCodeLookup    = "lookup"
	errorCodeUpsert    = "upsert"
)

// Store implements resonance.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&Moment{},
		&UnlockRow{},
		&SubscriptionRow{},
		&LoyaltyRow{},
		&LedgerEntry{},
		&SettlementReceipt{},
	)
}

// WithTx executes fn within a transaction. Store failures that are not part
// of the domain taxonomy surface as retryable ErrTransactionAborted.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore resonance.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return wrapStoreError(errorSubjectTx, errorCodeAborted, fmt.Errorf("%w: %v", resonance.ErrTransactionAborted, err))
}

func (store *Store) CreateAccount(ctx context.Context, account resonance.Account) error {
	var referredBy *string
	if account.ReferredBy != nil {
		value := account.ReferredBy.String()
		referredBy = &value
	}
	model := Account{
		AccountID:  account.ID.String(),
		Persona:    account.Persona.String(),
		Balance:    account.Balance.Decimal(),
		ReferredBy: referredBy,
		CreatedAt:  time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, id resonance.AccountID) (resonance.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Where("account_id = ?", id.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, resonance.ErrNotFound)
		}
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(model)
}

// LockAccount reads the account row under a FOR UPDATE lock so that the
// funds check and the debit stay in one serialized unit.
func (store *Store) LockAccount(ctx context.Context, id resonance.AccountID) (resonance.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", id.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, resonance.ErrNotFound)
		}
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(model)
}

// AddToBalance applies an atomic in-database increment.
func (store *Store) AddToBalance(ctx context.Context, id resonance.AccountID, delta resonance.Amount) error {
	return store.adjustBalance(ctx, id, "balance + ?", delta)
}

// SubtractFromBalance applies an atomic in-database decrement.
func (store *Store) SubtractFromBalance(ctx context.Context, id resonance.AccountID, delta resonance.Amount) error {
	return store.adjustBalance(ctx, id, "balance - ?", delta)
}

func (store *Store) adjustBalance(ctx context.Context, id resonance.AccountID, expression string, delta resonance.Amount) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", id.String()).
		UpdateColumn("balance", gorm.Expr(expression, delta.Decimal()))
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeBalance, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeBalance, resonance.ErrNotFound)
	}
	return nil
}

func (store *Store) CreateMoment(ctx context.Context, moment resonance.Moment) error {
	model := Moment{
		MomentID:     moment.ID.String(),
		CreatorID:    moment.CreatorID.String(),
		Price:        moment.Price.Decimal(),
		RequiredTier: moment.RequiredTier.String(),
		Kind:         moment.Kind.String(),
		CreatedAt:    time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectMoment, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetMoment(ctx context.Context, id resonance.MomentID) (resonance.Moment, error) {
	var model Moment
	err := store.db.WithContext(ctx).
		Where("moment_id = ?", id.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeGet, resonance.ErrNotFound)
		}
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeGet, err)
	}
	return mapMoment(model)
}

func (store *Store) HasUnlock(ctx context.Context, fanID resonance.AccountID, momentID resonance.MomentID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&UnlockRow{}).
		Where("fan_id = ? AND moment_id = ?", fanID.String(), momentID.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectUnlock, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) InsertUnlock(ctx context.Context, unlock resonance.Unlock) error {
	model := UnlockRow{
		FanID:     unlock.FanID.String(),
		MomentID:  unlock.MomentID.String(),
		CreatedAt: time.Unix(unlock.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectUnlock, errorCodeDuplicate, resonance.ErrAlreadyUnlocked)
	}
	if err != nil {
		return wrapStoreError(errorSubjectUnlock, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ActiveSubscription(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID, atUnixUTC int64) (resonance.Subscription, bool, error) {
	var model SubscriptionRow
	err := store.db.WithContext(ctx).
		Where("fan_id = ? AND creator_id = ? AND status = ? AND expires_at > ?",
			fanID.String(), creatorID.String(), resonance.SubscriptionActive.String(), time.Unix(atUnixUTC, 0).UTC()).
		Order("expires_at DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resonance.Subscription{}, false, nil
		}
		return resonance.Subscription{}, false, wrapStoreError(errorSubjectSub, errorCodeLookup, err)
	}
	subscription, err := mapSubscription(model)
	if err != nil {
		return resonance.Subscription{}, false, err
	}
	return subscription, true, nil
}

func (store *Store) InsertSubscription(ctx context.Context, subscription resonance.Subscription) error {
	model := SubscriptionRow{
		FanID:     subscription.FanID.String(),
		CreatorID: subscription.CreatorID.String(),
		Status:    subscription.Status.String(),
		Price:     subscription.Price.Decimal(),
		TierLabel: subscription.TierLabel,
		ExpiresAt: time.Unix(subscription.ExpiresAtUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectSub, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ExtendSubscription(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID, expiresAtUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&SubscriptionRow{}).
		Where("fan_id = ? AND creator_id = ? AND status = ?",
			fanID.String(), creatorID.String(), resonance.SubscriptionActive.String()).
		Update("expires_at", time.Unix(expiresAtUnixUTC, 0).UTC())
	if result.Error != nil {
		return wrapStoreError(errorSubjectSub, errorCodeExtend, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSub, errorCodeExtend, resonance.ErrNotFound)
	}
	return nil
}

func (store *Store) GetLoyalty(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID) (resonance.LoyaltyStats, bool, error) {
	var model LoyaltyRow
	err := store.db.WithContext(ctx).
		Where("fan_id = ? AND creator_id = ?", fanID.String(), creatorID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resonance.LoyaltyStats{}, false, nil
		}
		return resonance.LoyaltyStats{}, false, wrapStoreError(errorSubjectLoyalty, errorCodeLookup, err)
	}
	stats, err := mapLoyalty(model)
	if err != nil {
		return resonance.LoyaltyStats{}, false, err
	}
	return stats, true, nil
}

func (store *Store) SaveLoyalty(ctx context.Context, stats resonance.LoyaltyStats) error {
	model := LoyaltyRow{
		FanID:             stats.FanID.String(),
		CreatorID:         stats.CreatorID.String(),
		LifetimeResonance: stats.LifetimeResonance.Decimal(),
		Tier:              stats.Tier.String(),
		UpdatedAt:         time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fan_id"}, {Name: "creator_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"lifetime_resonance", "tier", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectLoyalty, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entryInput resonance.EntryInput) error {
	entry := LedgerEntry{
		SenderID:       entryInput.SenderID.String(),
		ReceiverID:     entryInput.ReceiverID.String(),
		Amount:         entryInput.Amount.Decimal(),
		CreatorCut:     entryInput.CreatorCut.Decimal(),
		PlatformCut:    entryInput.PlatformCut.Decimal(),
		ReferralCut:    entryInput.ReferralCut.Decimal(),
		Type:           entryInput.Type.String(),
		Status:         entryInput.Status.String(),
		IdempotencyKey: entryInput.IdempotencyKey.String(),
		Metadata:       datatypesJSON(entryInput.Metadata.String()),
		CreatedAt:      time.Unix(entryInput.CreatedUnixUTC, 0).UTC(),
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&entry).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, resonance.ErrDuplicateOperation)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, accountID resonance.AccountID, beforeUnixUTC int64, limit int) ([]resonance.Entry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?) AND created_at < ?", accountID.String(), accountID.String(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]resonance.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) HasSettlement(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&SettlementReceipt{}).
		Where("reference = ?", reference).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectSettlement, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) InsertSettlement(ctx context.Context, receipt resonance.SettlementReceipt) error {
	model := SettlementReceipt{
		Reference: receipt.Reference,
		Amount:    receipt.Amount.Decimal(),
		CreatedAt: time.Unix(receipt.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectSettlement, errorCodeDuplicate, resonance.ErrDuplicateSettlement)
	}
	if err != nil {
		return wrapStoreError(errorSubjectSettlement, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return resonance.WrapError(errorOperationStore, subject, code, err)
}

func mapAccount(model Account) (resonance.Account, error) {
	accountID, err := resonance.NewAccountID(model.AccountID)
	if err != nil {
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	persona, err := resonance.ParsePersona(model.Persona)
	if err != nil {
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	balance, err := resonance.NewAmount(model.Balance)
	if err != nil {
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	var referredBy *resonance.AccountID
	if model.ReferredBy != nil {
		parsed, err := resonance.NewAccountID(*model.ReferredBy)
		if err != nil {
			return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		referredBy = &parsed
	}
	return resonance.Account{
		ID:         accountID,
		Persona:    persona,
		Balance:    balance,
		ReferredBy: referredBy,
	}, nil
}

func mapMoment(model Moment) (resonance.Moment, error) {
	momentID, err := resonance.NewMomentID(model.MomentID)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	creatorID, err := resonance.NewAccountID(model.CreatorID)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	price, err := resonance.NewAmount(model.Price)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	requiredTier, err := resonance.ParseTier(model.RequiredTier)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	kind, err := resonance.ParseMomentKind(model.Kind)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	return resonance.Moment{
		ID:           momentID,
		CreatorID:    creatorID,
		Price:        price,
		RequiredTier: requiredTier,
		Kind:         kind,
	}, nil
}

func mapSubscription(model SubscriptionRow) (resonance.Subscription, error) {
	fanID, err := resonance.NewAccountID(model.FanID)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	creatorID, err := resonance.NewAccountID(model.CreatorID)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	status, err := resonance.ParseSubscriptionStatus(model.Status)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	price, err := resonance.NewAmount(model.Price)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	return resonance.Subscription{
		FanID:            fanID,
		CreatorID:        creatorID,
		Status:           status,
		Price:            price,
		TierLabel:        model.TierLabel,
		ExpiresAtUnixUTC: model.ExpiresAt.Unix(),
	}, nil
}

func mapLoyalty(model LoyaltyRow) (resonance.LoyaltyStats, error) {
	fanID, err := resonance.NewAccountID(model.FanID)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	creatorID, err := resonance.NewAccountID(model.CreatorID)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	lifetime, err := resonance.NewAmount(model.LifetimeResonance)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	tier, err := resonance.ParseTier(model.Tier)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	return resonance.LoyaltyStats{
		FanID:             fanID,
		CreatorID:         creatorID,
		LifetimeResonance: lifetime,
		Tier:              tier,
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (resonance.Entry, error) {
	senderID, err := resonance.NewAccountID(row.SenderID)
	if err != nil {
		return resonance.Entry{}, err
	}
	receiverID, err := resonance.NewAccountID(row.ReceiverID)
	if err != nil {
		return resonance.Entry{}, err
	}
	amount, err := resonance.NewAmount(row.Amount)
	if err != nil {
		return resonance.Entry{}, err
	}
	creatorCut, err := resonance.NewAmount(row.CreatorCut)
	if err != nil {
		return resonance.Entry{}, err
	}
	platformCut, err := resonance.NewAmount(row.PlatformCut)
	if err != nil {
		return resonance.Entry{}, err
	}
	referralCut, err := resonance.NewAmount(row.ReferralCut)
	if err != nil {
		return resonance.Entry{}, err
	}
	entryType, err := resonance.ParseEntryType(row.Type)
	if err != nil {
		return resonance.Entry{}, err
	}
	status, err := resonance.ParseEntryStatus(row.Status)
	if err != nil {
		return resonance.Entry{}, err
	}
	idempotencyKey, err := resonance.NewIdempotencyKey(row.IdempotencyKey)
	if err != nil {
		return resonance.Entry{}, err
	}
	metadata, err := resonance.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return resonance.Entry{}, err
	}
	return resonance.Entry{
		EntryID:        row.EntryID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Amount:         amount,
		CreatorCut:     creatorCut,
		PlatformCut:    platformCut,
		ReferralCut:    referralCut,
		Type:           entryType,
		Status:         status,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

var domainErrors = []error{
	resonance.ErrInsufficientFunds,
	resonance.ErrSelfTransaction,
	resonance.ErrInadequateTier,
	resonance.ErrNotFound,
	resonance.ErrAlreadyUnlocked,
	resonance.ErrNotPaywalled,
	resonance.ErrDuplicateOperation,
	resonance.ErrDuplicateSettlement,
	resonance.ErrInvalidAmount,
	resonance.ErrInvalidEntryType,
	resonance.ErrInvalidIdempotencyKey,
	resonance.ErrInvalidMomentID,
	resonance.ErrInvalidReference,
}

func isDomainError(err error) bool {
	for _, sentinel := range domainErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
