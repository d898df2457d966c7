// Package pgstore implements resonance.Store directly on pgx for
// deployments that want Postgres without the ORM layer. Schema and
// semantics match the gormstore tables.
package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MarkoPoloResearchLab/resonance/pkg/resonance"
)

const (
	constraintUnlocksPrimary     = "unlocks_pkey"
	constraintSettlementsPrimary = "settlement_receipts_pkey"
	constraintLedgerIdempotency  = "uniq_ledger_idempotency"
	pgUniqueViolationCode        = "23505"

	errorOperationStore    = "store"
	errorSubjectAccount    = "account"
	errorSubjectMoment     = "moment"
	errorSubjectUnlock     = "unlock"
	errorSubjectSub        = "subscription"
	errorSubjectLoyalty    = "loyalty"
	errorSubjectEntry      = "entry"
	errorSubjectSettlement = "settlement"
	errorSubjectTx         = "tx"

	errorCodeBegin     = "begin"
	errorCodeCommit    = "commit"
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

	sqlInsertAccount = `
		insert into accounts(account_id, persona, balance, referred_by, created_at)
		values ($1, $2, $3, $4, now())
	`

	sqlSelectAccount = `
		select account_id, persona, balance, coalesce(referred_by, '')
		from accounts
		where account_id = $1
	`

	sqlSelectAccountForUpdate = sqlSelectAccount + ` for update`

	sqlAddToBalance = `
		update accounts set balance = balance + $2 where account_id = $1
	`

	sqlSubtractFromBalance = `
		update accounts set balance = balance - $2 where account_id = $1
	`

	sqlInsertMoment = `
		insert into moments(moment_id, creator_id, price, required_tier, kind, created_at)
		values ($1, $2, $3, $4, $5, now())
	`

	sqlSelectMoment = `
		select moment_id, creator_id, price, required_tier, kind
		from moments
		where moment_id = $1
	`

	sqlCountUnlock = `
		select count(1) from unlocks where fan_id = $1 and moment_id = $2
	`

	sqlInsertUnlock = `
		insert into unlocks(fan_id, moment_id, created_at)
		values ($1, $2, to_timestamp($3))
	`

	sqlSelectActiveSubscription = `
		select fan_id, creator_id, status, price, tier_label, extract(epoch from expires_at)::bigint
		from subscriptions
		where fan_id = $1 and creator_id = $2 and status = 'active' and expires_at > to_timestamp($3)
		order by expires_at desc
		limit 1
	`

	sqlInsertSubscription = `
		insert into subscriptions(subscription_id, fan_id, creator_id, status, price, tier_label, expires_at, created_at, updated_at)
		values (gen_random_uuid(), $1, $2, $3, $4, $5, to_timestamp($6), now(), now())
	`

	sqlExtendSubscription = `
		update subscriptions
		set expires_at = to_timestamp($3), updated_at = now()
		where fan_id = $1 and creator_id = $2 and status = 'active'
	`

	sqlSelectLoyalty = `
		select fan_id, creator_id, lifetime_resonance, tier
		from loyalty_stats
		where fan_id = $1 and creator_id = $2
	`

	sqlUpsertLoyalty = `
		insert into loyalty_stats(fan_id, creator_id, lifetime_resonance, tier, updated_at)
		values ($1, $2, $3, $4, now())
		on conflict (fan_id, creator_id)
		do update set lifetime_resonance = excluded.lifetime_resonance, tier = excluded.tier, updated_at = now()
	`

	sqlInsertEntry = `
		insert into ledger_entries(
			entry_id, sender_id, receiver_id, amount, creator_cut, platform_cut, referral_cut,
			type, status, idempotency_key, metadata, created_at
		)
		values (
			gen_random_uuid(), $1, $2, $3, $4, $5, $6,
			$7, $8, $9, coalesce(nullif($10,''),'{}')::jsonb, to_timestamp($11)
		)
	`

	sqlListEntries = `
		select
			entry_id::text, sender_id, receiver_id, amount, creator_cut, platform_cut, referral_cut,
			type, status, idempotency_key, coalesce(metadata::text,'{}'),
			extract(epoch from created_at)::bigint
		from ledger_entries
		where (sender_id = $1 or receiver_id = $1) and created_at < to_timestamp($2)
		order by created_at desc
		limit $3
	`

	sqlCountSettlement = `
		select count(1) from settlement_receipts where reference = $1
	`

	sqlInsertSettlement = `
		insert into settlement_receipts(reference, amount, created_at)
		values ($1, $2, to_timestamp($3))
	`
)

// querier abstracts the shared query surface of a pgx pool and a pgx
// transaction so the read/write helpers run in either context.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements resonance.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
}

// TxStore implements resonance.Store for an active transaction.
type TxStore struct {
	tx pgx.Tx
}

var (
	_ resonance.Store = (*Store)(nil)
	_ resonance.Store = (*TxStore)(nil)
)

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore resonance.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeBegin, err)
	}
	transactionStore := &TxStore{tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) CreateAccount(ctx context.Context, account resonance.Account) error {
	return createAccount(ctx, store.pool, account)
}

func (store *Store) GetAccount(ctx context.Context, id resonance.AccountID) (resonance.Account, error) {
	return selectAccount(ctx, store.pool, sqlSelectAccount, id)
}

func (store *Store) LockAccount(ctx context.Context, id resonance.AccountID) (resonance.Account, error) {
	return selectAccount(ctx, store.pool, sqlSelectAccountForUpdate, id)
}

func (store *Store) AddToBalance(ctx context.Context, id resonance.AccountID, delta resonance.Amount) error {
	return adjustBalance(ctx, store.pool, sqlAddToBalance, id, delta)
}

func (store *Store) SubtractFromBalance(ctx context.Context, id resonance.AccountID, delta resonance.Amount) error {
	return adjustBalance(ctx, store.pool, sqlSubtractFromBalance, id, delta)
}

func (store *Store) CreateMoment(ctx context.Context, moment resonance.Moment) error {
	return createMoment(ctx, store.pool, moment)
}

func (store *Store) GetMoment(ctx context.Context, id resonance.MomentID) (resonance.Moment, error) {
	return selectMoment(ctx, store.pool, id)
}

func (store *Store) HasUnlock(ctx context.Context, fanID resonance.AccountID, momentID resonance.MomentID) (bool, error) {
	return hasUnlock(ctx, store.pool, fanID, momentID)
}

func (store *Store) InsertUnlock(ctx context.Context, unlock resonance.Unlock) error {
	return insertUnlock(ctx, store.pool, unlock)
}

func (store *Store) ActiveSubscription(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID, atUnixUTC int64) (resonance.Subscription, bool, error) {
	return activeSubscription(ctx, store.pool, fanID, creatorID, atUnixUTC)
}

func (store *Store) InsertSubscription(ctx context.Context, subscription resonance.Subscription) error {
	return insertSubscription(ctx, store.pool, subscription)
}

func (store *Store) ExtendSubscription(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID, expiresAtUnixUTC int64) error {
	return extendSubscription(ctx, store.pool, fanID, creatorID, expiresAtUnixUTC)
}

func (store *Store) GetLoyalty(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID) (resonance.LoyaltyStats, bool, error) {
	return selectLoyalty(ctx, store.pool, fanID, creatorID)
}

func (store *Store) SaveLoyalty(ctx context.Context, stats resonance.LoyaltyStats) error {
	return upsertLoyalty(ctx, store.pool, stats)
}

func (store *Store) InsertEntry(ctx context.Context, entry resonance.EntryInput) error {
	return insertEntry(ctx, store.pool, entry)
}

func (store *Store) ListEntries(ctx context.Context, accountID resonance.AccountID, beforeUnixUTC int64, limit int) ([]resonance.Entry, error) {
	return listEntries(ctx, store.pool, accountID, beforeUnixUTC, limit)
}

func (store *Store) HasSettlement(ctx context.Context, reference string) (bool, error) {
	return hasSettlement(ctx, store.pool, reference)
}

func (store *Store) InsertSettlement(ctx context.Context, receipt resonance.SettlementReceipt) error {
	return insertSettlement(ctx, store.pool, receipt)
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore resonance.Store) error) error {
	return fn(ctx, store)
}

func (store *TxStore) CreateAccount(ctx context.Context, account resonance.Account) error {
	return createAccount(ctx, store.tx, account)
}

func (store *TxStore) GetAccount(ctx context.Context, id resonance.AccountID) (resonance.Account, error) {
	return selectAccount(ctx, store.tx, sqlSelectAccount, id)
}

func (store *TxStore) LockAccount(ctx context.Context, id resonance.AccountID) (resonance.Account, error) {
	return selectAccount(ctx, store.tx, sqlSelectAccountForUpdate, id)
}

func (store *TxStore) AddToBalance(ctx context.Context, id resonance.AccountID, delta resonance.Amount) error {
	return adjustBalance(ctx, store.tx, sqlAddToBalance, id, delta)
}

func (store *TxStore) SubtractFromBalance(ctx context.Context, id resonance.AccountID, delta resonance.Amount) error {
	return adjustBalance(ctx, store.tx, sqlSubtractFromBalance, id, delta)
}

func (store *TxStore) CreateMoment(ctx context.Context, moment resonance.Moment) error {
	return createMoment(ctx, store.tx, moment)
}

func (store *TxStore) GetMoment(ctx context.Context, id resonance.MomentID) (resonance.Moment, error) {
	return selectMoment(ctx, store.tx, id)
}

func (store *TxStore) HasUnlock(ctx context.Context, fanID resonance.AccountID, momentID resonance.MomentID) (bool, error) {
	return hasUnlock(ctx, store.tx, fanID, momentID)
}

func (store *TxStore) InsertUnlock(ctx context.Context, unlock resonance.Unlock) error {
	return insertUnlock(ctx, store.tx, unlock)
}

func (store *TxStore) ActiveSubscription(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID, atUnixUTC int64) (resonance.Subscription, bool, error) {
	return activeSubscription(ctx, store.tx, fanID, creatorID, atUnixUTC)
}

func (store *TxStore) InsertSubscription(ctx context.Context, subscription resonance.Subscription) error {
	return insertSubscription(ctx, store.tx, subscription)
}

func (store *TxStore) ExtendSubscription(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID, expiresAtUnixUTC int64) error {
	return extendSubscription(ctx, store.tx, fanID, creatorID, expiresAtUnixUTC)
}

func (store *TxStore) GetLoyalty(ctx context.Context, fanID resonance.AccountID, creatorID resonance.AccountID) (resonance.LoyaltyStats, bool, error) {
	return selectLoyalty(ctx, store.tx, fanID, creatorID)
}

func (store *TxStore) SaveLoyalty(ctx context.Context, stats resonance.LoyaltyStats) error {
	return upsertLoyalty(ctx, store.tx, stats)
}

func (store *TxStore) InsertEntry(ctx context.Context, entry resonance.EntryInput) error {
	return insertEntry(ctx, store.tx, entry)
}

func (store *TxStore) ListEntries(ctx context.Context, accountID resonance.AccountID, beforeUnixUTC int64, limit int) ([]resonance.Entry, error) {
	return listEntries(ctx, store.tx, accountID, beforeUnixUTC, limit)
}

func (store *TxStore) HasSettlement(ctx context.Context, reference string) (bool, error) {
	return hasSettlement(ctx, store.tx, reference)
}

func (store *TxStore) InsertSettlement(ctx context.Context, receipt resonance.SettlementReceipt) error {
	return insertSettlement(ctx, store.tx, receipt)
}

func createAccount(ctx context.Context, db querier, account resonance.Account) error {
	var referredBy *string
	if account.ReferredBy != nil {
		value := account.ReferredBy.String()
		referredBy = &value
	}
	_, err := db.Exec(ctx, sqlInsertAccount,
		account.ID.String(),
		account.Persona.String(),
		account.Balance.Decimal(),
		referredBy,
	)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func selectAccount(ctx context.Context, db querier, query string, id resonance.AccountID) (resonance.Account, error) {
	var (
		accountIDValue string
		personaValue   string
		balanceValue   decimal.Decimal
		referredValue  string
	)
	err := db.QueryRow(ctx, query, id.String()).Scan(&accountIDValue, &personaValue, &balanceValue, &referredValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, resonance.ErrNotFound)
		}
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(accountIDValue, personaValue, balanceValue, referredValue)
}

func adjustBalance(ctx context.Context, db querier, query string, id resonance.AccountID, delta resonance.Amount) error {
	tag, err := db.Exec(ctx, query, id.String(), delta.Decimal())
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeBalance, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeBalance, resonance.ErrNotFound)
	}
	return nil
}

func createMoment(ctx context.Context, db querier, moment resonance.Moment) error {
	_, err := db.Exec(ctx, sqlInsertMoment,
		moment.ID.String(),
		moment.CreatorID.String(),
		moment.Price.Decimal(),
		moment.RequiredTier.String(),
		moment.Kind.String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectMoment, errorCodeCreate, err)
	}
	return nil
}

func selectMoment(ctx context.Context, db querier, id resonance.MomentID) (resonance.Moment, error) {
	var (
		momentIDValue string
		creatorValue  string
		priceValue    decimal.Decimal
		tierValue     string
		kindValue     string
	)
	err := db.QueryRow(ctx, sqlSelectMoment, id.String()).Scan(&momentIDValue, &creatorValue, &priceValue, &tierValue, &kindValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeGet, resonance.ErrNotFound)
		}
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeGet, err)
	}
	return mapMoment(momentIDValue, creatorValue, priceValue, tierValue, kindValue)
}

func hasUnlock(ctx context.Context, db querier, fanID resonance.AccountID, momentID resonance.MomentID) (bool, error) {
	var count int64
	err := db.QueryRow(ctx, sqlCountUnlock, fanID.String(), momentID.String()).Scan(&count)
	if err != nil {
		return false, wrapStoreError(errorSubjectUnlock, errorCodeLookup, err)
	}
	return count > 0, nil
}

func insertUnlock(ctx context.Context, db querier, unlock resonance.Unlock) error {
	_, err := db.Exec(ctx, sqlInsertUnlock, unlock.FanID.String(), unlock.MomentID.String(), unlock.CreatedUnixUTC)
	if isConstraintViolation(err, constraintUnlocksPrimary) {
		return wrapStoreError(errorSubjectUnlock, errorCodeDuplicate, resonance.ErrAlreadyUnlocked)
	}
	if err != nil {
		return wrapStoreError(errorSubjectUnlock, errorCodeInsert, err)
	}
	return nil
}

func activeSubscription(ctx context.Context, db querier, fanID resonance.AccountID, creatorID resonance.AccountID, atUnixUTC int64) (resonance.Subscription, bool, error) {
	var (
		fanValue     string
		creatorValue string
		statusValue  string
		priceValue   decimal.Decimal
		tierValue    string
		expiresValue int64
	)
	err := db.QueryRow(ctx, sqlSelectActiveSubscription, fanID.String(), creatorID.String(), atUnixUTC).Scan(
		&fanValue, &creatorValue, &statusValue, &priceValue, &tierValue, &expiresValue,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resonance.Subscription{}, false, nil
		}
		return resonance.Subscription{}, false, wrapStoreError(errorSubjectSub, errorCodeLookup, err)
	}
	subscription, err := mapSubscription(fanValue, creatorValue, statusValue, priceValue, tierValue, expiresValue)
	if err != nil {
		return resonance.Subscription{}, false, err
	}
	return subscription, true, nil
}

func insertSubscription(ctx context.Context, db querier, subscription resonance.Subscription) error {
	_, err := db.Exec(ctx, sqlInsertSubscription,
		subscription.FanID.String(),
		subscription.CreatorID.String(),
		subscription.Status.String(),
		subscription.Price.Decimal(),
		subscription.TierLabel,
		subscription.ExpiresAtUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectSub, errorCodeInsert, err)
	}
	return nil
}

func extendSubscription(ctx context.Context, db querier, fanID resonance.AccountID, creatorID resonance.AccountID, expiresAtUnixUTC int64) error {
	tag, err := db.Exec(ctx, sqlExtendSubscription, fanID.String(), creatorID.String(), expiresAtUnixUTC)
	if err != nil {
		return wrapStoreError(errorSubjectSub, errorCodeExtend, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectSub, errorCodeExtend, resonance.ErrNotFound)
	}
	return nil
}

func selectLoyalty(ctx context.Context, db querier, fanID resonance.AccountID, creatorID resonance.AccountID) (resonance.LoyaltyStats, bool, error) {
	var (
		fanValue      string
		creatorValue  string
		lifetimeValue decimal.Decimal
		tierValue     string
	)
	err := db.QueryRow(ctx, sqlSelectLoyalty, fanID.String(), creatorID.String()).Scan(
		&fanValue, &creatorValue, &lifetimeValue, &tierValue,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resonance.LoyaltyStats{}, false, nil
		}
		return resonance.LoyaltyStats{}, false, wrapStoreError(errorSubjectLoyalty, errorCodeLookup, err)
	}
	stats, err := mapLoyalty(fanValue, creatorValue, lifetimeValue, tierValue)
	if err != nil {
		return resonance.LoyaltyStats{}, false, err
	}
	return stats, true, nil
}

func upsertLoyalty(ctx context.Context, db querier, stats resonance.LoyaltyStats) error {
	_, err := db.Exec(ctx, sqlUpsertLoyalty,
		stats.FanID.String(),
		stats.CreatorID.String(),
		stats.LifetimeResonance.Decimal(),
		stats.Tier.String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectLoyalty, errorCodeUpsert, err)
	}
	return nil
}

func insertEntry(ctx context.Context, db querier, entry resonance.EntryInput) error {
	_, err := db.Exec(ctx, sqlInsertEntry,
		entry.SenderID.String(),
		entry.ReceiverID.String(),
		entry.Amount.Decimal(),
		entry.CreatorCut.Decimal(),
		entry.PlatformCut.Decimal(),
		entry.ReferralCut.Decimal(),
		entry.Type.String(),
		entry.Status.String(),
		entry.IdempotencyKey.String(),
		entry.Metadata.String(),
		entry.CreatedUnixUTC,
	)
	if isConstraintViolation(err, constraintLedgerIdempotency) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, resonance.ErrDuplicateOperation)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func listEntries(ctx context.Context, db querier, accountID resonance.AccountID, beforeUnixUTC int64, limit int) ([]resonance.Entry, error) {
	rows, err := db.Query(ctx, sqlListEntries, accountID.String(), beforeUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entries, nil
}

func hasSettlement(ctx context.Context, db querier, reference string) (bool, error) {
	var count int64
	err := db.QueryRow(ctx, sqlCountSettlement, reference).Scan(&count)
	if err != nil {
		return false, wrapStoreError(errorSubjectSettlement, errorCodeLookup, err)
	}
	return count > 0, nil
}

func insertSettlement(ctx context.Context, db querier, receipt resonance.SettlementReceipt) error {
	_, err := db.Exec(ctx, sqlInsertSettlement, receipt.Reference, receipt.Amount.Decimal(), receipt.CreatedUnixUTC)
	if isConstraintViolation(err, constraintSettlementsPrimary) {
		return wrapStoreError(errorSubjectSettlement, errorCodeDuplicate, resonance.ErrDuplicateSettlement)
	}
	if err != nil {
		return wrapStoreError(errorSubjectSettlement, errorCodeInsert, err)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]resonance.Entry, error) {
	entries := make([]resonance.Entry, 0, 32)
	for rows.Next() {
		var (
			entryIDValue     string
			senderValue      string
			receiverValue    string
			amountValue      decimal.Decimal
			creatorCutValue  decimal.Decimal
			platformCutValue decimal.Decimal
			referralCutValue decimal.Decimal
			typeValue        string
			statusValue      string
			idempotencyValue string
			metadataValue    string
			createdAtUnixUTC int64
		)
		if err := rows.Scan(
			&entryIDValue,
			&senderValue,
			&receiverValue,
			&amountValue,
			&creatorCutValue,
			&platformCutValue,
			&referralCutValue,
			&typeValue,
			&statusValue,
			&idempotencyValue,
			&metadataValue,
			&createdAtUnixUTC,
		); err != nil {
			return nil, err
		}
		entry, err := mapEntry(
			entryIDValue, senderValue, receiverValue,
			amountValue, creatorCutValue, platformCutValue, referralCutValue,
			typeValue, statusValue, idempotencyValue, metadataValue, createdAtUnixUTC,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func mapAccount(id string, persona string, balance decimal.Decimal, referredBy string) (resonance.Account, error) {
	accountID, err := resonance.NewAccountID(id)
	if err != nil {
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	parsedPersona, err := resonance.ParsePersona(persona)
	if err != nil {
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	parsedBalance, err := resonance.NewAmount(balance)
	if err != nil {
		return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	account := resonance.Account{
		ID:      accountID,
		Persona: parsedPersona,
		Balance: parsedBalance,
	}
	if referredBy != "" {
		referrerID, referrerErr := resonance.NewAccountID(referredBy)
		if referrerErr != nil {
			return resonance.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, referrerErr)
		}
		account.ReferredBy = &referrerID
	}
	return account, nil
}

func mapMoment(id string, creatorID string, price decimal.Decimal, tier string, kind string) (resonance.Moment, error) {
	momentID, err := resonance.NewMomentID(id)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	parsedCreatorID, err := resonance.NewAccountID(creatorID)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	parsedPrice, err := resonance.NewAmount(price)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	parsedTier, err := resonance.ParseTier(tier)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	parsedKind, err := resonance.ParseMomentKind(kind)
	if err != nil {
		return resonance.Moment{}, wrapStoreError(errorSubjectMoment, errorCodeInvalid, err)
	}
	return resonance.Moment{
		ID:           momentID,
		CreatorID:    parsedCreatorID,
		Price:        parsedPrice,
		RequiredTier: parsedTier,
		Kind:         parsedKind,
	}, nil
}

func mapSubscription(fanID string, creatorID string, status string, price decimal.Decimal, tierLabel string, expiresAtUnixUTC int64) (resonance.Subscription, error) {
	parsedFanID, err := resonance.NewAccountID(fanID)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	parsedCreatorID, err := resonance.NewAccountID(creatorID)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	parsedStatus, err := resonance.ParseSubscriptionStatus(status)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	parsedPrice, err := resonance.NewAmount(price)
	if err != nil {
		return resonance.Subscription{}, wrapStoreError(errorSubjectSub, errorCodeInvalid, err)
	}
	return resonance.Subscription{
		FanID:            parsedFanID,
		CreatorID:        parsedCreatorID,
		Status:           parsedStatus,
		Price:            parsedPrice,
		TierLabel:        tierLabel,
		ExpiresAtUnixUTC: expiresAtUnixUTC,
	}, nil
}

func mapLoyalty(fanID string, creatorID string, lifetime decimal.Decimal, tier string) (resonance.LoyaltyStats, error) {
	parsedFanID, err := resonance.NewAccountID(fanID)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	parsedCreatorID, err := resonance.NewAccountID(creatorID)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	parsedLifetime, err := resonance.NewAmount(lifetime)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	parsedTier, err := resonance.ParseTier(tier)
	if err != nil {
		return resonance.LoyaltyStats{}, wrapStoreError(errorSubjectLoyalty, errorCodeInvalid, err)
	}
	return resonance.LoyaltyStats{
		FanID:             parsedFanID,
		CreatorID:         parsedCreatorID,
		LifetimeResonance: parsedLifetime,
		Tier:              parsedTier,
	}, nil
}

func mapEntry(
	entryID string, senderID string, receiverID string,
	amount decimal.Decimal, creatorCut decimal.Decimal, platformCut decimal.Decimal, referralCut decimal.Decimal,
	entryType string, status string, idempotencyKey string, metadata string, createdAtUnixUTC int64,
) (resonance.Entry, error) {
	parsedSenderID, err := resonance.NewAccountID(senderID)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedReceiverID, err := resonance.NewAccountID(receiverID)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedAmount, err := resonance.NewAmount(amount)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedCreatorCut, err := resonance.NewAmount(creatorCut)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedPlatformCut, err := resonance.NewAmount(platformCut)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedReferralCut, err := resonance.NewAmount(referralCut)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedType, err := resonance.ParseEntryType(entryType)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedStatus, err := resonance.ParseEntryStatus(status)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedKey, err := resonance.NewIdempotencyKey(idempotencyKey)
	if err != nil {
		return resonance.Entry{}, err
	}
	parsedMetadata, err := resonance.NewMetadataJSON(metadata)
	if err != nil {
		return resonance.Entry{}, err
	}
	return resonance.Entry{
		EntryID:        entryID,
		SenderID:       parsedSenderID,
		ReceiverID:     parsedReceiverID,
		Amount:         parsedAmount,
		CreatorCut:     parsedCreatorCut,
		PlatformCut:    parsedPlatformCut,
		ReferralCut:    parsedReferralCut,
		Type:           parsedType,
		Status:         parsedStatus,
		IdempotencyKey: parsedKey,
		Metadata:       parsedMetadata,
		CreatedUnixUTC: createdAtUnixUTC,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return resonance.WrapError(errorOperationStore, subject, code, err)
}

func isConstraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}
