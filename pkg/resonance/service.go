package resonance

import (
	"context"
	"fmt"
)

// Service is the monetization engine. Every operation runs as one
// all-or-nothing Store transaction; balances are never touched outside
// of one.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Subscribe charges a fan for one subscription period. An already-active
// subscription for the pair is extended rather than duplicated.
func (service *Service) Subscribe(ctx context.Context, fanID AccountID, creatorID AccountID, tierLabel string, price Amount, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return service.subscribeInTx(ctx, transactionStore, fanID, creatorID, tierLabel, price, idempotencyKey, metadata)
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationSubscribe,
		PayerID:        fanID,
		PayeeID:        creatorID,
		Amount:         price,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Error:          operationError,
	})
	return operationError
}

// Unlock charges a fan the moment's price for permanent access.
func (service *Service) Unlock(ctx context.Context, fanID AccountID, momentID MomentID, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return service.unlockInTx(ctx, transactionStore, fanID, momentID, idempotencyKey, metadata)
	})
	momentRef := momentID
	service.logOperation(ctx, OperationLog{
		Operation:      operationUnlock,
		PayerID:        fanID,
		MomentID:       &momentRef,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Error:          operationError,
	})
	return operationError
}

// Tip moves a voluntary amount from a fan to a creator.
func (service *Service) Tip(ctx context.Context, fanID AccountID, creatorID AccountID, amount Amount, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		_, err := service.movePayment(ctx, transactionStore, fanID, creatorID, amount, EntryTip, idempotencyKey, metadata)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationTip,
		PayerID:        fanID,
		PayeeID:        creatorID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Error:          operationError,
	})
	return operationError
}

// Withdraw debits a creator's wallet for an external payout. The entry is
// written pending; payout delivery happens outside the engine.
func (service *Service) Withdraw(ctx context.Context, creatorID AccountID, amount Amount, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		creator, err := transactionStore.LockAccount(ctx, creatorID)
		if err != nil {
			return err
		}
		if creator.Balance.Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}
		if err := transactionStore.SubtractFromBalance(ctx, creatorID, amount); err != nil {
			return err
		}
		return transactionStore.InsertEntry(ctx, EntryInput{
			SenderID:       creatorID,
			ReceiverID:     creatorID,
			Amount:         amount,
			Type:           EntryWithdrawal,
			Status:         EntryStatusPending,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationWithdraw,
		PayerID:        creatorID,
		PayeeID:        creatorID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Error:          operationError,
	})
	return operationError
}

// Boost charges a creator the promotion fee for one of their own moments.
// The whole amount is platform revenue.
func (service *Service) Boost(ctx context.Context, creatorID AccountID, momentID MomentID, amount Amount, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		moment, err := transactionStore.GetMoment(ctx, momentID)
		if err != nil {
			return err
		}
		if moment.CreatorID != creatorID {
			return WrapError("service", "boost", "not_owner", ErrNotFound)
		}
		creator, err := transactionStore.LockAccount(ctx, creatorID)
		if err != nil {
			return err
		}
		if creator.Balance.Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}
		if err := transactionStore.SubtractFromBalance(ctx, creatorID, amount); err != nil {
			return err
		}
		return transactionStore.InsertEntry(ctx, EntryInput{
			SenderID:       creatorID,
			ReceiverID:     creatorID,
			Amount:         amount,
			PlatformCut:    amount,
			Type:           EntryBoost,
			Status:         EntryStatusSuccess,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	momentRef := momentID
	service.logOperation(ctx, OperationLog{
		Operation:      operationBoost,
		PayerID:        creatorID,
		MomentID:       &momentRef,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		Error:          operationError,
	})
	return operationError
}

func (service *Service) subscribeInTx(ctx context.Context, transactionStore Store, fanID AccountID, creatorID AccountID, tierLabel string, price Amount, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	if _, err := service.movePayment(ctx, transactionStore, fanID, creatorID, price, EntrySubscription, idempotencyKey, metadata); err != nil {
		return err
	}
	nowUnixUTC := service.nowFn()
	existing, active, err := transactionStore.ActiveSubscription(ctx, fanID, creatorID, nowUnixUTC)
	if err != nil {
		return err
	}
	if active {
		return transactionStore.ExtendSubscription(ctx, fanID, creatorID, existing.ExpiresAtUnixUTC+subscriptionPeriodSeconds)
	}
	return transactionStore.InsertSubscription(ctx, Subscription{
		FanID:            fanID,
		CreatorID:        creatorID,
		Status:           SubscriptionActive,
		Price:            price,
		TierLabel:        tierLabel,
		ExpiresAtUnixUTC: nowUnixUTC + subscriptionPeriodSeconds,
	})
}

func (service *Service) unlockInTx(ctx context.Context, transactionStore Store, fanID AccountID, momentID MomentID, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	moment, err := transactionStore.GetMoment(ctx, momentID)
	if err != nil {
		return err
	}
	if moment.CreatorID == fanID {
		return ErrSelfTransaction
	}
	if moment.Kind != KindPaywalled {
		return ErrNotPaywalled
	}
	unlocked, err := transactionStore.HasUnlock(ctx, fanID, momentID)
	if err != nil {
		return err
	}
	if unlocked {
		return ErrAlreadyUnlocked
	}
	if moment.Price.IsZero() {
		// The lock, if any, comes from the tier gate alone; that gate
		// cannot be bought through.
		viewerTier := TierAcquaintance
		stats, found, err := transactionStore.GetLoyalty(ctx, fanID, moment.CreatorID)
		if err != nil {
			return err
		}
		if found {
			viewerTier = stats.Tier
		}
		if viewerTier.Meets(moment.RequiredTier) {
			return ErrNotPaywalled
		}
		return ErrInadequateTier
	}
	if _, err := service.movePayment(ctx, transactionStore, fanID, moment.CreatorID, moment.Price, EntryUnlock, idempotencyKey, metadata); err != nil {
		return err
	}
	return transactionStore.InsertUnlock(ctx, Unlock{
		FanID:          fanID,
		MomentID:       momentID,
		CreatedUnixUTC: service.nowFn(),
	})
}

// movePayment performs the shared monetization sequence: self-guard, funds
// check on the locked payer row, split, balance moves, loyalty upsert, and
// the immutable ledger entry. Callers add their event-specific record.
func (service *Service) movePayment(ctx context.Context, transactionStore Store, payerID AccountID, payeeID AccountID, gross Amount, entryType EntryType, idempotencyKey IdempotencyKey, metadata MetadataJSON) (SplitResult, error) {
	if payerID == payeeID {
		return SplitResult{}, ErrSelfTransaction
	}
	payer, err := transactionStore.LockAccount(ctx, payerID)
	if err != nil {
		return SplitResult{}, err
	}
	payee, err := transactionStore.GetAccount(ctx, payeeID)
	if err != nil {
		return SplitResult{}, err
	}
	if payer.Balance.Cmp(gross) < 0 {
		return SplitResult{}, ErrInsufficientFunds
	}
	split := Split(gross, payee.ReferredBy != nil)
	if err := transactionStore.SubtractFromBalance(ctx, payerID, gross); err != nil {
		return SplitResult{}, err
	}
	if err := transactionStore.AddToBalance(ctx, payeeID, split.CreatorCut); err != nil {
		return SplitResult{}, err
	}
	if payee.ReferredBy != nil && !split.ReferralCut.IsZero() {
		if err := transactionStore.AddToBalance(ctx, *payee.ReferredBy, split.ReferralCut); err != nil {
			return SplitResult{}, err
		}
	}
	stats, found, err := transactionStore.GetLoyalty(ctx, payerID, payeeID)
	if err != nil {
		return SplitResult{}, err
	}
	if !found {
		stats = LoyaltyStats{FanID: payerID, CreatorID: payeeID, LifetimeResonance: ZeroAmount}
	}
	stats.LifetimeResonance = stats.LifetimeResonance.Add(gross)
	stats.Tier = ClassifyTier(stats.LifetimeResonance)
	if err := transactionStore.SaveLoyalty(ctx, stats); err != nil {
		return SplitResult{}, err
	}
	entry := EntryInput{
		SenderID:       payerID,
		ReceiverID:     payeeID,
		Amount:         gross,
		CreatorCut:     split.CreatorCut,
		PlatformCut:    split.PlatformCut,
		ReferralCut:    split.ReferralCut,
		Type:           entryType,
		Status:         EntryStatusSuccess,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := transactionStore.InsertEntry(ctx, entry); err != nil {
		return SplitResult{}, err
	}
	return split, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
