package resonance

import "context"

// Balance returns the account's wallet balance.
func (service *Service) Balance(ctx context.Context, accountID AccountID) (Amount, error) {
	account, err := service.store.GetAccount(ctx, accountID)
	if err != nil {
		return ZeroAmount, err
	}
	return account.Balance, nil
}

// Access decides a moment's lock state for a viewer. Read-only; evaluated
// fresh on every call, never cached on the moment.
func (service *Service) Access(ctx context.Context, viewerID AccountID, momentID MomentID) (AccessDecision, error) {
	moment, err := service.store.GetMoment(ctx, momentID)
	if err != nil {
		return AccessDecision{}, err
	}
	viewerIsOwner := moment.CreatorID == viewerID
	viewerUnlocked := false
	viewerTier := TierAcquaintance
	if !viewerIsOwner {
		unlocked, err := service.store.HasUnlock(ctx, viewerID, momentID)
		if err != nil {
			return AccessDecision{}, err
		}
		viewerUnlocked = unlocked
		stats, found, err := service.store.GetLoyalty(ctx, viewerID, moment.CreatorID)
		if err != nil {
			return AccessDecision{}, err
		}
		if found {
			viewerTier = stats.Tier
		}
	}
	return AccessDecision{
		Locked:     IsLocked(moment, viewerIsOwner, viewerUnlocked, viewerTier),
		ViewerTier: viewerTier,
	}, nil
}

// Entries lists ledger entries for an account before a cutoff time.
func (service *Service) Entries(ctx context.Context, accountID AccountID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	return service.store.ListEntries(ctx, accountID, beforeUnixUTC, limit)
}

// RegisterAccount persists a new account row. Registration itself (identity,
// credentials) lives outside the engine.
func (service *Service) RegisterAccount(ctx context.Context, account Account) error {
	return service.store.CreateAccount(ctx, account)
}

// PublishMoment persists a new moment row. Price and tier are immutable
// once created.
func (service *Service) PublishMoment(ctx context.Context, moment Moment) error {
	return service.store.CreateMoment(ctx, moment)
}
