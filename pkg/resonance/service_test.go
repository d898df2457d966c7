package resonance

import (
	"context"
	"errors"
	"testing"
)

func TestUnlockChargesFanAndGrantsAccess(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-1", PersonaFan, "1000", nil)
	creatorID := store.addAccount(test, "creator-1", PersonaCreator, "0", nil)
	momentID := store.addMoment(test, "moment-1", creatorID, "1000", TierAcquaintance, KindPaywalled)

	err := service.Unlock(context.Background(), fanID, momentID, mustIdempotencyKey(test, "unlock-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("unlock: %v", err)
	}
	if got := store.balanceOf(test, fanID); !got.IsZero() {
		test.Fatalf("expected fan balance 0, got %s", got)
	}
	if got := store.balanceOf(test, creatorID); got.Cmp(mustAmount(test, "800")) != 0 {
		test.Fatalf("expected creator balance 800, got %s", got)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected 1 ledger entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Type != EntryUnlock {
		test.Fatalf("expected unlock entry, got %s", entry.Type)
	}
	if entry.CreatorCut.Cmp(mustAmount(test, "800")) != 0 || entry.PlatformCut.Cmp(mustAmount(test, "200")) != 0 {
		test.Fatalf("unexpected cuts: creator=%s platform=%s", entry.CreatorCut, entry.PlatformCut)
	}
	decision, err := service.Access(context.Background(), fanID, momentID)
	if err != nil {
		test.Fatalf("access: %v", err)
	}
	if decision.Locked {
		test.Fatal("expected moment unlocked after purchase")
	}
}

func TestUnlockInsufficientFundsLeavesNoTrace(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-poor", PersonaFan, "500", nil)
	creatorID := store.addAccount(test, "creator-2", PersonaCreator, "0", nil)
	momentID := store.addMoment(test, "moment-2", creatorID, "1000", TierAcquaintance, KindPaywalled)

	err := service.Unlock(context.Background(), fanID, momentID, mustIdempotencyKey(test, "unlock-2"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := store.balanceOf(test, fanID); got.Cmp(mustAmount(test, "500")) != 0 {
		test.Fatalf("expected fan balance unchanged, got %s", got)
	}
	if got := store.balanceOf(test, creatorID); !got.IsZero() {
		test.Fatalf("expected creator balance unchanged, got %s", got)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no ledger entries, got %d", len(store.entries))
	}
	if len(store.unlocks) != 0 {
		test.Fatalf("expected no unlock rows, got %d", len(store.unlocks))
	}
}

func TestUnlockOwnMomentRejected(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	creatorID := store.addAccount(test, "creator-3", PersonaCreator, "5000", nil)
	momentID := store.addMoment(test, "moment-3", creatorID, "1000", TierAcquaintance, KindPaywalled)

	err := service.Unlock(context.Background(), creatorID, momentID, mustIdempotencyKey(test, "unlock-3"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrSelfTransaction) {
		test.Fatalf("expected ErrSelfTransaction, got %v", err)
	}
}

func TestUnlockTwiceRejected(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-4", PersonaFan, "3000", nil)
	creatorID := store.addAccount(test, "creator-4", PersonaCreator, "0", nil)
	momentID := store.addMoment(test, "moment-4", creatorID, "1000", TierAcquaintance, KindPaywalled)

	if err := service.Unlock(context.Background(), fanID, momentID, mustIdempotencyKey(test, "unlock-4a"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("first unlock: %v", err)
	}
	err := service.Unlock(context.Background(), fanID, momentID, mustIdempotencyKey(test, "unlock-4b"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrAlreadyUnlocked) {
		test.Fatalf("expected ErrAlreadyUnlocked, got %v", err)
	}
	if got := store.balanceOf(test, fanID); got.Cmp(mustAmount(test, "2000")) != 0 {
		test.Fatalf("expected one charge only, balance %s", got)
	}
}

func TestUnlockPublicMomentRejected(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-5", PersonaFan, "1000", nil)
	creatorID := store.addAccount(test, "creator-5", PersonaCreator, "0", nil)
	momentID := store.addMoment(test, "moment-5", creatorID, "0", TierAcquaintance, KindPublic)

	err := service.Unlock(context.Background(), fanID, momentID, mustIdempotencyKey(test, "unlock-5"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrNotPaywalled) {
		test.Fatalf("expected ErrNotPaywalled, got %v", err)
	}
}

func TestUnlockTierGatedFreeMomentRejected(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-6", PersonaFan, "100000", nil)
	creatorID := store.addAccount(test, "creator-6", PersonaCreator, "0", nil)
	momentID := store.addMoment(test, "moment-6", creatorID, "0", TierZealot, KindPaywalled)

	err := service.Unlock(context.Background(), fanID, momentID, mustIdempotencyKey(test, "unlock-6"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInadequateTier) {
		test.Fatalf("expected ErrInadequateTier, got %v", err)
	}
	if got := store.balanceOf(test, fanID); got.Cmp(mustAmount(test, "100000")) != 0 {
		test.Fatalf("expected fan balance unchanged, got %s", got)
	}
}

func TestUnlocksSerializeAgainstOneBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-7", PersonaFan, "1500", nil)
	creatorID := store.addAccount(test, "creator-7", PersonaCreator, "0", nil)
	firstMoment := store.addMoment(test, "moment-7a", creatorID, "1000", TierAcquaintance, KindPaywalled)
	secondMoment := store.addMoment(test, "moment-7b", creatorID, "1000", TierAcquaintance, KindPaywalled)

	if err := service.Unlock(context.Background(), fanID, firstMoment, mustIdempotencyKey(test, "unlock-7a"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("first unlock: %v", err)
	}
	err := service.Unlock(context.Background(), fanID, secondMoment, mustIdempotencyKey(test, "unlock-7b"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds on second unlock, got %v", err)
	}
	balance := store.balanceOf(test, fanID)
	if balance.Cmp(mustAmount(test, "500")) != 0 {
		test.Fatalf("expected final balance 500, got %s", balance)
	}
	if balance.Decimal().IsNegative() {
		test.Fatal("balance must never go negative")
	}
}

func TestSubscribeCreditsReferrer(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	referrerID := store.addAccount(test, "referrer-1", PersonaCreator, "0", nil)
	fanID := store.addAccount(test, "fan-8", PersonaFan, "10000", nil)
	creatorID := store.addAccount(test, "creator-8", PersonaCreator, "0", &referrerID)

	err := service.Subscribe(context.Background(), fanID, creatorID, "zealot", mustAmount(test, "10000"), mustIdempotencyKey(test, "sub-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("subscribe: %v", err)
	}
	if got := store.balanceOf(test, fanID); !got.IsZero() {
		test.Fatalf("expected fan balance 0, got %s", got)
	}
	if got := store.balanceOf(test, creatorID); got.Cmp(mustAmount(test, "8000")) != 0 {
		test.Fatalf("expected creator balance 8000, got %s", got)
	}
	if got := store.balanceOf(test, referrerID); got.Cmp(mustAmount(test, "200")) != 0 {
		test.Fatalf("expected referrer balance 200, got %s", got)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected 1 ledger entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Type != EntrySubscription {
		test.Fatalf("expected subscription entry, got %s", entry.Type)
	}
	if entry.PlatformCut.Cmp(mustAmount(test, "1800")) != 0 || entry.ReferralCut.Cmp(mustAmount(test, "200")) != 0 {
		test.Fatalf("unexpected cuts: platform=%s referral=%s", entry.PlatformCut, entry.ReferralCut)
	}
	if len(store.subscriptions) != 1 {
		test.Fatalf("expected 1 subscription row, got %d", len(store.subscriptions))
	}
	subscription := store.subscriptions[0]
	if subscription.Status != SubscriptionActive {
		test.Fatalf("expected active subscription, got %s", subscription.Status)
	}
	if subscription.ExpiresAtUnixUTC != 100+subscriptionPeriodSeconds {
		test.Fatalf("unexpected expiry %d", subscription.ExpiresAtUnixUTC)
	}
}

func TestSubscribeExtendsActivePair(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-9", PersonaFan, "20000", nil)
	creatorID := store.addAccount(test, "creator-9", PersonaCreator, "0", nil)

	if err := service.Subscribe(context.Background(), fanID, creatorID, "acolyte", mustAmount(test, "5000"), mustIdempotencyKey(test, "sub-2a"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("first subscribe: %v", err)
	}
	if err := service.Subscribe(context.Background(), fanID, creatorID, "acolyte", mustAmount(test, "5000"), mustIdempotencyKey(test, "sub-2b"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("second subscribe: %v", err)
	}
	if len(store.subscriptions) != 1 {
		test.Fatalf("expected a single subscription row per pair, got %d", len(store.subscriptions))
	}
	if store.subscriptions[0].ExpiresAtUnixUTC != 100+2*subscriptionPeriodSeconds {
		test.Fatalf("expected extended expiry, got %d", store.subscriptions[0].ExpiresAtUnixUTC)
	}
}

func TestSubscribeUpdatesLoyaltyTier(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-10", PersonaFan, "60000", nil)
	creatorID := store.addAccount(test, "creator-10", PersonaCreator, "0", nil)

	if err := service.Subscribe(context.Background(), fanID, creatorID, "acolyte", mustAmount(test, "5000"), mustIdempotencyKey(test, "sub-3a"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("first subscribe: %v", err)
	}
	stats, found, err := store.GetLoyalty(context.Background(), fanID, creatorID)
	if err != nil || !found {
		test.Fatalf("loyalty lookup: found=%v err=%v", found, err)
	}
	if stats.Tier != TierAcolyte {
		test.Fatalf("expected acolyte after 5000, got %s", stats.Tier)
	}
	if err := service.Subscribe(context.Background(), fanID, creatorID, "zealot", mustAmount(test, "45000"), mustIdempotencyKey(test, "sub-3b"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("second subscribe: %v", err)
	}
	stats, _, _ = store.GetLoyalty(context.Background(), fanID, creatorID)
	if stats.LifetimeResonance.Cmp(mustAmount(test, "50000")) != 0 {
		test.Fatalf("expected lifetime 50000, got %s", stats.LifetimeResonance)
	}
	if stats.Tier != TierZealot {
		test.Fatalf("expected zealot at 50000, got %s", stats.Tier)
	}
}

func TestTipToSelfRejected(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	creatorID := store.addAccount(test, "creator-11", PersonaCreator, "5000", nil)

	err := service.Tip(context.Background(), creatorID, creatorID, mustAmount(test, "100"), mustIdempotencyKey(test, "tip-1"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrSelfTransaction) {
		test.Fatalf("expected ErrSelfTransaction, got %v", err)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no entries, got %d", len(store.entries))
	}
}

func TestTipReplayedIdempotencyKeyRejected(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	fanID := store.addAccount(test, "fan-12", PersonaFan, "1000", nil)
	creatorID := store.addAccount(test, "creator-12", PersonaCreator, "0", nil)
	idempotencyKey := mustIdempotencyKey(test, "tip-replay")

	if err := service.Tip(context.Background(), fanID, creatorID, mustAmount(test, "100"), idempotencyKey, mustMetadata(test, "{}")); err != nil {
		test.Fatalf("tip: %v", err)
	}
	err := service.Tip(context.Background(), fanID, creatorID, mustAmount(test, "100"), idempotencyKey, mustMetadata(test, "{}"))
	if !errors.Is(err, ErrDuplicateOperation) {
		test.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected a single ledger entry, got %d", len(store.entries))
	}
}

func TestWithdrawWritesPendingEntry(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	creatorID := store.addAccount(test, "creator-13", PersonaCreator, "5000", nil)

	if err := service.Withdraw(context.Background(), creatorID, mustAmount(test, "3000"), mustIdempotencyKey(test, "wd-1"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("withdraw: %v", err)
	}
	if got := store.balanceOf(test, creatorID); got.Cmp(mustAmount(test, "2000")) != 0 {
		test.Fatalf("expected balance 2000, got %s", got)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Type != EntryWithdrawal || entry.Status != EntryStatusPending {
		test.Fatalf("expected pending withdrawal entry, got %s/%s", entry.Type, entry.Status)
	}
}

func TestWithdrawCannotOverdraw(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	creatorID := store.addAccount(test, "creator-14", PersonaCreator, "100", nil)

	err := service.Withdraw(context.Background(), creatorID, mustAmount(test, "101"), mustIdempotencyKey(test, "wd-2"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := store.balanceOf(test, creatorID); got.Cmp(mustAmount(test, "100")) != 0 {
		test.Fatalf("expected balance unchanged, got %s", got)
	}
}

func TestBoostRequiresMomentOwnership(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	ownerID := store.addAccount(test, "creator-15", PersonaCreator, "0", nil)
	otherID := store.addAccount(test, "creator-16", PersonaCreator, "5000", nil)
	momentID := store.addMoment(test, "moment-15", ownerID, "100", TierAcquaintance, KindPaywalled)

	err := service.Boost(context.Background(), otherID, momentID, mustAmount(test, "500"), mustIdempotencyKey(test, "boost-1"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound for foreign moment, got %v", err)
	}
}

func TestBoostDebitsCreatorForPlatform(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	creatorID := store.addAccount(test, "creator-17", PersonaCreator, "1000", nil)
	momentID := store.addMoment(test, "moment-17", creatorID, "100", TierAcquaintance, KindPaywalled)

	if err := service.Boost(context.Background(), creatorID, momentID, mustAmount(test, "400"), mustIdempotencyKey(test, "boost-2"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("boost: %v", err)
	}
	if got := store.balanceOf(test, creatorID); got.Cmp(mustAmount(test, "600")) != 0 {
		test.Fatalf("expected balance 600, got %s", got)
	}
	entry := store.entries[0]
	if entry.Type != EntryBoost || entry.PlatformCut.Cmp(mustAmount(test, "400")) != 0 {
		test.Fatalf("expected boost entry with full platform cut, got %s/%s", entry.Type, entry.PlatformCut)
	}
}

func TestAccessForOwnerAndStranger(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	creatorID := store.addAccount(test, "creator-18", PersonaCreator, "0", nil)
	fanID := store.addAccount(test, "fan-18", PersonaFan, "0", nil)
	momentID := store.addMoment(test, "moment-18", creatorID, "1000", TierAcquaintance, KindPaywalled)

	ownerDecision, err := service.Access(context.Background(), creatorID, momentID)
	if err != nil {
		test.Fatalf("owner access: %v", err)
	}
	if ownerDecision.Locked {
		test.Fatal("owner must see their own moment")
	}
	fanDecision, err := service.Access(context.Background(), fanID, momentID)
	if err != nil {
		test.Fatalf("fan access: %v", err)
	}
	if !fanDecision.Locked {
		test.Fatal("priced moment must be locked for a stranger")
	}
	if fanDecision.ViewerTier != TierAcquaintance {
		test.Fatalf("expected floor tier for new fan, got %s", fanDecision.ViewerTier)
	}
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config for nil clock, got %v", err)
	}
}
