package resonance

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

type pairKey struct {
	fan     AccountID
	creator AccountID
}

type unlockKey struct {
	fan    AccountID
	moment MomentID
}

type stubStore struct {
	accounts      map[AccountID]*Account
	moments       map[MomentID]Moment
	unlocks       map[unlockKey]Unlock
	subscriptions []Subscription
	loyalty       map[pairKey]LoyaltyStats
	entries       []EntryInput
	listEntries   []Entry
	settlements   map[string]SettlementReceipt
	idempotency   map[IdempotencyKey]struct{}
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts:    make(map[AccountID]*Account),
		moments:     make(map[MomentID]Moment),
		unlocks:     make(map[unlockKey]Unlock),
		loyalty:     make(map[pairKey]LoyaltyStats),
		settlements: make(map[string]SettlementReceipt),
		idempotency: make(map[IdempotencyKey]struct{}),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) CreateAccount(ctx context.Context, account Account) error {
	copied := account
	store.accounts[account.ID] = &copied
	return nil
}

func (store *stubStore) GetAccount(ctx context.Context, id AccountID) (Account, error) {
	account, ok := store.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *account, nil
}

func (store *stubStore) LockAccount(ctx context.Context, id AccountID) (Account, error) {
	return store.GetAccount(ctx, id)
}

func (store *stubStore) AddToBalance(ctx context.Context, id AccountID, delta Amount) error {
	account, ok := store.accounts[id]
	if !ok {
		return ErrNotFound
	}
	account.Balance = account.Balance.Add(delta)
	return nil
}

func (store *stubStore) SubtractFromBalance(ctx context.Context, id AccountID, delta Amount) error {
	account, ok := store.accounts[id]
	if !ok {
		return ErrNotFound
	}
	updated, err := NewAmount(account.Balance.Decimal().Sub(delta.Decimal()))
	if err != nil {
		return err
	}
	account.Balance = updated
	return nil
}

func (store *stubStore) CreateMoment(ctx context.Context, moment Moment) error {
	store.moments[moment.ID] = moment
	return nil
}

func (store *stubStore) GetMoment(ctx context.Context, id MomentID) (Moment, error) {
	moment, ok := store.moments[id]
	if !ok {
		return Moment{}, ErrNotFound
	}
	return moment, nil
}

func (store *stubStore) HasUnlock(ctx context.Context, fanID AccountID, momentID MomentID) (bool, error) {
	_, ok := store.unlocks[unlockKey{fan: fanID, moment: momentID}]
	return ok, nil
}

func (store *stubStore) InsertUnlock(ctx context.Context, unlock Unlock) error {
	key := unlockKey{fan: unlock.FanID, moment: unlock.MomentID}
	if _, exists := store.unlocks[key]; exists {
		return ErrAlreadyUnlocked
	}
	store.unlocks[key] = unlock
	return nil
}

func (store *stubStore) ActiveSubscription(ctx context.Context, fanID AccountID, creatorID AccountID, atUnixUTC int64) (Subscription, bool, error) {
	for _, subscription := range store.subscriptions {
		if subscription.FanID == fanID && subscription.CreatorID == creatorID &&
			subscription.Status == SubscriptionActive && subscription.ExpiresAtUnixUTC > atUnixUTC {
			return subscription, true, nil
		}
	}
	return Subscription{}, false, nil
}

func (store *stubStore) InsertSubscription(ctx context.Context, subscription Subscription) error {
	store.subscriptions = append(store.subscriptions, subscription)
	return nil
}

func (store *stubStore) ExtendSubscription(ctx context.Context, fanID AccountID, creatorID AccountID, expiresAtUnixUTC int64) error {
	for index := range store.subscriptions {
		subscription := &store.subscriptions[index]
		if subscription.FanID == fanID && subscription.CreatorID == creatorID && subscription.Status == SubscriptionActive {
			subscription.ExpiresAtUnixUTC = expiresAtUnixUTC
			return nil
		}
	}
	return ErrNotFound
}

func (store *stubStore) GetLoyalty(ctx context.Context, fanID AccountID, creatorID AccountID) (LoyaltyStats, bool, error) {
	stats, ok := store.loyalty[pairKey{fan: fanID, creator: creatorID}]
	return stats, ok, nil
}

func (store *stubStore) SaveLoyalty(ctx context.Context, stats LoyaltyStats) error {
	store.loyalty[pairKey{fan: stats.FanID, creator: stats.CreatorID}] = stats
	return nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entry EntryInput) error {
	if _, exists := store.idempotency[entry.IdempotencyKey]; exists {
		return ErrDuplicateOperation
	}
	store.idempotency[entry.IdempotencyKey] = struct{}{}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListEntries(ctx context.Context, accountID AccountID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	return append([]Entry(nil), store.listEntries...), nil
}

func (store *stubStore) HasSettlement(ctx context.Context, reference string) (bool, error) {
	_, ok := store.settlements[reference]
	return ok, nil
}

func (store *stubStore) InsertSettlement(ctx context.Context, receipt SettlementReceipt) error {
	if _, exists := store.settlements[receipt.Reference]; exists {
		return ErrDuplicateSettlement
	}
	store.settlements[receipt.Reference] = receipt
	return nil
}

func (store *stubStore) addAccount(test *testing.T, rawID string, persona Persona, balance string, referredBy *AccountID) AccountID {
	test.Helper()
	accountID := mustAccountID(test, rawID)
	store.accounts[accountID] = &Account{
		ID:         accountID,
		Persona:    persona,
		Balance:    mustAmount(test, balance),
		ReferredBy: referredBy,
	}
	return accountID
}

func (store *stubStore) addMoment(test *testing.T, rawID string, creatorID AccountID, price string, requiredTier Tier, kind MomentKind) MomentID {
	test.Helper()
	momentID := mustMomentID(test, rawID)
	store.moments[momentID] = Moment{
		ID:           momentID,
		CreatorID:    creatorID,
		Price:        mustAmount(test, price),
		RequiredTier: requiredTier,
		Kind:         kind,
	}
	return momentID
}

func (store *stubStore) balanceOf(test *testing.T, id AccountID) Amount {
	test.Helper()
	account, ok := store.accounts[id]
	if !ok {
		test.Fatalf("account %s not found", id.String())
	}
	return account.Balance
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 100 })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	value, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return value
}

func mustMomentID(test *testing.T, raw string) MomentID {
	test.Helper()
	value, err := NewMomentID(raw)
	if err != nil {
		test.Fatalf("moment id: %v", err)
	}
	return value
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	value, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	value, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return value
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}
