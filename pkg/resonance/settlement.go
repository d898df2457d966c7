package resonance

import (
	"context"
	"fmt"
	"strings"
)

// SettlementNotice is an externally-verified gateway charge, already
// authenticated and converted out of minor units by the webhook layer.
type SettlementNotice struct {
	Reference string
	Amount    Amount
	PayerID   AccountID
	CreatorID AccountID
	Kind      EntryType
	MomentID  *MomentID
	TierLabel string
	Metadata  MetadataJSON
}

// Settle applies one gateway charge: the settled amount lands in the
// payer's wallet and the standard monetization sequence runs from there,
// all within one transaction keyed on the gateway reference. A replayed
// reference fails with ErrDuplicateSettlement and mutates nothing; the
// webhook layer reports that to the gateway as success.
func (service *Service) Settle(ctx context.Context, notice SettlementNotice) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		reference := strings.TrimSpace(notice.Reference)
		if reference == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidReference)
		}
		seen, err := transactionStore.HasSettlement(ctx, reference)
		if err != nil {
			return err
		}
		if seen {
			return ErrDuplicateSettlement
		}
		if err := transactionStore.InsertSettlement(ctx, SettlementReceipt{
			Reference:      reference,
			Amount:         notice.Amount,
			CreatedUnixUTC: service.nowFn(),
		}); err != nil {
			return err
		}
		if err := transactionStore.AddToBalance(ctx, notice.PayerID, notice.Amount); err != nil {
			return err
		}
		idempotencyKey, err := NewIdempotencyKey(idempotencyPrefixGateway + idempotencyKeyDelimiter + reference)
		if err != nil {
			return err
		}
		switch notice.Kind {
		case EntrySubscription:
			return service.subscribeInTx(ctx, transactionStore, notice.PayerID, notice.CreatorID, notice.TierLabel, notice.Amount, idempotencyKey, notice.Metadata)
		case EntryUnlock:
			if notice.MomentID == nil {
				return fmt.Errorf("%w: settlement unlock requires a moment id", ErrInvalidMomentID)
			}
			return service.unlockInTx(ctx, transactionStore, notice.PayerID, *notice.MomentID, idempotencyKey, notice.Metadata)
		case EntryTip:
			_, err := service.movePayment(ctx, transactionStore, notice.PayerID, notice.CreatorID, notice.Amount, EntryTip, idempotencyKey, notice.Metadata)
			return err
		default:
			return fmt.Errorf("%w: %q", ErrInvalidEntryType, notice.Kind)
		}
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSettle,
		PayerID:   notice.PayerID,
		PayeeID:   notice.CreatorID,
		MomentID:  notice.MomentID,
		Amount:    notice.Amount,
		Metadata:  notice.Metadata,
		Error:     operationError,
	})
	return operationError
}
