// Package webhook translates payment-gateway charge notifications into
// settlement calls on the monetization engine. Signatures are verified
// before anything else happens.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/resonance/pkg/resonance"
	"go.uber.org/zap"
)

// EventChargeSuccess is the only gateway event acted on; everything else
// is acknowledged and ignored.
const EventChargeSuccess = "charge.success"

// ErrMalformedNotification marks an unparseable gateway payload.
var ErrMalformedNotification = errors.New("malformed notification")

// Notification is the gateway's wire format. Amounts arrive in minor
// currency units.
type Notification struct {
	Event string `json:"event"`
	Data  struct {
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
		Metadata  struct {
			UserID    string `json:"userId"`
			CreatorID string `json:"creatorId"`
			Type      string `json:"type"`
			MomentID  string `json:"momentId,omitempty"`
			Tier      string `json:"tier,omitempty"`
		} `json:"metadata"`
	} `json:"data"`
}

// Handler verifies and applies gateway notifications.
type Handler struct {
	service *resonance.Service
	secret  []byte
	logger  *zap.Logger
}

// NewHandler wires a Handler. The signing secret is mandatory.
func NewHandler(service *resonance.Service, secret string, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service dependency is nil", resonance.ErrInvalidServiceConfig)
	}
	trimmedSecret := strings.TrimSpace(secret)
	if trimmedSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is required", resonance.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		secret:  []byte(trimmedSecret),
		logger:  logger,
	}, nil
}

// Handle authenticates one raw notification body and settles it. A replayed
// gateway reference is reported as success so the gateway stops retrying.
func (handler *Handler) Handle(ctx context.Context, body []byte, signature string) error {
	if !handler.verifySignature(body, signature) {
		handler.logger.Warn("webhook signature rejected")
		return resonance.ErrSignatureInvalid
	}
	var notification Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if notification.Event != EventChargeSuccess {
		handler.logger.Debug("ignoring gateway event", zap.String("event", notification.Event))
		return nil
	}
	notice, err := buildNotice(notification)
	if err != nil {
		return err
	}
	err = handler.service.Settle(ctx, notice)
	if errors.Is(err, resonance.ErrDuplicateSettlement) {
		handler.logger.Info("settlement already processed",
			zap.String("reference", notification.Data.Reference))
		return nil
	}
	return err
}

func (handler *Handler) verifySignature(body []byte, signature string) bool {
	trimmed := strings.TrimSpace(signature)
	if trimmed == "" {
		return false
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, handler.secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	if len(decoded) != len(expected) {
		return false
	}
	return hmac.Equal(decoded, expected)
}

// Sign computes the hex signature for a body; used by tests and by the
// gateway simulator in local setups.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(strings.TrimSpace(secret)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func buildNotice(notification Notification) (resonance.SettlementNotice, error) {
	payerID, err := resonance.NewAccountID(notification.Data.Metadata.UserID)
	if err != nil {
		return resonance.SettlementNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	creatorID, err := resonance.NewAccountID(notification.Data.Metadata.CreatorID)
	if err != nil {
		return resonance.SettlementNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	kind, err := resonance.ParseEntryType(notification.Data.Metadata.Type)
	if err != nil {
		return resonance.SettlementNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	amount, err := resonance.AmountFromMinorUnits(notification.Data.Amount)
	if err != nil {
		return resonance.SettlementNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	var momentID *resonance.MomentID
	if strings.TrimSpace(notification.Data.Metadata.MomentID) != "" {
		parsed, err := resonance.NewMomentID(notification.Data.Metadata.MomentID)
		if err != nil {
			return resonance.SettlementNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
		}
		momentID = &parsed
	}
	rawMetadata, err := json.Marshal(notification.Data.Metadata)
	if err != nil {
		return resonance.SettlementNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	metadata, err := resonance.NewMetadataJSON(string(rawMetadata))
	if err != nil {
		return resonance.SettlementNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	return resonance.SettlementNotice{
		Reference: notification.Data.Reference,
		Amount:    amount,
		PayerID:   payerID,
		CreatorID: creatorID,
		Kind:      kind,
		MomentID:  momentID,
		TierLabel: notification.Data.Metadata.Tier,
		Metadata:  metadata,
	}, nil
}
