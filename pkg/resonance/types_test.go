package resonance

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewAmountRejectsNegative(test *testing.T) {
	test.Parallel()
	if _, err := NewAmount(decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestNewPositiveAmountRejectsZero(test *testing.T) {
	test.Parallel()
	if _, err := NewPositiveAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestParseAmountRejectsGarbage(test *testing.T) {
	test.Parallel()
	if _, err := ParseAmount("twelve"); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAmountFromMinorUnits(test *testing.T) {
	test.Parallel()
	amount, err := AmountFromMinorUnits(123456)
	if err != nil {
		test.Fatalf("minor units: %v", err)
	}
	if amount.Cmp(mustAmount(test, "1234.56")) != 0 {
		test.Fatalf("expected 1234.56, got %s", amount)
	}
	if _, err := AmountFromMinorUnits(-1); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for negative minor units, got %v", err)
	}
}

func TestNewAccountIDNormalizes(test *testing.T) {
	test.Parallel()
	accountID, err := NewAccountID("  acct-1  ")
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	if accountID.String() != "acct-1" {
		test.Fatalf("expected trimmed id, got %q", accountID.String())
	}
	if _, err := NewAccountID("   "); !errors.Is(err, ErrInvalidAccountID) {
		test.Fatalf("expected ErrInvalidAccountID, got %v", err)
	}
}

func TestNewMetadataJSONDefaultsEmpty(test *testing.T) {
	test.Parallel()
	metadata, err := NewMetadataJSON("")
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	if metadata.String() != "{}" {
		test.Fatalf("expected {} default, got %q", metadata.String())
	}
	if _, err := NewMetadataJSON("{not json"); !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestParseEntryType(test *testing.T) {
	test.Parallel()
	for _, label := range []string{"subscription", "unlock", "tip", "withdrawal", "boost"} {
		if _, err := ParseEntryType(label); err != nil {
			test.Fatalf("parse %q: %v", label, err)
		}
	}
	if _, err := ParseEntryType("refund"); !errors.Is(err, ErrInvalidEntryType) {
		test.Fatalf("expected ErrInvalidEntryType, got %v", err)
	}
}

func TestParsePersonaAndKind(test *testing.T) {
	test.Parallel()
	if _, err := ParsePersona("creator"); err != nil {
		test.Fatalf("persona: %v", err)
	}
	if _, err := ParsePersona("admin"); !errors.Is(err, ErrInvalidPersona) {
		test.Fatalf("expected ErrInvalidPersona, got %v", err)
	}
	if _, err := ParseMomentKind("paywalled"); err != nil {
		test.Fatalf("kind: %v", err)
	}
	if _, err := ParseMomentKind("secret"); !errors.Is(err, ErrInvalidMomentKind) {
		test.Fatalf("expected ErrInvalidMomentKind, got %v", err)
	}
}
