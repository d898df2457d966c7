package resonance

import "github.com/shopspring/decimal"

// Revenue shares. The referral share applies to the platform's portion,
// not the gross.
var (
	creatorShare  = decimal.New(8, -1) // 0.8
	referralShare = decimal.New(1, -1) // 0.1
)

// SplitResult is the three-way division of a gross payment.
type SplitResult struct {
	CreatorCut  Amount
	PlatformCut Amount
	ReferralCut Amount
}

// Split divides a gross amount between creator, platform, and (when the
// creator was referred) the referrer. The cuts always sum to the gross
// exactly: each residual share is obtained by subtraction.
func Split(gross Amount, hasReferrer bool) SplitResult {
	creatorCut := gross.Decimal().Mul(creatorShare)
	platformGross := gross.Decimal().Sub(creatorCut)
	if !hasReferrer {
		return SplitResult{
			CreatorCut:  amountOf(creatorCut),
			PlatformCut: amountOf(platformGross),
			ReferralCut: ZeroAmount,
		}
	}
	referralCut := platformGross.Mul(referralShare)
	return SplitResult{
		CreatorCut:  amountOf(creatorCut),
		PlatformCut: amountOf(platformGross.Sub(referralCut)),
		ReferralCut: amountOf(referralCut),
	}
}

// Total recombines the cuts; it equals the original gross.
func (split SplitResult) Total() Amount {
	return split.CreatorCut.Add(split.PlatformCut).Add(split.ReferralCut)
}
